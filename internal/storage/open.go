package storage

import (
	"context"
	"errors"
	"strings"

	logx "lxpbot/pkg/logx"
)

// Store is the persistence API used by the session flusher and the audit
// subscriber.
type Store interface {
	// LoadSessions returns the durable snapshot keyed by user id.
	LoadSessions(ctx context.Context) (map[int64]SessionRecord, error)
	// MergeSessions writes upserts over the durable snapshot and removes
	// deletes. Keys in neither set are left untouched.
	MergeSessions(ctx context.Context, upserts map[int64]SessionRecord, deletes []int64) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
