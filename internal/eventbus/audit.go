package eventbus

import (
	"context"
	"time"

	"lxpbot/internal/storage"
	logx "lxpbot/pkg/logx"
)

// AuditSink receives audit entries; storage.Store satisfies it.
type AuditSink interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// RunAudit writes every event to sink until ctx is done. Write failures are
// logged and skipped.
func RunAudit(ctx context.Context, bus Bus, sink AuditSink, log logx.Logger) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	log = log.With(logx.String("comp", "audit"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			entry := storage.AuditEntry{At: e.Time, UserID: e.UserID, Action: e.Type, Detail: e.Detail}
			if e.Err != nil {
				entry.Error = e.Err.Error()
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := sink.AppendAudit(wctx, entry)
			cancel()
			if err != nil {
				log.Warn("audit write failed", logx.String("type", e.Type), logx.User(e.UserID), logx.Err(err))
				continue
			}
			log.Debug("event", logx.String("type", e.Type), logx.User(e.UserID))
		}
	}
}
