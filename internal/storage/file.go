package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "lxpbot/pkg/logx"
)

// fileStore keeps everything under one directory:
//   - sessions.json  (snapshot, replaced via tmp + rename)
//   - audit.jsonl    (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	sessionsPath string
	auditFile    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	af, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:          log,
		sessionsPath: filepath.Join(dir, "sessions.json"),
		auditFile:    af,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) LoadSessions(ctx context.Context) (map[int64]SessionRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *fileStore) readLocked() (map[int64]SessionRecord, error) {
	out := map[int64]SessionRecord{}
	b, err := os.ReadFile(s.sessionsPath)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) MergeSessions(ctx context.Context, upserts map[int64]SessionRecord, deletes []int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}

	cur, err := s.readLocked()
	if err != nil {
		// Never replace a snapshot that could not be read.
		return err
	}
	for id, rec := range upserts {
		cur[id] = rec
	}
	for _, id := range deletes {
		delete(cur, id)
	}

	b, err := json.MarshalIndent(cur, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.sessionsPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.sessionsPath); err != nil {
		return err
	}
	s.log.Debug("sessions merged",
		logx.Int("upserts", len(upserts)),
		logx.Int("deletes", len(deletes)),
		logx.Int("total", len(cur)),
	)
	return nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}
