package session

import (
	"context"
	"time"

	"lxpbot/internal/metrics"
	"lxpbot/internal/storage"
	logx "lxpbot/pkg/logx"
)

// Flusher merges the in-memory map into storage on a fixed interval.
//
// Merge semantics: every in-memory session is upserted, deletes recorded
// since the last successful flush are removed, and any other key already on
// disk is kept. A process that dies between a Delete and the next flush
// will see the deleted key again after restart.
type Flusher struct {
	store    *Store
	backend  storage.Store
	interval time.Duration
	log      logx.Logger
	metrics  *metrics.Metrics
}

func NewFlusher(store *Store, backend storage.Store, interval time.Duration, log logx.Logger, m *metrics.Metrics) *Flusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Flusher{
		store:    store,
		backend:  backend,
		interval: interval,
		log:      log.With(logx.String("comp", "session.flush")),
		metrics:  m,
	}
}

// Load restores the durable snapshot into the store.
func (f *Flusher) Load(ctx context.Context) (int, error) {
	if f.backend == nil {
		return 0, nil
	}
	recs, err := f.backend.LoadSessions(ctx)
	if err != nil {
		return 0, err
	}
	n := f.store.Restore(recs)
	f.metrics.SetSessions(f.store.Len())
	f.log.Info("sessions restored", logx.Int("count", n))
	return n, nil
}

// Flush writes one merge. Errors are returned and also logged by Run.
func (f *Flusher) Flush(ctx context.Context) error {
	f.metrics.SetSessions(f.store.Len())
	if f.backend == nil {
		return nil
	}
	snap, dels := f.store.pending()
	err := f.backend.MergeSessions(ctx, snap, dels)
	f.metrics.Flushed(err)
	if err != nil {
		return err
	}
	f.store.clearTombstones(dels)
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more with
// a short detached deadline.
func (f *Flusher) Run(ctx context.Context) error {
	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := f.Flush(fctx)
			cancel()
			if err != nil {
				f.log.Error("final flush failed", logx.Err(err))
			}
			return nil
		case <-t.C:
			if err := f.Flush(ctx); err != nil {
				f.log.Error("flush failed", logx.Err(err))
			}
		}
	}
}
