// Package queue runs user-facing handlers one at a time, in arrival order.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"lxpbot/internal/metrics"
	logx "lxpbot/pkg/logx"
)

// Handler is the unit of work. It runs to completion before the next one
// starts.
type Handler func(ctx context.Context) error

type Entry struct {
	UserID     int64
	Name       string
	Handler    Handler
	EnqueuedAt time.Time
}

type Config struct {
	Capacity int
	Tick     time.Duration
	// OverloadNotifyEvery throttles OnOverload to one call per N drops.
	OverloadNotifyEvery int
}

// Stats is a point-in-time view for logs and tests.
type Stats struct {
	Queued    int
	Processed uint64
	Failed    uint64
	Dropped   uint64
}

// Serializer is a bounded FIFO drained by a single ticker-driven worker.
// Submitting before Start is allowed; entries wait for the first tick.
type Serializer struct {
	cfg     Config
	ch      chan Entry
	log     logx.Logger
	metrics *metrics.Metrics

	// OnOverload is called (throttled) with the entry that was dropped.
	OnOverload func(Entry)
	overload   rate.Sometimes

	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func New(cfg Config, log logx.Logger, m *metrics.Metrics) *Serializer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 150 * time.Millisecond
	}
	if cfg.OverloadNotifyEvery <= 0 {
		cfg.OverloadNotifyEvery = 5
	}
	return &Serializer{
		cfg:      cfg,
		ch:       make(chan Entry, cfg.Capacity),
		log:      log.With(logx.String("comp", "queue")),
		metrics:  m,
		overload: rate.Sometimes{Every: cfg.OverloadNotifyEvery},
	}
}

// Submit enqueues e without blocking. It returns false when the queue is full
// or stopped; the entry is then discarded.
func (s *Serializer) Submit(e Entry) bool {
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return false
	}

	select {
	case s.ch <- e:
		s.metrics.SetQueueDepth(len(s.ch))
		return true
	default:
	}

	n := s.dropped.Add(1)
	s.metrics.QueueDropped()
	s.log.Warn("queue full; entry dropped",
		logx.User(e.UserID),
		logx.String("name", e.Name),
		logx.Int("capacity", s.cfg.Capacity),
		logx.Int64("dropped_total", int64(n)),
	)
	if s.OnOverload != nil {
		s.overload.Do(func() { s.OnOverload(e) })
	}
	return false
}

func (s *Serializer) Len() int { return len(s.ch) }

func (s *Serializer) Stats() Stats {
	return Stats{
		Queued:    len(s.ch),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// Start launches the worker. Calling it twice is a no-op.
func (s *Serializer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.stopped {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop halts the worker after the current handler returns. Entries still
// queued are discarded.
func (s *Serializer) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	discarded := 0
drain:
	for {
		select {
		case <-s.ch:
			discarded++
		default:
			break drain
		}
	}
	if discarded > 0 {
		s.log.Warn("queue stopped with pending entries", logx.Int("discarded", discarded))
	}
	s.metrics.SetQueueDepth(0)
	return nil
}

func (s *Serializer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		select {
		case e := <-s.ch:
			s.metrics.SetQueueDepth(len(s.ch))
			s.run(ctx, e)
		default:
		}
	}
}

func (s *Serializer) run(ctx context.Context, e Entry) {
	log := s.log.With(logx.User(e.UserID), logx.String("name", e.Name))
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			s.failed.Add(1)
			log.Error("handler panic",
				logx.String("panic", fmt.Sprint(r)),
				logx.Stack(logx.StackTrace(3, 24)),
			)
		}
		s.processed.Add(1)
		s.metrics.QueueProcessed(outcome)
		log.Trace("handler finished",
			logx.String("outcome", outcome),
			logx.Duration("waited", start.Sub(e.EnqueuedAt)),
			logx.Duration("took", time.Since(start)),
		)
	}()

	if e.Handler == nil {
		return
	}
	if err := e.Handler(ctx); err != nil {
		outcome = "error"
		s.failed.Add(1)
		log.Error("handler failed", logx.Err(err))
	}
}
