// Package ratelimit implements per-user fixed-window admission with an
// optional per-command ceiling and a one-time early warning.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lxpbot/internal/metrics"
	logx "lxpbot/pkg/logx"
)

// Config holds the tunables. Zero values take the defaults used by New.
type Config struct {
	Window        time.Duration
	MaxRequests   int
	SweepInterval time.Duration
	// Commands maps a command (e.g. "/tasks") to its own ceiling per window.
	Commands map[string]int
}

// Decision is the result of one admission check.
type Decision struct {
	Allowed bool
	// Warning is set once per window, on the request that reaches 80% of
	// the limit. A denied Decision can carry it too.
	Warning string
	// Reason explains a denial in user-facing terms.
	Reason string
	// RetryAfter is how long until the current window closes.
	RetryAfter time.Duration
}

type window struct {
	start    time.Time
	lastSeen time.Time
	count    int
	commands map[string]int
	warned   bool
}

type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[int64]*window

	now     func() time.Time
	log     logx.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, log logx.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{
		cfg:     normalize(cfg),
		windows: map[int64]*window{},
		now:     time.Now,
		log:     log.With(logx.String("comp", "ratelimit")),
		metrics: m,
	}
}

func normalize(cfg Config) Config {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 20
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	cmds := make(map[string]int, len(cfg.Commands))
	for k, v := range cfg.Commands {
		if v > 0 {
			cmds[k] = v
		}
	}
	cfg.Commands = cmds
	return cfg
}

// Apply swaps limits at runtime. Open windows keep their counts.
func (l *Limiter) Apply(cfg Config) {
	l.mu.Lock()
	l.cfg = normalize(cfg)
	l.mu.Unlock()
}

// WarnThreshold is floor(0.8 * max).
func WarnThreshold(max int) int { return max * 8 / 10 }

// Admit checks and records one request. It never blocks and never errors.
func (l *Limiter) Admit(userID int64, command string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.cfg
	w, ok := l.windows[userID]
	if !ok || now.Sub(w.start) > cfg.Window {
		w = &window{start: now, commands: map[string]int{}}
		l.windows[userID] = w
	}
	w.lastSeen = now
	retry := cfg.Window - now.Sub(w.start)

	if w.count >= cfg.MaxRequests {
		l.metrics.RateDenied("global")
		return Decision{
			Reason:     fmt.Sprintf("Слишком много запросов. Попробуйте через %d сек.", secondsCeil(retry)),
			RetryAfter: retry,
		}
	}

	w.count++

	// The warning belongs to the request that reaches the threshold, even
	// when a command ceiling then denies it.
	var warning string
	if !w.warned && w.count == WarnThreshold(cfg.MaxRequests) {
		w.warned = true
		warning = fmt.Sprintf("Вы использовали %d из %d запросов. Скоро сработает ограничение.", w.count, cfg.MaxRequests)
	}

	if ceiling, ok := cfg.Commands[command]; ok {
		w.commands[command]++
		if w.commands[command] > ceiling {
			l.metrics.RateDenied("command")
			return Decision{
				Warning:    warning,
				Reason:     fmt.Sprintf("Команду %s можно вызывать не чаще %d раз в %s.", command, ceiling, humanWindow(cfg.Window)),
				RetryAfter: retry,
			}
		}
	}
	return Decision{Allowed: true, Warning: warning}
}

// Sweep drops windows idle for more than twice the window length.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	idle := 2 * l.cfg.Window
	n := 0
	for id, w := range l.windows {
		if now.Sub(w.lastSeen) > idle {
			delete(l.windows, id)
			n++
		}
	}
	return n
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps on SweepInterval until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	l.mu.Lock()
	every := l.cfg.SweepInterval
	l.mu.Unlock()

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := l.Sweep(l.now()); n > 0 {
				l.log.Debug("rate windows swept", logx.Int("removed", n), logx.Int("remaining", l.Len()))
			}
		}
	}
}

func secondsCeil(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int((d + time.Second - 1) / time.Second)
}

func humanWindow(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d мин", int(d/time.Minute))
	}
	return fmt.Sprintf("%d сек", secondsCeil(d))
}
