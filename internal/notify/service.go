// Package notify delivers outbound messages to users through a transport
// sender, paced by a token bucket and retried on transient failure.
package notify

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lxpbot/internal/metrics"
	kit "lxpbot/internal/transport"
	logx "lxpbot/pkg/logx"
)

var ErrEmpty = errors.New("notify: empty message")

// Message is what handlers send. Sticker, when set, goes out before Text.
type Message struct {
	Text           string
	HTML           bool
	DisablePreview bool
	// Keyboard attaches the main reply keyboard.
	Keyboard bool
	Sticker  string
}

// Text is a plain message with the main keyboard.
func Text(s string) Message { return Message{Text: s, Keyboard: true} }

// HTML is an HTML message with the main keyboard.
func HTML(s string) Message { return Message{Text: s, HTML: true, Keyboard: true} }

type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	Keyboard      kit.Keyboard
}

// Notifier is what handlers depend on.
type Notifier interface {
	Notify(ctx context.Context, userID int64, msg Message) error
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender  kit.Sender
	log     logx.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, sender kit.Sender, log logx.Logger, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log.With(logx.String("comp", "notify")), metrics: m}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.mu.Lock()
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes are not delayed.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Notify sends msg to the user's chat. A failed sticker is logged and the
// text still goes out.
func (s *Service) Notify(ctx context.Context, userID int64, msg Message) error {
	if msg.Text == "" && msg.Sticker == "" {
		return ErrEmpty
	}
	to := kit.ChatTarget{ChatID: userID}

	if msg.Sticker != "" {
		err := s.withRetry(ctx, func(c context.Context) error {
			return s.sender.SendSticker(c, to, msg.Sticker)
		})
		if err != nil {
			s.log.Warn("sticker send failed", logx.User(userID), logx.Err(err))
		}
	}
	if msg.Text == "" {
		return nil
	}

	s.mu.Lock()
	kb := s.cfg.Keyboard
	s.mu.Unlock()
	opt := &kit.SendOptions{DisablePreview: msg.DisablePreview}
	if msg.HTML {
		opt.ParseMode = kit.ParseModeHTML
	}
	if msg.Keyboard {
		opt.Keyboard = kb
	}

	err := s.withRetry(ctx, func(c context.Context) error {
		_, err := s.sender.SendText(c, to, msg.Text, opt)
		return err
	})
	if err != nil {
		s.log.Warn("notify failed", logx.User(userID), logx.Err(err))
	}
	return err
}

func (s *Service) withRetry(ctx context.Context, send func(context.Context) error) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := send(callCtx)
		cancel()
		if err == nil {
			s.metrics.NotifySent("ok")
			return nil
		}
		lastErr = err
		if attempt > cfg.RetryMax || ctx.Err() != nil {
			break
		}
		s.metrics.NotifySent("retry")

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	s.metrics.NotifySent("fail")
	return lastErr
}

// retryDelay is base*2^(attempt-1), capped, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
