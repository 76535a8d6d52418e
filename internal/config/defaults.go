package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	// Embedded zone database so the default timezone resolves on minimal hosts.
	_ "time/tzdata"
)

const (
	DefaultTaskLinkBase  = "https://newlxp.ru"
	DefaultTimezone      = "Europe/Moscow"
	DefaultSweepSpec     = "0 */6 * * *"
	DefaultStorageDriver = "file"
	DefaultStoragePath   = "./data"
	DefaultObserveAddr   = "127.0.0.1:9464"
)

// Runtime is the parsed, defaulted form of Config that components consume.
type Runtime struct {
	PollTimeout time.Duration

	LXPEndpoint  string
	LXPTimeout   time.Duration
	TaskLinkBase string

	FlushInterval time.Duration

	RateWindow        time.Duration
	RateMax           int
	RateSweepInterval time.Duration
	RateCommands      map[string]int

	QueueCapacity       int
	QueueTick           time.Duration
	OverloadNotifyEvery int

	SweepSpec        string
	StaleAfter       time.Duration
	SweepConcurrency int

	Location   *time.Location
	JobTimeout time.Duration

	NotifyRatePerSec int

	StorageDriver      string
	StoragePath        string
	StorageBusyTimeout time.Duration
}

// Resolve validates cfg and fills defaults. It never mutates cfg.
func Resolve(cfg *Config) (Runtime, error) {
	if cfg == nil {
		return Runtime{}, errors.New("config is nil")
	}
	var (
		rt   Runtime
		errs []error
		err  error
	)
	// dur parses a positive duration; blank means def. On error it records
	// the field path and returns def so the rest of Resolve keeps going.
	dur := func(path, raw string, def time.Duration) time.Duration {
		s := strings.TrimSpace(raw)
		if s == "" {
			return def
		}
		d, e := time.ParseDuration(s)
		switch {
		case e != nil:
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", path, raw))
		case d <= 0:
			errs = append(errs, fmt.Errorf("%s: must be > 0, got %s", path, s))
		default:
			return d
		}
		return def
	}

	rt.PollTimeout = dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)

	rt.LXPEndpoint = strings.TrimSpace(cfg.LXP.Endpoint)
	rt.LXPTimeout = dur("lxp.timeout", cfg.LXP.Timeout, 15*time.Second)
	rt.TaskLinkBase = strings.TrimRight(strOr(cfg.LXP.TaskLinkBase, DefaultTaskLinkBase), "/")

	rt.FlushInterval = dur("session.flush_interval", cfg.Session.FlushInterval, 30*time.Second)

	rt.RateWindow = dur("rate_limit.window", cfg.RateLimit.Window, time.Minute)
	rt.RateMax = intOr(cfg.RateLimit.MaxRequests, 20)
	rt.RateSweepInterval = dur("rate_limit.sweep_interval", cfg.RateLimit.SweepInterval, 5*time.Minute)
	rt.RateCommands = map[string]int{}
	for cmd, n := range cfg.RateLimit.Commands {
		if !strings.HasPrefix(cmd, "/") {
			errs = append(errs, fmt.Errorf("rate_limit.commands: %q must start with '/'", cmd))
			continue
		}
		if n <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.commands[%s]: must be > 0", cmd))
			continue
		}
		rt.RateCommands[cmd] = n
	}
	if cfg.RateLimit.MaxRequests < 0 {
		errs = append(errs, errors.New("rate_limit.max_requests: must be >= 0"))
	}

	rt.QueueCapacity = intOr(cfg.Queue.Capacity, 100)
	rt.QueueTick = dur("queue.tick", cfg.Queue.Tick, 150*time.Millisecond)
	rt.OverloadNotifyEvery = intOr(cfg.Queue.OverloadNotifyEvery, 5)

	rt.SweepSpec = strOr(cfg.Auth.SweepSpec, DefaultSweepSpec)
	rt.StaleAfter = dur("auth.stale_after", cfg.Auth.StaleAfter, 12*time.Hour)
	rt.SweepConcurrency = intOr(cfg.Auth.SweepConcurrency, 2)

	tz := strOr(cfg.Reminder.Timezone, DefaultTimezone)
	if rt.Location, err = time.LoadLocation(tz); err != nil {
		errs = append(errs, fmt.Errorf("reminder.timezone: %w", err))
	}
	rt.JobTimeout = dur("scheduler.job_timeout", cfg.Scheduler.JobTimeout, time.Minute)

	rt.NotifyRatePerSec = intOr(cfg.Notify.RatePerSec, 25)

	rt.StorageDriver = DefaultStorageDriver
	rt.StoragePath = DefaultStoragePath
	if s := cfg.Storage; s != nil {
		rt.StorageDriver = strings.ToLower(strOr(s.Driver, DefaultStorageDriver))
		rt.StoragePath = strOr(s.Path, DefaultStoragePath)
		rt.StorageBusyTimeout = dur("storage.busy_timeout", s.BusyTimeout, 5*time.Second)
	}
	switch rt.StorageDriver {
	case "file", "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", rt.StorageDriver))
	}

	return rt, errors.Join(errs...)
}

// Validate checks everything Resolve checks plus fields required to run.
func Validate(cfg *Config) error {
	if _, err := Resolve(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token: required")
	}
	if strings.TrimSpace(cfg.LXP.Endpoint) == "" {
		return errors.New("lxp.endpoint: required")
	}
	return nil
}

func strOr(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func intOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
