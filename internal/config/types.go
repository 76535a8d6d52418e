package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("150ms", "30s", "12h") and must be
// positive. Omitted values fall back to the defaults in defaults.go.
type Config struct {
	Telegram      TelegramConfig      `json:"telegram" yaml:"telegram"`
	LXP           LXPConfig           `json:"lxp" yaml:"lxp"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Session       SessionConfig       `json:"session" yaml:"session"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
	Queue         QueueConfig         `json:"queue" yaml:"queue"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	Reminder      ReminderConfig      `json:"reminder" yaml:"reminder"`
	Scheduler     SchedulerConfig     `json:"scheduler" yaml:"scheduler"`
	Notify        NotifyConfig        `json:"notify" yaml:"notify"`
	Storage       *StorageConfig      `json:"storage,omitempty" yaml:"storage,omitempty"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

type TelegramConfig struct {
	Token       string `json:"token" yaml:"token"`
	PollTimeout string `json:"poll_timeout" yaml:"poll_timeout"`
}

// LXPConfig points at the upstream learning platform GraphQL endpoint.
type LXPConfig struct {
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	Timeout      string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	TaskLinkBase string `json:"task_link_base,omitempty" yaml:"task_link_base,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Console bool        `json:"console" yaml:"console"`
	File    LoggingFile `json:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type SessionConfig struct {
	FlushInterval string `json:"flush_interval,omitempty" yaml:"flush_interval,omitempty"`
}

// RateLimitConfig controls per-user admission.
//
// Commands holds optional per-command ceilings inside the same window,
// keyed by the command text (e.g. "/tasks").
type RateLimitConfig struct {
	Window        string         `json:"window,omitempty" yaml:"window,omitempty"`
	MaxRequests   int            `json:"max_requests,omitempty" yaml:"max_requests,omitempty"`
	SweepInterval string         `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
	Commands      map[string]int `json:"commands,omitempty" yaml:"commands,omitempty"`
}

type QueueConfig struct {
	Capacity            int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Tick                string `json:"tick,omitempty" yaml:"tick,omitempty"`
	OverloadNotifyEvery int    `json:"overload_notify_every,omitempty" yaml:"overload_notify_every,omitempty"`
}

type AuthConfig struct {
	SweepSpec        string `json:"sweep_spec,omitempty" yaml:"sweep_spec,omitempty"`
	StaleAfter       string `json:"stale_after,omitempty" yaml:"stale_after,omitempty"`
	SweepConcurrency int    `json:"sweep_concurrency,omitempty" yaml:"sweep_concurrency,omitempty"`
}

type ReminderConfig struct {
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

type SchedulerConfig struct {
	JobTimeout string `json:"job_timeout,omitempty" yaml:"job_timeout,omitempty"`
}

type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty" yaml:"rate_per_sec,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/lxpbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	Path        string `json:"path" yaml:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"` // sqlite
}

// ObservabilityConfig controls the metrics/pprof HTTP listener.
// Prefer a loopback address; nothing here is authenticated.
type ObservabilityConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty" yaml:"pprof,omitempty"`
}
