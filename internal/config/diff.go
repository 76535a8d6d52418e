package config

import (
	"reflect"
	"sort"
	"strings"

	logx "lxpbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}
	if oldCfg.LXP != newCfg.LXP {
		changed = append(changed, "lxp")
		attrs = append(attrs, logx.String("lxp.endpoint", newCfg.LXP.Endpoint))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.RateLimit, newCfg.RateLimit) {
		changed = append(changed, "rate_limit")
		attrs = append(attrs,
			logx.String("rate_limit.window", newCfg.RateLimit.Window),
			logx.Int("rate_limit.max_requests", newCfg.RateLimit.MaxRequests),
			logx.Int("rate_limit.commands", len(newCfg.RateLimit.Commands)),
		)
	}
	if oldCfg.Session != newCfg.Session {
		changed = append(changed, "session")
	}
	if oldCfg.Queue != newCfg.Queue {
		changed = append(changed, "queue")
	}
	if oldCfg.Auth != newCfg.Auth {
		changed = append(changed, "auth")
	}
	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		attrs = append(attrs, logx.String("reminder.timezone", newCfg.Reminder.Timezone))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
	}
	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}
	if oldCfg.Observability != newCfg.Observability {
		changed = append(changed, "observability")
		attrs = append(attrs,
			logx.Bool("observability.enabled", newCfg.Observability.Enabled),
			logx.String("observability.addr", newCfg.Observability.Addr),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// HotReloadable reports whether every changed section can be applied without
// a restart.
func HotReloadable(changed []string) bool {
	for _, s := range changed {
		switch s {
		case "logging", "rate_limit":
		default:
			return false
		}
	}
	return true
}
