package app

import (
	"lxpbot/internal/auth"
	"lxpbot/internal/config"
	"lxpbot/internal/lxp"
	"lxpbot/internal/notify"
	"lxpbot/internal/observability/httpserver"
	"lxpbot/internal/queue"
	"lxpbot/internal/ratelimit"
	"lxpbot/internal/storage"
	"lxpbot/internal/task/scheduler"
	kit "lxpbot/internal/transport"
	logx "lxpbot/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(rt config.Runtime) storage.Config {
	return storage.Config{Driver: rt.StorageDriver, Path: rt.StoragePath, BusyTimeout: rt.StorageBusyTimeout}
}

func limiterConfig(rt config.Runtime) ratelimit.Config {
	cmds := make(map[string]int, len(rt.RateCommands))
	for k, v := range rt.RateCommands {
		cmds[k] = v
	}
	return ratelimit.Config{
		Window:        rt.RateWindow,
		MaxRequests:   rt.RateMax,
		SweepInterval: rt.RateSweepInterval,
		Commands:      cmds,
	}
}

func queueConfig(rt config.Runtime) queue.Config {
	return queue.Config{Capacity: rt.QueueCapacity, Tick: rt.QueueTick, OverloadNotifyEvery: rt.OverloadNotifyEvery}
}

func schedulerConfig(rt config.Runtime) scheduler.Config {
	return scheduler.Config{Location: rt.Location, JobTimeout: rt.JobTimeout}
}

func authConfig(rt config.Runtime) auth.Config {
	return auth.Config{StaleAfter: rt.StaleAfter, SweepConcurrency: rt.SweepConcurrency}
}

func lxpConfig(rt config.Runtime) lxp.Config {
	return lxp.Config{Endpoint: rt.LXPEndpoint, Timeout: rt.LXPTimeout, TaskLinkBase: rt.TaskLinkBase}
}

func notifyConfig(rt config.Runtime, kb kit.Keyboard) notify.Config {
	return notify.Config{RatePerSec: rt.NotifyRatePerSec, Keyboard: kb}
}

func observabilityConfig(cfg *config.Config) (httpserver.Config, bool) {
	o := cfg.Observability
	addr := o.Addr
	if addr == "" {
		addr = config.DefaultObserveAddr
	}
	return httpserver.Config{Addr: addr, Pprof: o.Pprof}, o.Enabled
}
