package app

import (
	"context"
	"strings"

	"lxpbot/internal/config"
	logx "lxpbot/pkg/logx"
)

// reloadLoop applies committed configs from the manager until ctx is done.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the hot-reloadable sections (logging, rate limits) to
// their components and warns about the rest.
func (a *App) applyConfig(prev, next *config.Config) []string {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return nil
	}
	changed := logx.String("changed", strings.Join(sections, ","))
	a.log.Debug("config change summary", append([]logx.Field{changed}, attrs...)...)

	rt, err := config.Resolve(next)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return nil
	}

	if a.logs != nil {
		a.logs.Apply(logConfig(next))
	}
	a.limiter.Apply(limiterConfig(rt))

	if !config.HotReloadable(sections) {
		var restart []string
		for _, s := range sections {
			if !config.HotReloadable([]string{s}) {
				restart = append(restart, s)
			}
		}
		a.log.Warn("config changed in sections that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	a.log.Info("config reloaded", append([]logx.Field{changed}, attrs...)...)
	return sections
}
