package auth

import (
	"context"

	"lxpbot/internal/task/scheduler"
)

// SweepJobName is the scheduler entry for the periodic refresh.
const SweepJobName = "auth.sweep"

// RegisterSweep installs the sweep on sched under spec (cron syntax).
func (m *Manager) RegisterSweep(sched *scheduler.Service, spec string) error {
	return sched.AddCron(SweepJobName, spec, 0, func(ctx context.Context) error {
		return m.Sweep(ctx)
	})
}
