package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "lxpbot/pkg/logx"
)

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

type Config struct {
	// Location for cron evaluation. Nil means time.Local.
	Location *time.Location
	// JobTimeout bounds every run unless the schedule sets its own. 0 disables.
	JobTimeout time.Duration
}

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type Service struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	defs map[string]*scheduleDef

	parser cron.Parser
	c      *cron.Cron

	baseCtx context.Context
	cancel  context.CancelFunc
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
