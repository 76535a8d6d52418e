// Package reminder keeps at most one daily reminder per user, firing at a
// wall-clock time in a fixed reference zone.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"lxpbot/internal/metrics"
	"lxpbot/internal/task/scheduler"
	logx "lxpbot/pkg/logx"
)

var ErrInvalidTime = errors.New("invalid time of day, expected HH:MM (00:00-23:59)")

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// IsValidTimeOfDay accepts exactly two-digit 24h "HH:MM".
func IsValidTimeOfDay(s string) bool { return timeOfDayRe.MatchString(s) }

// Task is what a reminder runs when it fires.
type Task func(ctx context.Context, userID int64) error

// Handle is a live registration. Cancel is idempotent.
type Handle struct {
	svc          *Service
	userID       int64
	name         string
	hour, minute int
	canceled     atomic.Bool
}

func (h *Handle) TimeOfDay() (int, int) { return h.hour, h.minute }

func (h *Handle) String() string { return fmt.Sprintf("%02d:%02d", h.hour, h.minute) }

func (h *Handle) Cancel() {
	if h == nil || !h.canceled.CompareAndSwap(false, true) {
		return
	}
	h.svc.release(h)
}

// Service maps users to their single active handle on top of the shared
// cron trigger service.
type Service struct {
	sched   *scheduler.Service
	log     logx.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	active map[int64]*Handle
	seq    atomic.Uint64
}

func New(sched *scheduler.Service, log logx.Logger, m *metrics.Metrics) *Service {
	return &Service{
		sched:   sched,
		log:     log.With(logx.String("comp", "reminder")),
		metrics: m,
		active:  map[int64]*Handle{},
	}
}

// Schedule replaces any reminder for userID with one firing daily at
// timeOfDay. The previous handle is canceled before the new one is returned.
func (s *Service) Schedule(userID int64, timeOfDay string, task Task) (*Handle, error) {
	if !IsValidTimeOfDay(timeOfDay) {
		return nil, ErrInvalidTime
	}
	if task == nil {
		return nil, errors.New("reminder task required")
	}
	h, _ := strconv.Atoi(timeOfDay[:2])
	m, _ := strconv.Atoi(timeOfDay[3:])

	handle := &Handle{
		svc:    s,
		userID: userID,
		name:   fmt.Sprintf("reminder:%d:%d", userID, s.seq.Add(1)),
		hour:   h,
		minute: m,
	}

	s.mu.Lock()
	prev := s.active[userID]
	s.active[userID] = handle
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	log := s.log.With(logx.User(userID), logx.String("at", timeOfDay))
	err := s.sched.AddDaily(handle.name, timeOfDay, 0, func(ctx context.Context) error {
		if handle.canceled.Load() {
			return nil
		}
		err := task(ctx, userID)
		if err != nil {
			s.metrics.ReminderFired("error")
			log.Warn("reminder task failed", logx.Err(err))
			return err
		}
		s.metrics.ReminderFired("ok")
		return nil
	})
	if err != nil {
		s.mu.Lock()
		if s.active[userID] == handle {
			delete(s.active, userID)
		}
		s.mu.Unlock()
		return nil, err
	}
	s.publishCount()
	log.Info("reminder scheduled", logx.String("job", handle.name))
	return handle, nil
}

// Cancel stops the user's reminder. It reports whether one was active.
func (s *Service) Cancel(userID int64) bool {
	s.mu.Lock()
	h := s.active[userID]
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h.Cancel()
	return true
}

// Active returns the user's current handle, if any.
func (s *Service) Active(userID int64) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.active[userID]
	return h, ok
}

func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Fire runs the user's reminder immediately (admin/testing path).
func (s *Service) Fire(userID int64) error {
	h, ok := s.Active(userID)
	if !ok {
		return scheduler.ErrNotFound
	}
	return s.sched.RunNow(h.name)
}

func (s *Service) release(h *Handle) {
	s.sched.Remove(h.name)
	s.mu.Lock()
	if s.active[h.userID] == h {
		delete(s.active, h.userID)
	}
	s.mu.Unlock()
	s.publishCount()
	s.log.Debug("reminder canceled", logx.User(h.userID), logx.String("job", h.name))
}

func (s *Service) publishCount() { s.metrics.SetActiveReminders(s.Count()) }
