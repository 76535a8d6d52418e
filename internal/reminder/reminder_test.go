package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"lxpbot/internal/task/scheduler"
	logx "lxpbot/pkg/logx"
)

func newService(t *testing.T) (*Service, *scheduler.Service) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	sched := scheduler.New(scheduler.Config{Location: loc}, logx.Nop())
	return New(sched, logx.Nop(), nil), sched
}

func TestIsValidTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want bool
	}{
		{"00:00", true},
		{"23:59", true},
		{"09:30", true},
		{"19:05", true},
		{"24:00", false},
		{"9:30", false},
		{"14:5", false},
		{"14:60", false},
		{"abc", false},
		{"", false},
		{" 09:30", false},
		{"09:30\n", false},
	}
	for _, tt := range tests {
		if got := IsValidTimeOfDay(tt.in); got != tt.want {
			t.Fatalf("IsValidTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRescheduleKeepsSingleHandle(t *testing.T) {
	t.Parallel()
	svc, sched := newService(t)
	noop := func(context.Context, int64) error { return nil }

	first, err := svc.Schedule(7, "14:30", noop)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Schedule(7, "09:00", noop)
	if err != nil {
		t.Fatal(err)
	}

	if !first.canceled.Load() {
		t.Fatal("previous handle not canceled")
	}
	if sched.Has(first.name) {
		t.Fatal("previous cron entry still registered")
	}
	if got := len(sched.Snapshot().Schedules); got != 1 {
		t.Fatalf("registered schedules = %d, want 1", got)
	}
	if h, m := second.TimeOfDay(); h != 9 || m != 0 {
		t.Fatalf("time of day = %02d:%02d", h, m)
	}
	next, err := sched.Next(second.name, time.Date(2024, 1, 10, 12, 0, 0, 0, sched.Location()))
	if err != nil {
		t.Fatal(err)
	}
	if next.Hour() != 9 || next.Minute() != 0 || next.Day() != 11 {
		t.Fatalf("next fire = %v", next)
	}
	if active, _ := svc.Active(7); active != second {
		t.Fatal("active handle mismatch")
	}
}

func TestScheduleRejectsInvalidTime(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	if _, err := svc.Schedule(1, "9:30", func(context.Context, int64) error { return nil }); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("err = %v", err)
	}
	if svc.Count() != 0 {
		t.Fatal("invalid schedule registered")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	svc, sched := newService(t)
	h, err := svc.Schedule(3, "08:15", func(context.Context, int64) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if !svc.Cancel(3) {
		t.Fatal("Cancel should report active reminder")
	}
	if svc.Cancel(3) {
		t.Fatal("second Cancel should be a no-op")
	}
	h.Cancel()
	if svc.Count() != 0 || len(sched.Snapshot().Schedules) != 0 {
		t.Fatal("reminder still registered")
	}
}

func TestFireRunsTaskForUser(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)
	var got int64
	if _, err := svc.Schedule(11, "07:00", func(_ context.Context, uid int64) error {
		got = uid
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Fire(11); err != nil {
		t.Fatal(err)
	}
	if got != 11 {
		t.Fatalf("task ran for %d", got)
	}
	if err := svc.Fire(12); !errors.Is(err, scheduler.ErrNotFound) {
		t.Fatalf("Fire unknown = %v", err)
	}
}

func TestCanceledHandleDoesNotRun(t *testing.T) {
	t.Parallel()
	svc, sched := newService(t)
	ran := false
	h, _ := svc.Schedule(5, "10:00", func(context.Context, int64) error { ran = true; return nil })
	name := h.name
	h.Cancel()
	if err := sched.RunNow(name); !errors.Is(err, scheduler.ErrNotFound) {
		t.Fatalf("RunNow after cancel = %v", err)
	}
	if ran {
		t.Fatal("canceled reminder ran")
	}
}
