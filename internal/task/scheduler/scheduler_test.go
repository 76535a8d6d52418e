package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "lxpbot/pkg/logx"
)

func moscow(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestAddDailyNextInLocation(t *testing.T) {
	t.Parallel()
	loc := moscow(t)
	s := New(Config{Location: loc}, logx.Nop())
	noop := func(context.Context) error { return nil }

	if err := s.AddDaily("r", "09:05", 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, loc)
	next, err := s.Next("r", now)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 6, 2, 9, 5, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}

	// Same instant expressed in UTC still resolves against Moscow.
	next, _ = s.Next("r", time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)) // 08:00 MSK
	if h, m := next.Hour(), next.Minute(); h != 9 || m != 5 || next.Day() != 1 {
		t.Fatalf("next = %v", next)
	}
}

func TestAddReplacesByName(t *testing.T) {
	t.Parallel()
	s := New(Config{Location: time.UTC}, logx.Nop())
	noop := func(context.Context) error { return nil }
	_ = s.AddDaily("r", "14:30", 0, noop)
	_ = s.AddDaily("r", "09:00", 0, noop)

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "0 9 * * *" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if !s.Remove("r") || s.Remove("r") {
		t.Fatal("Remove should succeed once")
	}
	if _, err := s.Next("r", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Next after remove = %v", err)
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }
	tests := []struct {
		name string
		add  func() error
	}{
		{"empty name", func() error { return s.AddCron(" ", "* * * * *", 0, noop) }},
		{"nil job", func() error { return s.AddCron("x", "* * * * *", 0, nil) }},
		{"bad spec", func() error { return s.AddCron("x", "every tuesday", 0, noop) }},
		{"bad hour", func() error { return s.AddDaily("x", "24:00", 0, noop) }},
		{"bad format", func() error { return s.AddDaily("x", "0930", 0, noop) }},
	}
	for _, tt := range tests {
		if err := tt.add(); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestRunNowRecoversAndTimesOut(t *testing.T) {
	t.Parallel()
	s := New(Config{JobTimeout: 20 * time.Millisecond}, logx.Nop())
	_ = s.AddCron("panic", "@daily", 0, func(context.Context) error { panic("boom") })
	_ = s.AddCron("slow", "@daily", 0, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.RunNow("panic"); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if err := s.RunNow("slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("slow = %v, want deadline exceeded", err)
	}
	if err := s.RunNow("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing = %v", err)
	}
}

func TestStartTriggersJobs(t *testing.T) {
	s := New(Config{Location: time.UTC}, logx.Nop())
	fired := make(chan struct{}, 8)
	if err := s.AddCron("tick", "@every 1s", 0, func(context.Context) error {
		fired <- struct{}{}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if !s.Snapshot().Running {
		t.Fatal("snapshot should report running")
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := ParseHHMM("23:15")
	if err != nil || h != 23 || m != 15 {
		t.Fatalf("ParseHHMM = %d, %d, %v", h, m, err)
	}
	if _, _, err := ParseHHMM("7:5x"); err == nil {
		t.Fatal("expected error")
	}
}
