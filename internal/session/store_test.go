package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lxpbot/internal/storage"
	logx "lxpbot/pkg/logx"
)

type fakeHandle struct {
	h, m     int
	canceled int
}

func (f *fakeHandle) TimeOfDay() (int, int) { return f.h, f.m }
func (f *fakeHandle) Cancel()               { f.canceled++ }

func TestDeleteCancelsReminder(t *testing.T) {
	t.Parallel()
	s := NewStore()
	h := &fakeHandle{h: 9}
	s.Put(1, Session{AccessToken: "tok", Reminder: h, ReminderAt: "09:00"})

	if !s.Delete(1) {
		t.Fatal("Delete should report existing session")
	}
	if h.canceled != 1 {
		t.Fatalf("reminder canceled %d times", h.canceled)
	}
	if _, ok := s.Get(1); ok {
		t.Fatal("session still present")
	}
	if s.Delete(1) {
		t.Fatal("second Delete should report missing")
	}
	if h.canceled != 1 {
		t.Fatal("second Delete must not cancel again")
	}
}

func TestUpdateCreatesAndUpdateExistingDoesNot(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if _, ok := s.UpdateExisting(5, func(*Session) {}); ok {
		t.Fatal("UpdateExisting created a session")
	}
	got := s.Update(5, func(sess *Session) { sess.State = StateWaitingIdentifier })
	if got.State != StateWaitingIdentifier {
		t.Fatalf("state = %v", got.State)
	}
	got, ok := s.UpdateExisting(5, func(sess *Session) { sess.State = StateIdle })
	if !ok || got.State != StateIdle {
		t.Fatalf("UpdateExisting = %+v, %v", got, ok)
	}
}

func TestRecordRoundTripDropsHandle(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	in := Session{
		AccessToken:   "tok",
		SubjectID:     "sub",
		Credentials:   &storage.Credentials{Identifier: "a@b.cd", Secret: "pass"},
		LastRefreshed: at,
		Reminder:      &fakeHandle{},
		ReminderAt:    "07:30",
		State:         StateWaitingReminderTime,
	}
	out := FromRecord(in.Record())
	if out.Reminder != nil {
		t.Fatal("handle must not survive persistence")
	}
	if out.AccessToken != "tok" || out.SubjectID != "sub" || out.ReminderAt != "07:30" ||
		!out.LastRefreshed.Equal(at) || out.State != StateWaitingReminderTime || !out.HasCredentials() {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	in.Credentials.Secret = "changed"
	if out.Credentials.Secret != "pass" {
		t.Fatal("credentials must be copied")
	}
}

func newFileBackend(t *testing.T, dir string) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFlushKeepsKeysOnlyOnDisk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newFileBackend(t, t.TempDir())
	// Another writer put key 42 on disk; this process never loaded it.
	if err := backend.MergeSessions(ctx, map[int64]storage.SessionRecord{42: {AccessToken: "other"}}, nil); err != nil {
		t.Fatal(err)
	}

	s := NewStore()
	s.Put(1, Session{AccessToken: "mine"})
	f := NewFlusher(s, backend, time.Hour, logx.Nop(), nil)
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := backend.LoadSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got[42].AccessToken != "other" {
		t.Fatal("full overwrite lost the out-of-band key")
	}
	if got[1].AccessToken != "mine" {
		t.Fatal("in-memory session not flushed")
	}
}

func TestFlushPropagatesExplicitDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newFileBackend(t, t.TempDir())
	s := NewStore()
	f := NewFlusher(s, backend, time.Hour, logx.Nop(), nil)

	s.Put(1, Session{AccessToken: "a"})
	if err := f.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	s.Delete(1)
	s.Put(2, Session{AccessToken: "b"})
	if err := f.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := backend.LoadSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got[1]; ok {
		t.Fatal("deleted key 1 still on disk")
	}
	if got[2].AccessToken != "b" {
		t.Fatal("key 2 missing")
	}
	if len(s.tombstones) != 0 {
		t.Fatalf("tombstones not cleared: %v", s.tombstones)
	}
}

func TestDeleteLostBeforeFlushResurrectsOnRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	backend := newFileBackend(t, dir)

	first := NewStore()
	f1 := NewFlusher(first, backend, time.Hour, logx.Nop(), nil)
	first.Put(1, Session{AccessToken: "a"})
	if err := f1.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	first.Delete(1)
	// Process dies here: the tombstone never reaches disk.

	restarted := NewStore()
	f2 := NewFlusher(restarted, newFileBackend(t, dir), time.Hour, logx.Nop(), nil)
	if _, err := f2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := restarted.Get(1); !ok {
		t.Fatal("expected deleted key to come back after restart")
	}
}

type failingBackend struct{ storage.Store }

func (failingBackend) MergeSessions(context.Context, map[int64]storage.SessionRecord, []int64) error {
	return errors.New("disk full")
}

func TestFlushFailureKeepsTombstones(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Put(1, Session{})
	s.Delete(1)
	f := NewFlusher(s, failingBackend{}, time.Hour, logx.Nop(), nil)
	if err := f.Flush(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := s.tombstones[1]; !ok {
		t.Fatal("tombstone dropped after failed flush")
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "data")
	backend := newFileBackend(t, dir)
	s := NewStore()
	s.Put(3, Session{AccessToken: "late"})
	f := NewFlusher(s, backend, time.Hour, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.Run(ctx)
	}()
	cancel()
	<-done

	got, err := backend.LoadSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got[3].AccessToken != "late" {
		t.Fatal("final flush did not run")
	}
}
