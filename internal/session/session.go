// Package session holds per-user authenticated sessions in memory and
// periodically merges them into durable storage.
package session

import (
	"time"

	"lxpbot/internal/storage"
)

// State is the position of a user in the login/reminder dialogue.
type State int

const (
	StateIdle State = iota
	StateWaitingIdentifier
	StateWaitingSecret
	StateWaitingReminderTime
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingIdentifier:
		return "waiting_identifier"
	case StateWaitingSecret:
		return "waiting_secret"
	case StateWaitingReminderTime:
		return "waiting_reminder_time"
	default:
		return "unknown"
	}
}

// JobHandle is a live reminder registration owned by a session.
type JobHandle interface {
	TimeOfDay() (hour, minute int)
	Cancel()
}

// Session is one user's state. It is copied in and out of Store; mutate it
// through Store.Update.
type Session struct {
	AccessToken   string
	SubjectID     string
	Credentials   *storage.Credentials
	LastRefreshed time.Time

	Reminder   JobHandle
	ReminderAt string

	State State
}

// HasCredentials reports whether the session can be refreshed unattended.
func (s Session) HasCredentials() bool {
	return s.Credentials != nil && s.Credentials.Identifier != "" && s.Credentials.Secret != ""
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool { return s.AccessToken != "" }

// Record converts s to its durable form.
func (s Session) Record() storage.SessionRecord {
	rec := storage.SessionRecord{
		AccessToken: s.AccessToken,
		SubjectID:   s.SubjectID,
		ReminderAt:  s.ReminderAt,
		State:       int(s.State),
	}
	if s.Credentials != nil {
		c := *s.Credentials
		rec.Credentials = &c
	}
	if !s.LastRefreshed.IsZero() {
		t := s.LastRefreshed
		rec.LastRefreshed = &t
	}
	return rec
}

// FromRecord rebuilds a session without a live reminder handle.
func FromRecord(rec storage.SessionRecord) Session {
	s := Session{
		AccessToken: rec.AccessToken,
		SubjectID:   rec.SubjectID,
		ReminderAt:  rec.ReminderAt,
		State:       State(rec.State),
	}
	if rec.Credentials != nil {
		c := *rec.Credentials
		s.Credentials = &c
	}
	if rec.LastRefreshed != nil {
		s.LastRefreshed = *rec.LastRefreshed
	}
	return s
}
