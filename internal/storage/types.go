package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage. Driver "" or "none" disables persistence.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Credentials are the login pair kept for unattended refresh.
type Credentials struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// SessionRecord is the durable form of a session. Live reminder handles are
// not persisted; ReminderAt is enough to re-register them at startup.
type SessionRecord struct {
	AccessToken   string       `json:"access_token,omitempty"`
	SubjectID     string       `json:"subject_id,omitempty"`
	Credentials   *Credentials `json:"credentials,omitempty"`
	LastRefreshed *time.Time   `json:"last_refreshed,omitempty"`
	ReminderAt    string       `json:"reminder_at,omitempty"`
	State         int          `json:"state,omitempty"`
}

// AuditEntry records a session lifecycle event (login, logout, eviction...).
type AuditEntry struct {
	At     time.Time `json:"at"`
	UserID int64     `json:"user_id"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
	Error  string    `json:"error,omitempty"`
}
