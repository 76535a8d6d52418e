// Package auth keeps session tokens fresh: an unattended periodic sweep and
// a reactive refresh-and-retry-once cascade around upstream calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"lxpbot/internal/eventbus"
	"lxpbot/internal/lxp"
	"lxpbot/internal/metrics"
	"lxpbot/internal/session"
	"lxpbot/internal/storage"
	logx "lxpbot/pkg/logx"
)

var (
	// ErrNotAuthenticated means the user has no session or no token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired means the session was evicted; the user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoCredentials means a refresh was needed but no credentials are stored.
	ErrNoCredentials = errors.New("no stored credentials")
	// ErrStaleRefresh marks an eviction caused by a failed refresh of an old
	// token, before any upstream call was made.
	ErrStaleRefresh = errors.New("stale token refresh failed")
)

// Authenticator exchanges credentials for a token. *lxp.Client implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, secret string) (lxp.Identity, error)
}

type Config struct {
	StaleAfter       time.Duration
	SweepConcurrency int
}

type Manager struct {
	cfg     Config
	store   *session.Store
	authn   Authenticator
	bus     eventbus.Bus
	log     logx.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

func NewManager(cfg Config, store *session.Store, authn Authenticator, bus eventbus.Bus, log logx.Logger, m *metrics.Metrics) *Manager {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 12 * time.Hour
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 2
	}
	if bus == nil {
		bus = eventbus.New()
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		authn:   authn,
		bus:     bus,
		log:     log.With(logx.String("comp", "auth")),
		metrics: m,
		now:     time.Now,
	}
}

// Refresh authenticates with the given credentials and stores the result on
// the user's session, creating it if needed (login path). On failure the
// session is left untouched.
func (m *Manager) Refresh(ctx context.Context, userID int64, identifier, secret string) (string, error) {
	sess, err := m.refresh(ctx, userID, storage.Credentials{Identifier: identifier, Secret: secret}, "login", true)
	if err != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeLoginFailed, UserID: userID, Err: err})
		return "", err
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeLogin, UserID: userID, Detail: identifier})
	return sess.AccessToken, nil
}

func (m *Manager) refresh(ctx context.Context, userID int64, creds storage.Credentials, trigger string, create bool) (session.Session, error) {
	id, err := m.authn.Authenticate(ctx, creds.Identifier, creds.Secret)
	m.metrics.Refresh(trigger, err == nil)
	if err != nil {
		return session.Session{}, err
	}

	now := m.now()
	apply := func(s *session.Session) {
		s.AccessToken = id.Token
		s.SubjectID = id.SubjectID
		c := creds
		s.Credentials = &c
		s.LastRefreshed = now
	}
	if create {
		return m.store.Update(userID, apply), nil
	}
	sess, ok := m.store.UpdateExisting(userID, apply)
	if !ok {
		// Logged out while the request was in flight.
		return session.Session{}, ErrNotAuthenticated
	}
	return sess, nil
}

// refreshStored refreshes using the credentials kept on the session.
func (m *Manager) refreshStored(ctx context.Context, userID int64, sess session.Session, trigger string) (session.Session, error) {
	if !sess.HasCredentials() {
		m.metrics.Refresh(trigger, false)
		return session.Session{}, ErrNoCredentials
	}
	ns, err := m.refresh(ctx, userID, *sess.Credentials, trigger, false)
	if err != nil {
		m.bus.Publish(eventbus.Event{Type: eventbus.TypeRefreshFailed, UserID: userID, Detail: trigger, Err: err})
		return session.Session{}, err
	}
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeRefreshed, UserID: userID, Detail: trigger})
	return ns, nil
}

// Sweep refreshes every session that has credentials. Failures are logged
// and never evict.
func (m *Manager) Sweep(ctx context.Context) error {
	start := m.now()
	ids := m.store.IDs()

	var (
		g  errgroup.Group
		ok = make(chan struct{}, len(ids))
	)
	g.SetLimit(m.cfg.SweepConcurrency)
	attempted := 0
	for _, id := range ids {
		sess, found := m.store.Get(id)
		if !found || !sess.HasCredentials() {
			continue
		}
		attempted++
		g.Go(func() error {
			if _, err := m.refreshStored(ctx, id, sess, "sweep"); err != nil {
				m.log.Warn("token refresh failed", logx.User(id), logx.Err(err))
				return nil
			}
			m.log.Debug("token refreshed", logx.User(id))
			ok <- struct{}{}
			return nil
		})
	}
	_ = g.Wait()
	close(ok)

	m.log.Info("refresh sweep done",
		logx.Int("sessions", len(ids)),
		logx.Int("attempted", attempted),
		logx.Int("refreshed", len(ok)),
		logx.Duration("took", m.now().Sub(start)),
	)
	return nil
}

// Stale reports whether the session's token is older than StaleAfter.
// A session that was never refreshed is not considered stale.
func (m *Manager) Stale(sess session.Session) bool {
	return !sess.LastRefreshed.IsZero() && m.now().Sub(sess.LastRefreshed) > m.cfg.StaleAfter
}

// Op is an upstream call made on behalf of a session.
type Op func(ctx context.Context, sess session.Session) error

type attempt int

const (
	firstAttempt attempt = iota
	retryAttempt
)

// Do runs op with a fresh session. A stale token is refreshed first. If op
// fails it is retried exactly once after a refresh. When a needed refresh or
// the retry fails the session is evicted and the returned error matches
// ErrSessionExpired.
func (m *Manager) Do(ctx context.Context, userID int64, op Op) error {
	sess, ok := m.store.Get(userID)
	if !ok || !sess.Authenticated() {
		return ErrNotAuthenticated
	}
	log := m.log.With(logx.User(userID))

	if m.Stale(sess) {
		ns, err := m.refreshStored(ctx, userID, sess, "stale")
		if err != nil {
			return m.Evict(userID, "stale_refresh_failed", fmt.Errorf("%w: %w", ErrStaleRefresh, err))
		}
		sess = ns
	}

	for a := firstAttempt; ; a++ {
		err := op(ctx, sess)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if a == retryAttempt {
			return m.Evict(userID, "retry_failed", err)
		}
		log.Warn("upstream call failed; refreshing", logx.Err(err))
		ns, rerr := m.refreshStored(ctx, userID, sess, "retry")
		if rerr != nil {
			return m.Evict(userID, "retry_refresh_failed", errors.Join(err, rerr))
		}
		sess = ns
	}
}

// Evict deletes the session (and its reminder) and returns an error that
// matches both ErrSessionExpired and cause.
func (m *Manager) Evict(userID int64, reason string, cause error) error {
	m.store.Delete(userID)
	m.metrics.Evicted(reason)
	m.bus.Publish(eventbus.Event{Type: eventbus.TypeEvicted, UserID: userID, Detail: reason, Err: cause})
	m.log.Warn("session evicted", logx.User(userID), logx.String("reason", reason), logx.Err(cause))
	return fmt.Errorf("%w: %w", ErrSessionExpired, cause)
}
