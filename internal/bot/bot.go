// Package bot holds the conversation: command handlers, the login and
// reminder state machine, and the deadline check shared with reminders.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lxpbot/internal/auth"
	"lxpbot/internal/eventbus"
	"lxpbot/internal/lxp"
	"lxpbot/internal/notify"
	"lxpbot/internal/reminder"
	"lxpbot/internal/session"
	"lxpbot/internal/storage"
	"lxpbot/internal/transport/telegram/router"
	logx "lxpbot/pkg/logx"
)

// Upstream is the data half of the platform API.
type Upstream interface {
	Tasks(ctx context.Context, token, subjectID string) ([]lxp.Task, error)
	Notifications(ctx context.Context, token string, page, pageSize int) (lxp.NotificationPage, error)
}

type Deps struct {
	Store     *session.Store
	Auth      *auth.Manager
	Reminders *reminder.Service
	Upstream  Upstream
	Notifier  notify.Notifier
	Bus       eventbus.Bus
	Location  *time.Location
	Log       logx.Logger
}

type Bot struct {
	store     *session.Store
	auth      *auth.Manager
	reminders *reminder.Service
	upstream  Upstream
	notifier  notify.Notifier
	bus       eventbus.Bus
	loc       *time.Location
	log       logx.Logger

	now func() time.Time
}

func New(d Deps) *Bot {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Bus == nil {
		d.Bus = eventbus.New()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Bot{
		store:     d.Store,
		auth:      d.Auth,
		reminders: d.Reminders,
		upstream:  d.Upstream,
		notifier:  d.Notifier,
		bus:       d.Bus,
		loc:       d.Location,
		log:       d.Log.With(logx.String("comp", "bot")),
		now:       time.Now,
	}
}

// Commands returns the command table for the router.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "Авторизация на платформе", Handle: b.guard(b.handleStart)},
		{Name: "help", Description: "Инструкция по работе с ботом", Handle: b.guard(b.handleHelp)},
		{Name: "dev", Description: "Информация о создателе бота", Handle: b.guard(b.handleAbout)},
		{Name: "tasks", Description: "Текущие сроки заданий", Handle: b.guard(b.handleTasks)},
		{Name: "notifications", Description: "Уведомления о заданиях", Handle: b.guard(b.handleNotifications)},
		{Name: "reminder", Description: "Ежедневные напоминания", Handle: b.guard(b.handleReminder)},
		{Name: "stopreminder", Description: "Отключить напоминания", Handle: b.guard(b.handleStopReminder)},
		{Name: "logout", Description: "Выйти и удалить данные", Handle: b.guard(b.handleLogout)},
	}
}

// TextHandler handles non-command messages.
func (b *Bot) TextHandler() router.HandlerFunc { return b.guard(b.handleText) }

// OnOverload tells a user whose request was dropped by a full queue.
func (b *Bot) OnOverload(ctx context.Context, userID int64) {
	_ = b.notifier.Notify(ctx, userID, notify.Text(msgOverloaded))
}

// guard reports unexpected handler errors to the user. Cancellation is not
// reported.
func (b *Bot) guard(h router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		err := h(ctx, req)
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		_ = b.notifier.Notify(context.WithoutCancel(ctx), req.UserID, notify.Text(msgUnexpected))
		return err
	}
}

func (b *Bot) send(ctx context.Context, userID int64, msg notify.Message) error {
	return b.notifier.Notify(ctx, userID, msg)
}

func (b *Bot) authenticated(userID int64) (session.Session, bool) {
	s, ok := b.store.Get(userID)
	return s, ok && s.Authenticated()
}

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	if _, ok := b.authenticated(req.UserID); ok {
		return b.send(ctx, req.UserID, notify.HTML(msgInstructions))
	}
	b.store.Update(req.UserID, func(s *session.Session) {
		s.AccessToken = ""
		s.SubjectID = ""
		s.Credentials = nil
		s.State = session.StateWaitingIdentifier
	})
	return b.send(ctx, req.UserID, notify.Message{Sticker: welcomeSticker, Text: msgWelcome, HTML: true})
}

func (b *Bot) handleHelp(ctx context.Context, req *router.Request) error {
	return b.send(ctx, req.UserID, notify.HTML(msgInstructions))
}

func (b *Bot) handleAbout(ctx context.Context, req *router.Request) error {
	return b.send(ctx, req.UserID, notify.Message{Text: msgAbout, HTML: true, DisablePreview: true, Keyboard: true})
}

func (b *Bot) handleTasks(ctx context.Context, req *router.Request) error {
	if _, ok := b.authenticated(req.UserID); !ok {
		return b.send(ctx, req.UserID, notify.Text(msgNotAuthorized))
	}
	if err := b.send(ctx, req.UserID, notify.Text(msgLoadingTasks)); err != nil {
		return err
	}
	return b.CheckDeadlines(ctx, req.UserID)
}

// CheckDeadlines fetches the user's tasks through the refresh cascade and
// sends the upcoming deadlines. Reminders call it too.
func (b *Bot) CheckDeadlines(ctx context.Context, userID int64) error {
	if _, ok := b.store.Get(userID); !ok {
		return b.send(ctx, userID, notify.Text(msgNotAuthorizedLock))
	}

	var tasks []lxp.Task
	err := b.auth.Do(ctx, userID, func(ctx context.Context, s session.Session) error {
		var err error
		tasks, err = b.upstream.Tasks(ctx, s.AccessToken, s.SubjectID)
		return err
	})
	if err != nil {
		return b.reportAuthError(ctx, userID, err)
	}

	text, ok := FormatDeadlines(tasks, b.now(), b.loc)
	if !ok {
		return b.send(ctx, userID, notify.Text(msgNoDeadlines))
	}
	return b.send(ctx, userID, notify.HTML(text))
}

// reportAuthError turns cascade outcomes into user messages. Errors that
// were fully reported return nil.
func (b *Bot) reportAuthError(ctx context.Context, userID int64, err error) error {
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		msg := msgSessionAuthFailure
		if errors.Is(err, auth.ErrStaleRefresh) {
			msg = msgSessionExpired
		}
		return b.send(ctx, userID, notify.Message{Text: msg})
	case errors.Is(err, auth.ErrNotAuthenticated):
		return b.send(ctx, userID, notify.Text(msgNotAuthorizedLock))
	default:
		return err
	}
}

func (b *Bot) handleNotifications(ctx context.Context, req *router.Request) error {
	if _, ok := b.authenticated(req.UserID); !ok {
		return b.send(ctx, req.UserID, notify.Text(msgNotAuthorized))
	}
	if err := b.send(ctx, req.UserID, notify.Text(msgLoadingNotifications)); err != nil {
		return err
	}

	var page lxp.NotificationPage
	err := b.auth.Do(ctx, req.UserID, func(ctx context.Context, s session.Session) error {
		var err error
		page, err = b.upstream.Notifications(ctx, s.AccessToken, 1, 10)
		return err
	})
	if errors.Is(err, auth.ErrSessionExpired) || errors.Is(err, auth.ErrNotAuthenticated) {
		return b.reportAuthError(ctx, req.UserID, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		req.Logger.Warn("notifications fetch failed", logx.Err(err))
		return b.send(ctx, req.UserID, notify.Text(fmt.Sprintf(msgNotificationsFailed, err.Error())))
	}

	items := lxp.FilterAssignments(page.Items)
	if len(items) == 0 {
		return b.send(ctx, req.UserID, notify.HTML(msgNoNotifications))
	}
	return b.send(ctx, req.UserID, notify.HTML(FormatNotifications(items, b.loc)))
}

func (b *Bot) handleReminder(ctx context.Context, req *router.Request) error {
	if _, ok := b.authenticated(req.UserID); !ok {
		return b.send(ctx, req.UserID, notify.Text(msgNotAuthorized))
	}
	b.store.UpdateExisting(req.UserID, func(s *session.Session) { s.State = session.StateWaitingReminderTime })
	return b.send(ctx, req.UserID, notify.Text(msgAskReminder))
}

func (b *Bot) handleStopReminder(ctx context.Context, req *router.Request) error {
	s, ok := b.authenticated(req.UserID)
	if !ok {
		return b.send(ctx, req.UserID, notify.Text(msgNotAuthorized))
	}
	if s.Reminder == nil {
		return b.send(ctx, req.UserID, notify.Text(msgReminderNone))
	}
	var h session.JobHandle
	b.store.UpdateExisting(req.UserID, func(s *session.Session) {
		h = s.Reminder
		s.Reminder = nil
		s.ReminderAt = ""
	})
	// Cancel outside the store lock; it reaches into the scheduler.
	if h != nil {
		h.Cancel()
	}
	b.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderStop, UserID: req.UserID})
	return b.send(ctx, req.UserID, notify.Text(msgReminderStopped))
}

func (b *Bot) handleLogout(ctx context.Context, req *router.Request) error {
	if !b.store.Delete(req.UserID) {
		return b.send(ctx, req.UserID, notify.Message{Text: msgLogoutNotLoggedIn})
	}
	b.bus.Publish(eventbus.Event{Type: eventbus.TypeLogout, UserID: req.UserID})
	req.Logger.Info("user logged out")
	return b.send(ctx, req.UserID, notify.Message{Text: msgLoggedOut})
}

func (b *Bot) handleText(ctx context.Context, req *router.Request) error {
	s, _ := b.store.Get(req.UserID)
	switch s.State {
	case session.StateWaitingIdentifier:
		return b.acceptIdentifier(ctx, req)
	case session.StateWaitingSecret:
		return b.acceptSecret(ctx, req, s)
	case session.StateWaitingReminderTime:
		return b.acceptReminderTime(ctx, req)
	default:
		return b.send(ctx, req.UserID, notify.Text(msgUnknownInput))
	}
}

func (b *Bot) acceptIdentifier(ctx context.Context, req *router.Request) error {
	id, ok := ValidIdentifier(req.Text)
	if !ok {
		return b.send(ctx, req.UserID, notify.Message{Text: msgBadIdentifier})
	}
	b.store.Update(req.UserID, func(s *session.Session) {
		s.State = session.StateWaitingSecret
		s.Credentials = &storage.Credentials{Identifier: id}
	})
	return b.send(ctx, req.UserID, notify.Message{Text: msgAskSecret, HTML: true})
}

func (b *Bot) acceptSecret(ctx context.Context, req *router.Request, s session.Session) error {
	secret, ok := ValidSecret(req.Text)
	if !ok {
		return b.send(ctx, req.UserID, notify.Message{Text: msgShortSecret})
	}
	if s.Credentials == nil || s.Credentials.Identifier == "" {
		b.store.Delete(req.UserID)
		return b.send(ctx, req.UserID, notify.Message{Text: msgLoginFailed + msgBadPassword + msgStartOver})
	}
	if err := b.send(ctx, req.UserID, notify.Message{Text: msgChecking}); err != nil {
		return err
	}

	if _, err := b.auth.Refresh(ctx, req.UserID, s.Credentials.Identifier, secret); err != nil {
		if ctx.Err() != nil {
			return err
		}
		req.Logger.Warn("login failed", logx.Err(err))
		b.store.Delete(req.UserID)

		text := msgLoginFailed + msgBadPassword
		var gqlErr *lxp.GraphQLError
		if errors.As(err, &gqlErr) && gqlErr.Message != "" {
			text = msgLoginFailed + gqlErr.Message
		}
		return b.send(ctx, req.UserID, notify.Message{Text: text + msgStartOver})
	}

	b.store.UpdateExisting(req.UserID, func(s *session.Session) { s.State = session.StateIdle })
	req.Logger.Info("user logged in")
	if err := b.send(ctx, req.UserID, notify.HTML(msgLoggedIn)); err != nil {
		return err
	}
	return b.send(ctx, req.UserID, notify.HTML(msgInstructions))
}

func (b *Bot) acceptReminderTime(ctx context.Context, req *router.Request) error {
	at := req.Text
	if !reminder.IsValidTimeOfDay(at) {
		return b.send(ctx, req.UserID, notify.Text(msgBadReminderTime))
	}
	if err := b.attachReminder(req.UserID, at); err != nil {
		return err
	}
	b.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderSet, UserID: req.UserID, Detail: at})
	return b.send(ctx, req.UserID, notify.HTML(fmt.Sprintf(msgReminderSetFormat, at)))
}

// attachReminder registers a daily reminder and stores its handle on the
// session. If the session vanished meanwhile the handle is canceled.
func (b *Bot) attachReminder(userID int64, at string) error {
	h, err := b.reminders.Schedule(userID, at, b.CheckDeadlines)
	if err != nil {
		return err
	}
	if _, ok := b.store.UpdateExisting(userID, func(s *session.Session) {
		s.Reminder = h
		s.ReminderAt = at
		s.State = session.StateIdle
	}); !ok {
		h.Cancel()
		return auth.ErrNotAuthenticated
	}
	return nil
}

// RestoreReminders re-registers persisted reminders for authenticated
// sessions. Sessions with an unusable time lose it.
func (b *Bot) RestoreReminders() int {
	n := 0
	for _, id := range b.store.IDs() {
		s, ok := b.store.Get(id)
		if !ok || s.ReminderAt == "" || s.Reminder != nil {
			continue
		}
		if !s.Authenticated() {
			b.store.UpdateExisting(id, func(s *session.Session) { s.ReminderAt = "" })
			continue
		}
		if err := b.attachReminder(id, s.ReminderAt); err != nil {
			b.log.Warn("reminder restore failed", logx.User(id), logx.String("at", s.ReminderAt), logx.Err(err))
			if errors.Is(err, reminder.ErrInvalidTime) {
				b.store.UpdateExisting(id, func(s *session.Session) { s.ReminderAt = "" })
			}
			continue
		}
		n++
	}
	if n > 0 {
		b.log.Info("reminders restored", logx.Int("count", n))
	}
	return n
}
