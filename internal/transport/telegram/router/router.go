// Package router turns inbound chat updates into serialized handler calls:
// rate-limit admission, then enqueue on the single worker, then a middleware
// chain around the matched handler.
package router

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lxpbot/internal/notify"
	"lxpbot/internal/queue"
	"lxpbot/internal/ratelimit"
	kit "lxpbot/internal/transport"
	logx "lxpbot/pkg/logx"
)

// TextKey is the rate-limit command key for non-command text.
const TextKey = "message"

const (
	defaultNoticeTimeout = 5 * time.Second
	maxNoticesInFlight   = 32
)

type Request struct {
	Update     kit.Update
	Chat       kit.ChatTarget
	UserID     int64
	Command    string // "/tasks"; empty for plain text
	Args       []string
	Text       string
	ReqID      string
	ReceivedAt time.Time
	Logger     logx.Logger
}

type Command struct {
	// Name without the leading slash.
	Name        string
	Description string
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Admitter decides whether a user may run a command now.
type Admitter interface {
	Admit(userID int64, command string) ratelimit.Decision
}

// Enqueuer accepts work for the serialized worker.
type Enqueuer interface {
	Submit(e queue.Entry) bool
}

type Router struct {
	log      logx.Logger
	admit    Admitter
	queue    Enqueuer
	notifier notify.Notifier
	menu     kit.CommandMenuUpdater

	mu       sync.RWMutex
	commands map[string]Command
	text     HandlerFunc
	timeout  time.Duration

	// Admission notices are sent off the dispatch path.
	noticeTimeout time.Duration
	noticeSem     chan struct{}
	notices       sync.WaitGroup
}

type Option func(*Router)

// WithMenu publishes the registered commands on SetCommands.
func WithMenu(u kit.CommandMenuUpdater) Option { return func(r *Router) { r.menu = u } }

// WithDefaultTimeout bounds handlers that set no Timeout.
func WithDefaultTimeout(d time.Duration) Option { return func(r *Router) { r.timeout = d } }

// WithNoticeTimeout bounds one rate-limit notice send.
func WithNoticeTimeout(d time.Duration) Option { return func(r *Router) { r.noticeTimeout = d } }

func New(log logx.Logger, admit Admitter, q Enqueuer, n notify.Notifier, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		log:      log.With(logx.String("comp", "router")),
		admit:    admit,
		queue:    q,
		notifier: n,
		commands: map[string]Command{},

		noticeTimeout: defaultNoticeTimeout,
		noticeSem:     make(chan struct{}, maxNoticesInFlight),
	}
	for _, o := range opts {
		o(r)
	}
	if r.noticeTimeout <= 0 {
		r.noticeTimeout = defaultNoticeTimeout
	}
	return r
}

// SetCommands replaces the registry. text handles non-command messages.
func (r *Router) SetCommands(ctx context.Context, cmds []Command, text HandlerFunc) {
	reg := make(map[string]Command, len(cmds))
	menu := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		reg[name] = c
		if c.Description != "" {
			menu = append(menu, kit.BotCommand{Command: name, Description: c.Description})
		}
	}
	sort.Slice(menu, func(i, j int) bool { return menu[i].Command < menu[j].Command })

	r.mu.Lock()
	r.commands = reg
	r.text = text
	r.mu.Unlock()

	if r.menu != nil {
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.menu.UpdateMenuCommands(mctx, menu); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	}
}

// DispatchLoop routes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("dispatcher started")
	defer r.log.Info("dispatcher stopped")
	defer r.notices.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// Route handles one update. Denied requests get the limiter's reason; an
// admitted request is enqueued, and a full queue drops it silently (the
// serializer's overload hook reports drops).
func (r *Router) Route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	req := &Request{
		Update:     up,
		Chat:       kit.ChatTarget{ChatID: msg.ChatID},
		UserID:     msg.ChatID,
		Text:       text,
		ReceivedAt: time.Now(),
	}

	r.mu.RLock()
	var h HandlerFunc
	timeout := r.timeout
	key := TextKey
	if strings.HasPrefix(text, "/") {
		name, args := parseCommand(text)
		cmd, ok := r.commands[name]
		if !ok {
			r.mu.RUnlock()
			r.log.Debug("unknown command ignored", logx.User(req.UserID), logx.String("cmd", name))
			return
		}
		req.Command = "/" + name
		req.Args = args
		key = req.Command
		h = cmd.Handle
		if cmd.Timeout > 0 {
			timeout = cmd.Timeout
		}
	} else {
		h = r.text
	}
	r.mu.RUnlock()
	if h == nil {
		return
	}

	d := r.admit.Admit(req.UserID, key)
	var texts []string
	if d.Warning != "" {
		texts = append(texts, d.Warning)
	}
	if !d.Allowed {
		r.notice(ctx, req.UserID, append(texts, d.Reason)...)
		return
	}
	r.notice(ctx, req.UserID, texts...)

	req.ReqID = uuid.NewString()
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.User(req.UserID),
		logx.String("cmd", key),
	)
	final := Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	r.queue.Submit(queue.Entry{
		UserID:     req.UserID,
		Name:       key,
		EnqueuedAt: req.ReceivedAt,
		Handler:    func(ctx context.Context) error { return final(ctx, req) },
	})
}

// parseCommand splits "/Cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), parts[1:]
}

// notice sends texts in order on a separate goroutine, bounded by
// noticeTimeout. When too many notices are in flight the new one is dropped.
func (r *Router) notice(ctx context.Context, userID int64, texts ...string) {
	if len(texts) == 0 {
		return
	}
	select {
	case r.noticeSem <- struct{}{}:
	default:
		r.log.Debug("notice dropped; too many in flight", logx.User(userID))
		return
	}
	r.notices.Add(1)
	go func() {
		defer func() {
			<-r.noticeSem
			r.notices.Done()
		}()
		nctx, cancel := context.WithTimeout(ctx, r.noticeTimeout)
		defer cancel()
		for _, t := range texts {
			if err := r.notifier.Notify(nctx, userID, notify.Text(t)); err != nil {
				r.log.Debug("notice failed", logx.User(userID), logx.Err(err))
				return
			}
		}
	}()
}
