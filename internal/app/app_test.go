package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lxpbot/internal/config"
	"lxpbot/internal/queue"
	"lxpbot/internal/ratelimit"
	rtsup "lxpbot/internal/runtime/supervisor"
	kit "lxpbot/internal/transport"
	logx "lxpbot/pkg/logx"
)

type sent struct {
	chat int64
	text string
	opt  kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	out     chan<- kit.Update
	sent    []sent
	menu    []kit.BotCommand
	stopped bool
	started chan struct{}
	// block, when set, holds SendText until closed or ctx is done.
	block chan struct{}
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{started: make(chan struct{})} }

func (f *fakeAdapter) Start(_ context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	close(f.started)
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{chat: to.ChatID, text: text}
	if opt != nil {
		s.opt = *opt
	}
	f.sent = append(f.sent, s)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) SendSticker(context.Context, kit.ChatTarget, string) error { return nil }

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) snapshot() ([]sent, []kit.BotCommand, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...), append([]kit.BotCommand(nil), f.menu...), f.stopped
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func newTestApp(t *testing.T) (*App, *fakeAdapter) {
	t.Helper()
	data := filepath.ToSlash(t.TempDir())
	path := writeConfig(t, `{
  "telegram": {"token": "test"},
  "lxp": {"endpoint": "http://127.0.0.1:1/graphql"},
  "queue": {"tick": "10ms"},
  "session": {"flush_interval": "50ms"},
  "storage": {"driver": "file", "path": "`+data+`"}
}`)
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fa := newFakeAdapter()
	a, err := build(cfgm, cfg, rt, nil, logx.Nop(), fa)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return a, fa
}

func TestAppRoutesCommandEndToEnd(t *testing.T) {
	a, fa := newTestApp(t)
	if err := a.health(); err == nil {
		t.Fatalf("health before start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.health(); err != nil {
		t.Fatalf("health after start: %v", err)
	}
	<-fa.started
	fa.out <- kit.Update{Message: &kit.Message{ID: 1, ChatID: 42, FromID: 42, Text: "/help"}}

	deadline := time.Now().Add(3 * time.Second)
	var got []sent
	for time.Now().Before(deadline) {
		if got, _, _ = fa.snapshot(); len(got) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(got) == 0 {
		t.Fatalf("no reply to /help")
	}
	if got[0].chat != 42 || !strings.Contains(got[0].text, "/tasks") {
		t.Fatalf("unexpected reply: %+v", got[0])
	}
	if got[0].opt.ParseMode != kit.ParseModeHTML || len(got[0].opt.Keyboard) == 0 {
		t.Fatalf("reply should be HTML with the main keyboard: %+v", got[0].opt)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_, menu, stopped := fa.snapshot()
	if !stopped {
		t.Fatalf("adapter not stopped")
	}
	if len(menu) != 8 {
		t.Fatalf("menu = %d commands, want 8", len(menu))
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done not closed after Stop")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop()}
	if err := a.Stop(context.Background(), StopUnknown); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if a.Err() != nil {
		t.Fatalf("Err should be nil")
	}
}

func TestApplyConfigHotReloadsRateLimit(t *testing.T) {
	t.Parallel()
	lim := ratelimit.New(ratelimit.Config{MaxRequests: 10}, logx.Nop(), nil)
	a := &App{log: logx.Nop(), limiter: lim}

	prev := &config.Config{
		LXP:       config.LXPConfig{Endpoint: "http://x"},
		RateLimit: config.RateLimitConfig{MaxRequests: 10},
	}
	next := *prev
	next.RateLimit = config.RateLimitConfig{MaxRequests: 1}
	next.Queue = config.QueueConfig{Capacity: 5}

	changed := a.applyConfig(prev, &next)
	if diff := cmp.Diff([]string{"queue", "rate_limit"}, changed); diff != "" {
		t.Fatalf("changed sections (-want +got):\n%s", diff)
	}
	if d := lim.Admit(1, "/tasks"); !d.Allowed {
		t.Fatalf("first request denied: %+v", d)
	}
	if d := lim.Admit(1, "/tasks"); d.Allowed {
		t.Fatalf("second request allowed after limit dropped to 1")
	}
}

func TestApplyConfigNoChanges(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop()}
	cfg := &config.Config{}
	if got := a.applyConfig(cfg, cfg); got != nil {
		t.Fatalf("changed = %v, want nil", got)
	}
}

func TestOverloadNoticeDoesNotBlockSubmit(t *testing.T) {
	a, fa := newTestApp(t)
	fa.block = make(chan struct{})
	a.sup = rtsup.New(context.Background(), rtsup.WithLogger(logx.Nop()))
	defer a.sup.Cancel()

	returned := make(chan struct{})
	go func() {
		a.queue.OnOverload(queue.Entry{UserID: 7})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("overload hook blocked on a slow send")
	}

	close(fa.block)
	deadline := time.Now().Add(3 * time.Second)
	var got []sent
	for time.Now().Before(deadline) {
		if got, _, _ = fa.snapshot(); len(got) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(got) != 1 || got[0].chat != 7 {
		t.Fatalf("overload notice = %+v, want one send to chat 7", got)
	}
	a.sup.Cancel()
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.sup.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
