package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDecodeYAMLAndJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "json",
			file: "config.json",
			body: `{"telegram":{"token":"x"},"lxp":{"endpoint":"http://api/graphql"},"rate_limit":{"max_requests":7,"commands":{"/tasks":2}}}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			body: "telegram:\n  token: x\nlxp:\n  endpoint: http://api/graphql\nrate_limit:\n  max_requests: 7\n  commands:\n    /tasks: 2\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tt.file, []byte(tt.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if err := Validate(cfg); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if cfg.RateLimit.MaxRequests != 7 || cfg.RateLimit.Commands["/tasks"] != 2 {
				t.Fatalf("unexpected rate_limit: %+v", cfg.RateLimit)
			}
		})
	}
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"telegram":{"tokn":"x"}}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.yml", []byte("plugins: {}\n")); err == nil {
		t.Fatal("expected unknown field error for yaml")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
	if _, err := Decode("c.yaml", []byte("lxp:\n  endpont: http://x\n")); err == nil {
		t.Fatal("expected nested unknown field error for yaml")
	}
	if _, err := Decode("c.yaml", []byte("telegram:\n  token: a\n---\ntelegram:\n  token: b\n")); err == nil {
		t.Fatal("expected error for a second yaml document")
	}
	if cfg, err := Decode("c.yaml", nil); err != nil || cfg == nil {
		t.Fatalf("empty yaml: cfg=%v err=%v", cfg, err)
	}
}

func TestResolveDurations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		tick    string
		want    time.Duration
		wantErr string
	}{
		{name: "blank uses default", tick: "", want: 150 * time.Millisecond},
		{name: "spaces use default", tick: "  ", want: 150 * time.Millisecond},
		{name: "explicit", tick: " 40ms ", want: 40 * time.Millisecond},
		{name: "zero rejected", tick: "0s", wantErr: "queue.tick: must be > 0"},
		{name: "negative rejected", tick: "-1s", wantErr: "queue.tick: must be > 0"},
		{name: "garbage rejected", tick: "soon", wantErr: `queue.tick: invalid duration "soon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rt, err := Resolve(&Config{Queue: QueueConfig{Tick: tt.tick}})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if rt.QueueTick != tt.want {
				t.Fatalf("tick = %v, want %v", rt.QueueTick, tt.want)
			}
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	rt, err := Resolve(&Config{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.RateWindow != time.Minute || rt.RateMax != 20 || rt.RateSweepInterval != 5*time.Minute {
		t.Fatalf("rate defaults: %+v", rt)
	}
	if rt.QueueCapacity != 100 || rt.QueueTick != 150*time.Millisecond {
		t.Fatalf("queue defaults: cap=%d tick=%v", rt.QueueCapacity, rt.QueueTick)
	}
	if rt.StaleAfter != 12*time.Hour || rt.SweepSpec != "0 */6 * * *" {
		t.Fatalf("auth defaults: %v %q", rt.StaleAfter, rt.SweepSpec)
	}
	if rt.FlushInterval != 30*time.Second {
		t.Fatalf("flush default: %v", rt.FlushInterval)
	}
	if rt.Location == nil || rt.Location.String() != DefaultTimezone {
		t.Fatalf("location: %v", rt.Location)
	}
	if rt.StorageDriver != "file" {
		t.Fatalf("storage driver: %q", rt.StorageDriver)
	}
}

func TestResolveCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Queue:     QueueConfig{Tick: "soon"},
		Reminder:  ReminderConfig{Timezone: "Mars/Olympus"},
		RateLimit: RateLimitConfig{Commands: map[string]int{"tasks": 1}},
		Storage:   &StorageConfig{Driver: "redis"},
	}
	_, err := Resolve(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"queue.tick", "reminder.timezone", "rate_limit.commands", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateRequiresToken(t *testing.T) {
	t.Parallel()
	if err := Validate(&Config{LXP: LXPConfig{Endpoint: "http://x"}}); err == nil {
		t.Fatal("expected missing token error")
	}
	if err := Validate(&Config{Telegram: TelegramConfig{Token: "t"}}); err == nil {
		t.Fatal("expected missing endpoint error")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{
		Logging:   LoggingConfig{Level: "debug"},
		RateLimit: RateLimitConfig{MaxRequests: 10},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !slices.Equal(changed, []string{"logging", "rate_limit"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if !HotReloadable(changed) {
		t.Fatal("logging+rate_limit should be hot reloadable")
	}
	if HotReloadable([]string{"logging", "storage"}) {
		t.Fatal("storage must require restart")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
		if m.Get().Logging.Level != "debug" {
			t.Fatal("config not committed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
