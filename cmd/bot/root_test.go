package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"lxpbot/internal/app"
)

func TestCheckConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
		wantOut string
	}{
		{
			name:    "valid yaml",
			file:    "config.yaml",
			body:    "telegram:\n  token: abc\nlxp:\n  endpoint: https://api.example/graphql\nstorage:\n  driver: sqlite\n  path: ./bot.db\n",
			wantOut: "storage:  sqlite (./bot.db)",
		},
		{
			name:    "missing token",
			file:    "notoken.json",
			body:    `{"lxp": {"endpoint": "https://api.example/graphql"}}`,
			wantErr: "telegram.token",
		},
		{
			name:    "unknown field",
			file:    "unknown.json",
			body:    `{"telegram": {"token": "x", "chat": 1}}`,
			wantErr: "unknown field",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := filepath.Join(dir, tt.file)
			if err := os.WriteFile(p, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			cmd := newRootCmd()
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{"check-config", "--config", p})
			err := cmd.Execute()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Fatalf("output %q missing %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestStopReason(t *testing.T) {
	t.Parallel()
	if got := stopReason(os.Interrupt); got != app.StopSIGINT {
		t.Fatalf("interrupt -> %q", got)
	}
	if got := stopReason(syscall.SIGTERM); got != app.StopSIGTERM {
		t.Fatalf("sigterm -> %q", got)
	}
	if got := stopReason(syscall.SIGHUP); got != app.StopUnknown {
		t.Fatalf("sighup -> %q", got)
	}
}
