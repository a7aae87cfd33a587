package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/nugget/relaybot/internal/config"
)

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		var out bytes.Buffer
		if err := run(context.Background(), &out, &out, args); err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(out.String(), "Usage: relaybot") {
			t.Errorf("run(%v) output = %q", args, out.String())
		}
	}
}

func TestRun_ArgumentErrors(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"-bogus"}, "unknown flag: -bogus"},
		{[]string{"-o", "yaml", "version"}, "unknown output format"},
		{[]string{"launch"}, "unknown command: launch"},
		{[]string{"ask"}, "usage: relaybot ask"},
		{[]string{"heavy"}, "usage: relaybot heavy"},
		{[]string{"-config", "/nonexistent/relaybot.yaml", "serve"}, "config file not found"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), &out, &out, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "relaybot ") {
		t.Errorf("version output = %q", out.String())
	}

	out.Reset()
	if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("version json: %v\n%s", err, out.String())
	}
	if info["version"] == "" || info["go_version"] == "" {
		t.Errorf("info = %v", info)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestServe_CredentialGuard(t *testing.T) {
	path := writeConfig(t, "gateway:\n  token: YOUR_BOT_TOKEN_HERE\n")

	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-config", path, "serve"})
	if err == nil {
		t.Fatal("serve started without credentials")
	}
	for _, want := range []string{"refusing to start", "gateway.token is not set", "llm.api_key is not set"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, want containing %q", err, want)
		}
	}
}

func TestInit(t *testing.T) {
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })

	dir := t.TempDir()
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"init", dir}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("config.yaml permissions = %o, want 0600", got)
	}
	if fi, err := os.Stat(filepath.Join(dir, "artifacts")); err != nil || !fi.IsDir() {
		t.Errorf("artifacts dir not created: %v", err)
	}

	// The written example parses and passes validation once the
	// credentials are supplied.
	t.Setenv("RELAYBOT_LLM_API_KEY", "k")
	t.Setenv("RELAYBOT_GATEWAY_TOKEN", "t")
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config invalid: %v", err)
	}

	// A second init keeps user edits.
	custom := []byte("log_level: debug\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), custom, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := runInit(&out, dir); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if !bytes.Equal(got, custom) {
		t.Error("init overwrote an existing config")
	}
}

// fakeModel serves chat completions from a script of replies.
func fakeModel(t *testing.T, replies ...string) *httptest.Server {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(n.Add(1)) - 1
		reply := "done"
		if i < len(replies) {
			reply = replies[i]
		}
		content, _ := json.Marshal(reply)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c%d","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`, i, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAsk_WithArtifact(t *testing.T) {
	srv := fakeModel(t,
		`{"create_artifact": {"filename": "hello.txt", "content": "hi there"}}`,
		"I made hello.txt for you.",
	)
	artifacts := filepath.Join(t.TempDir(), "artifacts")
	path := writeConfig(t, fmt.Sprintf(`
log_level: error
llm:
  base_url: %s
  api_key: test
artifacts:
  dir: %s
`, srv.URL, artifacts))

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", path, "ask", "make", "a", "file"}); err != nil {
		t.Fatalf("ask: %v\n%s", err, stderr.String())
	}
	if got := strings.TrimSpace(stdout.String()); got != "I made hello.txt for you." {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(stderr.String(), "artifact created: hello.txt (8 bytes") {
		t.Errorf("stderr = %q", stderr.String())
	}
	data, err := os.ReadFile(filepath.Join(artifacts, "hello.txt"))
	if err != nil || string(data) != "hi there" {
		t.Errorf("artifact = %q, %v", data, err)
	}
}

func TestAsk_RequiresAPIKey(t *testing.T) {
	path := writeConfig(t, "log_level: error\n")
	var out bytes.Buffer
	err := run(context.Background(), &out, &out, []string{"-config", path, "ask", "hi"})
	if err == nil || !strings.Contains(err.Error(), "llm.api_key is not set") {
		t.Errorf("err = %v", err)
	}
}

func TestHeavy_JSON(t *testing.T) {
	srv := fakeModel(t, "plan", "better plan", "no research needed", "draft", "final answer")
	path := writeConfig(t, fmt.Sprintf(`
log_level: error
llm:
  base_url: %s
  api_key: test
artifacts:
  dir: %s
`, srv.URL, t.TempDir()))

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", path, "-o", "json", "heavy", "explain"}); err != nil {
		t.Fatalf("heavy: %v\n%s", err, stderr.String())
	}

	var got struct {
		Final    string   `json:"final"`
		Research string   `json:"research"`
		Trail    []string `json:"trail"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout.String())
	}
	if got.Final != "final answer" || got.Research != "No research performed." {
		t.Errorf("run = %+v", got)
	}
	if lines := strings.Count(stderr.String(), "\n"); lines != len(got.Trail) {
		t.Errorf("stderr has %d lines, trail has %d", lines, len(got.Trail))
	}
}
