package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("RELAYBOT_TEST_KEY", "secret123")
	path := writeConfig(t, "llm:\n  api_key: ${RELAYBOT_TEST_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.LLM.APIKey, "secret123")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "agent:\n  dialect: tagged\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Agent.Dialect != "tagged" {
		t.Errorf("dialect = %q, want tagged", cfg.Agent.Dialect)
	}
	if cfg.Agent.ToolRounds() != 25 {
		t.Errorf("max_tool_rounds = %d, want 25", cfg.Agent.ToolRounds())
	}
	if cfg.Tools.Python.TimeoutSec != 120 {
		t.Errorf("python timeout = %d, want 120", cfg.Tools.Python.TimeoutSec)
	}
	if cfg.LLM.MaxTokens != 999999999 {
		t.Errorf("max_tokens = %d, want 999999999", cfg.LLM.MaxTokens)
	}
	if cfg.Artifacts.Dir != "artifacts" {
		t.Errorf("artifacts dir = %q, want artifacts", cfg.Artifacts.Dir)
	}
	if !cfg.Heavy.CriticEnabled() {
		t.Error("critic stage should default to enabled")
	}
}

func TestLoad_CriticDisabled(t *testing.T) {
	path := writeConfig(t, "heavy:\n  critic: false\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Heavy.CriticEnabled() {
		t.Error("critic: false should disable the critic stage")
	}
}

func TestLoad_UnboundedToolRounds(t *testing.T) {
	path := writeConfig(t, "agent:\n  max_tool_rounds: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Agent.ToolRounds(); got != 0 {
		t.Errorf("ToolRounds() = %d, want 0 (unbounded)", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name: "valid",
			mutate: func(c *Config) {
				c.Gateway.Token = "tok"
				c.LLM.APIKey = "key"
			},
		},
		{
			name:    "missing credentials",
			mutate:  func(c *Config) {},
			wantErr: []string{"gateway.token", "llm.api_key"},
		},
		{
			name: "placeholder token",
			mutate: func(c *Config) {
				c.Gateway.Token = "YOUR_BOT_TOKEN_HERE"
				c.LLM.APIKey = "key"
			},
			wantErr: []string{"gateway.token"},
		},
		{
			name: "bad dialect and backend",
			mutate: func(c *Config) {
				c.Gateway.Token = "tok"
				c.LLM.APIKey = "key"
				c.Agent.Dialect = "yaml"
				c.Artifacts.Backend = "s3"
			},
			wantErr: []string{"agent.dialect", "artifacts.backend"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" trace ", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_RendersTrace(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "trace")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Log(t.Context(), LevelTrace, "wire payload")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace level not renamed: %q", buf.String())
	}
}

func TestLoad_ExpandsHomeInArtifactPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "artifacts:\n  dir: ~/relaybot/files\n  db_path: /var/lib/relaybot.db\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "relaybot", "files"); cfg.Artifacts.Dir != want {
		t.Errorf("Artifacts.Dir = %q, want %q", cfg.Artifacts.Dir, want)
	}
	if cfg.Artifacts.DBPath != "/var/lib/relaybot.db" {
		t.Errorf("Artifacts.DBPath = %q", cfg.Artifacts.DBPath)
	}
}
