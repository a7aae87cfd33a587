// Package config handles relaybot configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nugget/relaybot/internal/toolcall"
)

// DefaultSearchPaths returns the config file search order used when no
// explicit -config path is given: ./config.yaml,
// ~/.config/relaybot/config.yaml, /etc/relaybot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "relaybot", "config.yaml"))
	}

	return append(paths, "/etc/relaybot/config.yaml")
}

// FindConfig locates a config file. An explicit path must exist;
// otherwise the first existing entry of DefaultSearchPaths wins.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all relaybot configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Heavy     HeavyConfig     `yaml:"heavy"`
	Tools     ToolsConfig     `yaml:"tools"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	LogLevel  string          `yaml:"log_level"`
}

// LLMConfig describes the single OpenAI-compatible completion endpoint.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	// MaxTokens is deliberately huge by default; the provider clamps it
	// to whatever the model actually supports.
	MaxTokens  int64 `yaml:"max_tokens"`
	TimeoutSec int   `yaml:"timeout_sec"`
}

// Timeout returns the per-request timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// AgentConfig controls the conversation orchestrator.
type AgentConfig struct {
	// Dialect selects the tool-call wire format the system prompt
	// teaches: "json" or "tagged".
	Dialect string `yaml:"dialect"`
	// MaxToolRounds bounds tool calls per turn. Nil means 25; an
	// explicit zero means unbounded.
	MaxToolRounds *int `yaml:"max_tool_rounds"`
	// TurnTimeoutSec bounds one inbound message end to end.
	TurnTimeoutSec int `yaml:"turn_timeout_sec"`
}

// ToolRounds returns the effective tool-round limit.
func (c AgentConfig) ToolRounds() int {
	if c.MaxToolRounds == nil {
		return 25
	}
	return *c.MaxToolRounds
}

// HeavyConfig controls the multi-stage heavy-mode pipeline.
type HeavyConfig struct {
	// Critic enables the plan-refinement stage. Nil means enabled.
	Critic *bool `yaml:"critic"`
}

// CriticEnabled reports whether the five-stage form is configured.
func (c HeavyConfig) CriticEnabled() bool {
	return c.Critic == nil || *c.Critic
}

// ToolsConfig groups per-tool settings.
type ToolsConfig struct {
	Python PythonConfig `yaml:"python"`
	Search SearchConfig `yaml:"search"`
	Fetch  FetchConfig  `yaml:"fetch"`
}

// PythonConfig configures execute_python. The subprocess runs with the
// host's privileges; only the timeout constrains it.
type PythonConfig struct {
	Command        string `yaml:"command"`
	TimeoutSec     int    `yaml:"timeout_sec"`
	MaxOutputBytes int    `yaml:"max_output_bytes"`
}

// SearchConfig configures the web_search family of tools.
type SearchConfig struct {
	Provider     string        `yaml:"provider"` // "searxng" or "brave"
	SearXNG      SearXNGConfig `yaml:"searxng"`
	Brave        BraveConfig   `yaml:"brave"`
	ContentChars int           `yaml:"content_chars"`
	// XQualifier is appended to x_search queries.
	XQualifier  string `yaml:"x_qualifier"`
	Concurrency int    `yaml:"concurrency"`
}

// SearXNGConfig points at a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// FetchConfig configures page fetching for fetch_url and search results.
type FetchConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
	MaxChars   int `yaml:"max_chars"`
}

// ArtifactsConfig selects the artifact store backend.
type ArtifactsConfig struct {
	Backend string `yaml:"backend"` // "dir" or "sqlite"
	Dir     string `yaml:"dir"`
	DBPath  string `yaml:"db_path"`
}

// GatewayConfig configures the WebSocket endpoint platform adapters
// connect to.
type GatewayConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
	// Token is the bot credential adapters must present.
	Token           string `yaml:"token"`
	MaxMessageChars int    `yaml:"max_message_chars"`
}

// Load reads configuration from a YAML file. Environment references
// such as ${RELAYBOT_API_KEY} are expanded before parsing, and defaults
// are applied to every unset field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://samuraiapi.in/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "xai/grok-4"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 999999999
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 300
	}

	if c.Agent.Dialect == "" {
		c.Agent.Dialect = "json"
	}
	if c.Agent.TurnTimeoutSec == 0 {
		c.Agent.TurnTimeoutSec = 600
	}

	if c.Tools.Python.Command == "" {
		c.Tools.Python.Command = "python3"
	}
	if c.Tools.Python.TimeoutSec == 0 {
		c.Tools.Python.TimeoutSec = 120
	}
	if c.Tools.Python.MaxOutputBytes == 0 {
		c.Tools.Python.MaxOutputBytes = 100 * 1024
	}
	if c.Tools.Search.Provider == "" {
		c.Tools.Search.Provider = "searxng"
	}
	if c.Tools.Search.ContentChars == 0 {
		c.Tools.Search.ContentChars = 2000
	}
	if c.Tools.Search.XQualifier == "" {
		c.Tools.Search.XQualifier = "site:x.com"
	}
	if c.Tools.Search.Concurrency == 0 {
		c.Tools.Search.Concurrency = 4
	}
	if c.Tools.Fetch.TimeoutSec == 0 {
		c.Tools.Fetch.TimeoutSec = 10
	}
	if c.Tools.Fetch.MaxChars == 0 {
		c.Tools.Fetch.MaxChars = 4000
	}

	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "dir"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "artifacts"
	}
	if c.Artifacts.DBPath == "" {
		c.Artifacts.DBPath = "artifacts.db"
	}
	c.Artifacts.Dir = expandHome(c.Artifacts.Dir)
	c.Artifacts.DBPath = expandHome(c.Artifacts.DBPath)

	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8090
	}
	if c.Gateway.Path == "" {
		c.Gateway.Path = "/gateway"
	}
	if c.Gateway.MaxMessageChars == 0 {
		c.Gateway.MaxMessageChars = 2000
	}
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// placeholderToken is the value shipped in example configs; it counts
// as unset.
const placeholderToken = "YOUR_BOT_TOKEN_HERE"

// Validate checks the settings required to run the bot. It reports
// every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if tok := strings.TrimSpace(c.Gateway.Token); tok == "" || tok == placeholderToken {
		errs = append(errs, errors.New("gateway.token is not set"))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is not set"))
	}
	if _, err := toolcall.ParseDialect(c.Agent.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("agent.dialect: %w", err))
	}
	switch c.Artifacts.Backend {
	case "dir", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("artifacts.backend %q is invalid (want dir or sqlite)", c.Artifacts.Backend))
	}
	if c.Agent.ToolRounds() < 0 {
		errs = append(errs, errors.New("agent.max_tool_rounds must not be negative"))
	}

	return errors.Join(errs...)
}
