package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/relaybot/internal/agent"
	"github.com/nugget/relaybot/internal/artifact"
	"github.com/nugget/relaybot/internal/config"
	"github.com/nugget/relaybot/internal/conversation"
	"github.com/nugget/relaybot/internal/fetch"
	"github.com/nugget/relaybot/internal/heavy"
	"github.com/nugget/relaybot/internal/llm"
	"github.com/nugget/relaybot/internal/search"
	"github.com/nugget/relaybot/internal/toolcall"
	"github.com/nugget/relaybot/internal/tools"
)

// app holds the components shared by serve, ask and heavy.
type app struct {
	llm       *llm.Client
	registry  *tools.Registry
	artifacts artifact.Store
	convs     *conversation.MemoryStore
	loop      *agent.Loop
	heavy     *heavy.Pipeline
}

// newApp builds the LLM client, tools, conversation store, agent loop and
// heavy-mode pipeline from cfg. Close releases the artifact store.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	dialect, err := toolcall.ParseDialect(cfg.Agent.Dialect)
	if err != nil {
		return nil, fmt.Errorf("agent.dialect: %w", err)
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout(),
	}, logger)

	store, err := artifact.Open(cfg.Artifacts.Backend, cfg.Artifacts.Dir, cfg.Artifacts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	searchMgr := search.NewManager(cfg.Tools.Search.Provider, logger)
	if cfg.Tools.Search.SearXNG.URL != "" {
		searchMgr.Register(search.NewSearXNG(cfg.Tools.Search.SearXNG.URL))
	}
	if cfg.Tools.Search.Brave.APIKey != "" {
		searchMgr.Register(search.NewBrave(cfg.Tools.Search.Brave.APIKey))
	}
	if !searchMgr.Configured() {
		logger.Warn("no search provider configured; search tools will report errors")
	} else {
		logger.Info("search providers registered", "providers", searchMgr.Providers(), "primary", cfg.Tools.Search.Provider)
	}

	fetcher := fetch.New(time.Duration(cfg.Tools.Fetch.TimeoutSec)*time.Second, cfg.Tools.Fetch.MaxChars, logger)
	collector := search.NewCollector(searchMgr, fetcher, cfg.Tools.Search.ContentChars, cfg.Tools.Search.Concurrency, logger)

	reg := tools.NewRegistry(logger)
	reg.RegisterSearchTools(collector, cfg.Tools.Search.XQualifier)
	reg.RegisterFetchTool(fetcher)
	reg.RegisterPythonTool(tools.NewPython(tools.PythonConfig{
		Command:        cfg.Tools.Python.Command,
		Timeout:        time.Duration(cfg.Tools.Python.TimeoutSec) * time.Second,
		MaxOutputBytes: cfg.Tools.Python.MaxOutputBytes,
	}, logger))
	reg.RegisterArtifactTool(store)

	convs := conversation.NewMemoryStore()
	loop := agent.NewLoop(agent.Config{
		Dialect:       dialect,
		MaxToolRounds: cfg.Agent.ToolRounds(),
	}, llmClient, convs, reg, store, logger)

	pipeline := heavy.New(heavy.Config{SkipCritic: !cfg.Heavy.CriticEnabled()}, llmClient, reg, logger)

	logger.Info("components ready",
		"model", llmClient.Model(),
		"dialect", dialect,
		"tools", len(reg.List()),
		"artifact_backend", cfg.Artifacts.Backend,
	)

	return &app{
		llm:       llmClient,
		registry:  reg,
		artifacts: store,
		convs:     convs,
		loop:      loop,
		heavy:     pipeline,
	}, nil
}

func (a *app) Close() error {
	return a.artifacts.Close()
}
