// Relaybot is a chat bot that relays messages to an LLM and runs the
// tools the model asks for.
//
// A platform adapter connects to the gateway WebSocket and forwards
// messages and commands; relaybot answers through the same socket.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	relaybot serve            Start the gateway and answer chat events
//	relaybot init [dir]       Write an example config
//	relaybot ask <question>   Run one conversation turn and print the answer
//	relaybot heavy <prompt>   Run the heavy-mode pipeline once
//	relaybot version          Print version and build information
//	relaybot -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/relaybot/internal/agent"
	"github.com/nugget/relaybot/internal/bot"
	"github.com/nugget/relaybot/internal/buildinfo"
	"github.com/nugget/relaybot/internal/config"
	"github.com/nugget/relaybot/internal/gateway"
	"github.com/nugget/relaybot/internal/heavy"
)

// main only sets up the OS environment and hands off to [run], so the
// whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Logs go to stdout, progress and fatal
// errors to stderr. Arguments are parsed by hand so tests can call run
// concurrently without flag package globals.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: relaybot ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, strings.Join(cmdArgs, " "))
	case "heavy":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: relaybot heavy <prompt>")
		}
		return runHeavy(ctx, stdout, stderr, configPath, outputFmt, strings.Join(cmdArgs, " "))
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Current()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	fmt.Fprintf(w, "  %-12s %s\n", "go_version:", info.GoVersion)
	fmt.Fprintf(w, "  %-12s %s\n", "platform:", info.Platform)
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Relaybot - LLM chat relay with tools")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: relaybot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the gateway and answer chat events")
	fmt.Fprintln(w, "  init [dir]     Write an example config (default: .)")
	fmt.Fprintln(w, "  ask <text>     Run one conversation turn and print the answer")
	fmt.Fprintln(w, "  heavy <text>   Run the heavy-mode pipeline once")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/relaybot/config.yaml, /etc/relaybot/config.yaml")
	return nil
}

// runServe starts the gateway and blocks until SIGINT/SIGTERM or ctx
// cancellation. It refuses to start without both credentials.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	logger, err := config.NewLogger(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("starting relaybot", "version", buildinfo.Version, "config", cfgPath)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	gw := gateway.New(gateway.Config{
		Token:  cfg.Gateway.Token,
		Path:   cfg.Gateway.Path,
		Logger: logger,
	})
	b := bot.New(bot.Config{
		Runner:          a.loop,
		Heavy:           a.heavy,
		Namer:           a.llm,
		History:         a.convs,
		Out:             gw,
		Logger:          logger,
		TurnTimeout:     time.Duration(cfg.Agent.TurnTimeoutSec) * time.Second,
		MaxMessageChars: cfg.Gateway.MaxMessageChars,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Address, cfg.Gateway.Port)
	if err := gw.ListenAndServe(ctx, addr, b); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("gateway failed: %w", err)
	}

	logger.Info("relaybot stopped")
	return nil
}

// runAsk runs a single conversation turn against the configured model
// and prints the answer. Artifacts stay in the store; their names are
// reported on stderr.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, question string) error {
	cfg, a, err := loadApp(stderr, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	out := agent.DeliveryFunc(func(_ context.Context, name string, data []byte) error {
		fmt.Fprintf(stderr, "artifact created: %s (%d bytes, %s backend)\n", name, len(data), cfg.Artifacts.Backend)
		return nil
	})

	resp, err := a.loop.Run(ctx, &agent.Request{ConversationID: "cli", Content: question}, out)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(stdout, resp.Content)
	return nil
}

// runHeavy runs the pipeline once, streaming status lines to stderr.
func runHeavy(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, prompt string) error {
	_, a, err := loadApp(stderr, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	printed := 0
	rep := heavy.ReporterFunc(func(_ context.Context, trail string) {
		lines := strings.Split(trail, "\n")
		for _, l := range lines[printed:] {
			fmt.Fprintln(stderr, l)
		}
		printed = len(lines)
	})

	run, err := a.heavy.Run(ctx, prompt, rep)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	fmt.Fprintln(stdout, run.Final)
	return nil
}

// loadApp loads config for the one-shot commands, which need only the
// LLM credential. Logs go to w.
func loadApp(w io.Writer, configPath string) (*config.Config, *app, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.LLM.APIKey == "" {
		return nil, nil, errors.New("llm.api_key is not set")
	}
	logger, err := config.NewLogger(w, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, a, nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
