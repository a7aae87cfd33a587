package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
	"unicode/utf8"
)

// errPythonTimeout marks the executor's own deadline, as opposed to the
// caller's context ending.
var errPythonTimeout = errors.New("python execution deadline reached")

// Python runs model-supplied code in a subprocess. The process inherits
// the host's privileges; the timeout is the only limit placed on it.
type Python struct {
	command        string
	timeout        time.Duration
	maxOutputBytes int
	logger         *slog.Logger
}

// PythonConfig configures the executor.
type PythonConfig struct {
	Command        string
	Timeout        time.Duration
	MaxOutputBytes int
}

// NewPython creates an executor. Zero values select python3, 120s and
// 100KB per stream.
func NewPython(cfg PythonConfig, logger *slog.Logger) *Python {
	if cfg.Command == "" {
		cfg.Command = "python3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = 100 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Python{
		command:        cfg.Command,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         logger,
	}
}

// Run executes code with "<command> -c <code>" and renders its output.
// A non-zero exit status is not an error; the traceback on stderr is
// the useful part.
func (p *Python) Run(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, p.timeout, errPythonTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command, "-c", code)
	// Children that keep the pipes open must not hold Wait past the kill.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, errPythonTimeout) {
			p.logger.Warn("python execution timed out", "timeout", p.timeout)
			secs := strconv.FormatFloat(p.timeout.Seconds(), 'f', -1, 64)
			return fmt.Sprintf("Error: Code execution timed out after %s seconds.", secs), ErrTimeout
		}
		// The turn ended first; the executor's own limit was not reached.
		p.logger.Warn("python execution interrupted", "error", cause)
		return fmt.Sprintf("An error occurred during Python execution: %v", cause), cause
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Sprintf("An error occurred during Python execution: %v", err), err
	}

	p.logger.Debug("python executed",
		"exit_code", cmd.ProcessState.ExitCode(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	var out string
	if stdout.Len() > 0 {
		out += "STDOUT:\n" + truncateOutput(stdout.String(), p.maxOutputBytes) + "\n"
	}
	if stderr.Len() > 0 {
		out += "STDERR:\n" + truncateOutput(stderr.String(), p.maxOutputBytes) + "\n"
	}
	if out == "" {
		return "Code executed successfully with no output.", nil
	}
	return out, nil
}

// RegisterPythonTool adds execute_python.
func (r *Registry) RegisterPythonTool(p *Python) {
	r.Register(&Tool{
		Name:        "execute_python",
		Description: "Run Python code and return its stdout and stderr.",
		Example:     map[string]string{"code": "print(1 + 1)"},
		Handler: func(ctx context.Context, args map[string]string) (string, error) {
			return p.Run(ctx, args["code"])
		},
	})
}

// truncateOutput cuts output to at most maxBytes without splitting a
// UTF-8 sequence, adding a note if anything was dropped.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[... output truncated ...]"
}
