// Package tools defines the tools the model can call and dispatches
// parsed calls to them.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/nugget/relaybot/internal/toolcall"
)

// Handler runs a tool. On failure it returns the text the model should
// see along with the error that caused it; an empty text is replaced by
// a generic "Error: ..." line.
type Handler func(ctx context.Context, args map[string]string) (string, error)

// Tool is one callable capability.
type Tool struct {
	Name        string
	Description string
	// Example holds sample arguments shown to the model in the system
	// prompt.
	Example map[string]string
	// ArtifactArg names the argument that identifies an artifact this
	// tool creates. Dispatch copies it into Result.Artifact on success.
	ArtifactArg string
	Handler     Handler
}

// Result is the outcome of one dispatch. Output is always the text to
// append as the tool message; Err is non-nil when the tool failed.
type Result struct {
	Output   string
	Err      error
	Artifact string
}

// OK reports whether the tool succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs the tool named by call. It never fails outright: unknown
// tools, handler errors and handler panics all come back as a Result
// whose Output describes the problem.
func (r *Registry) Dispatch(ctx context.Context, call *toolcall.Call) (res Result) {
	log := r.logger.With(
		"tool", call.Name,
		"conversation_id", ConversationIDFromContext(ctx),
	)

	t := r.tools[call.Name]
	if t == nil {
		log.Warn("unknown tool requested")
		return Result{
			Output: fmt.Sprintf("Error: Unknown tool '%s'.", call.Name),
			Err:    &ErrToolUnavailable{ToolName: call.Name},
		}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Error("tool panicked", "panic", p, "stack", string(debug.Stack()))
			res = Result{
				Output: fmt.Sprintf("Error: tool '%s' failed: %v", call.Name, p),
				Err:    fmt.Errorf("tool %s panicked: %v", call.Name, p),
			}
		}
	}()

	args := call.Arguments
	if args == nil {
		args = map[string]string{}
	}
	out, err := t.Handler(ctx, args)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		log.Warn("tool failed", "elapsed", elapsed, "error", err)
		if out == "" {
			out = "Error: " + err.Error()
		}
		return Result{Output: out, Err: err}
	}

	log.Debug("tool completed", "elapsed", elapsed, "output_len", len(out))
	res = Result{Output: out}
	if t.ArtifactArg != "" {
		res.Artifact = args[t.ArtifactArg]
	}
	return res
}
