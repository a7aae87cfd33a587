// Package agent implements the conversation orchestrator: the
// request, parse, dispatch, append loop that runs one user turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/relaybot/internal/conversation"
	"github.com/nugget/relaybot/internal/llm"
	"github.com/nugget/relaybot/internal/prompts"
	"github.com/nugget/relaybot/internal/toolcall"
	"github.com/nugget/relaybot/internal/tools"
)

// Texts the loop itself produces.
const (
	MaxRoundsText = "Max tool iterations reached. Stopping here."
	FailureText   = "Sorry, a critical error occurred."
)

// DefaultMaxToolRounds is used when Config.MaxToolRounds is negative.
const DefaultMaxToolRounds = 25

// Dispatcher runs a parsed tool call. *tools.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, call *toolcall.Call) tools.Result
}

// ArtifactReader loads stored artifact bytes. artifact.Store implements it.
type ArtifactReader interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// Delivery is the outbound channel for a turn. Only the orchestrator
// holds it, which is why artifact sending happens here rather than in the
// tool.
type Delivery interface {
	SendArtifact(ctx context.Context, name string, data []byte) error
}

// DeliveryFunc adapts a function to Delivery.
type DeliveryFunc func(ctx context.Context, name string, data []byte) error

// SendArtifact implements Delivery.
func (f DeliveryFunc) SendArtifact(ctx context.Context, name string, data []byte) error {
	return f(ctx, name, data)
}

// Request is one inbound user message.
type Request struct {
	ConversationID string
	Content        string
	// Symbols are context-specific shortcuts (custom emoji) added to the
	// system prompt when the conversation is created.
	Symbols []string
}

// Response is the outcome of a turn.
type Response struct {
	Content   string         `json:"content"`
	RequestID string         `json:"request_id"`
	Rounds    int            `json:"rounds"`
	ToolCalls map[string]int `json:"tool_calls,omitempty"`
	// Exhausted is set when the round limit ended the turn.
	Exhausted bool `json:"exhausted,omitempty"`
	// Failed is set when the turn was abandoned with FailureText.
	Failed bool          `json:"failed,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Config controls the loop.
type Config struct {
	// Dialect is attached to every conversation this loop creates.
	Dialect toolcall.Dialect
	// MaxToolRounds bounds tool dispatches per turn. Zero means
	// unbounded; negative selects DefaultMaxToolRounds.
	MaxToolRounds int
	// SystemPrompt seeds new conversations. Empty means the prompt
	// rendered from the registry's tools for Dialect.
	SystemPrompt string
}

// Loop is the conversation orchestrator.
type Loop struct {
	cfg       Config
	llm       llm.Completer
	store     conversation.Store
	turns     *conversation.TurnLock
	tools     Dispatcher
	artifacts ArtifactReader
	logger    *slog.Logger
}

// NewLoop creates an orchestrator. When cfg.SystemPrompt is empty and
// dispatcher is a *tools.Registry, the prompt is rendered from its tools.
func NewLoop(cfg Config, completer llm.Completer, store conversation.Store, dispatcher Dispatcher, artifacts ArtifactReader, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dialect == "" {
		cfg.Dialect = toolcall.DialectJSON
	}
	if cfg.MaxToolRounds < 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.SystemPrompt == "" {
		if reg, ok := dispatcher.(*tools.Registry); ok {
			cfg.SystemPrompt = prompts.System(cfg.Dialect, reg.List())
		}
	}
	return &Loop{
		cfg:       cfg,
		llm:       completer,
		store:     store,
		turns:     conversation.NewTurnLock(),
		tools:     dispatcher,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Run executes one user turn. Turns for the same conversation run one at
// a time in arrival order. The only error is ctx ending while waiting for
// the turn; every other failure produces a Response carrying FailureText,
// and whatever history was appended before the failure is kept.
func (l *Loop) Run(ctx context.Context, req *Request, out Delivery) (*Response, error) {
	start := time.Now()
	requestID := generateRequestID()
	log := l.logger.With("conversation_id", req.ConversationID, "request_id", requestID)

	release, err := l.turns.Acquire(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("wait for turn: %w", err)
	}
	defer release()

	resp := &Response{RequestID: requestID, ToolCalls: make(map[string]int)}
	ctx = tools.WithConversationID(ctx, req.ConversationID)

	if err := l.runTurn(ctx, log, req, out, resp); err != nil {
		log.Error("turn failed", "error", err, "rounds", resp.Rounds)
		resp.Content = FailureText
		resp.Failed = true
	}
	resp.Elapsed = time.Since(start)

	log.Info("turn completed",
		"rounds", resp.Rounds,
		"exhausted", resp.Exhausted,
		"failed", resp.Failed,
		"elapsed", resp.Elapsed.Round(time.Millisecond),
	)
	return resp, nil
}

// runTurn is the loop body. Panics are converted to errors.
func (l *Loop) runTurn(ctx context.Context, log *slog.Logger, req *Request, out Delivery, resp *Response) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("turn panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	conv, created, err := l.store.GetOrCreate(req.ConversationID, l.cfg.Dialect, prompts.WithSymbols(l.cfg.SystemPrompt, req.Symbols))
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if created {
		log.Debug("conversation created", "dialect", conv.Dialect, "symbols", len(req.Symbols))
	}
	history := conv.Messages

	appendMsg := func(m llm.Message) error {
		if err := l.store.Append(req.ConversationID, m); err != nil {
			return fmt.Errorf("append %s message: %w", m.Role, err)
		}
		history = append(history, m)
		return nil
	}

	if err := appendMsg(llm.Message{Role: llm.RoleUser, Content: req.Content}); err != nil {
		return err
	}

	for {
		if l.cfg.MaxToolRounds > 0 && resp.Rounds >= l.cfg.MaxToolRounds {
			log.Warn("max tool rounds reached", "max", l.cfg.MaxToolRounds)
			resp.Content = MaxRoundsText
			resp.Exhausted = true
			return appendMsg(llm.Message{Role: llm.RoleAssistant, Content: MaxRoundsText})
		}

		reply := l.llm.Complete(ctx, history)

		call, ok := toolcall.Parse(conv.Dialect, reply)
		if !ok {
			if other, found := toolcall.ParseAny(reply); found {
				log.Warn("reply looks like a tool call in another dialect; treating as answer",
					"tool", other.Name, "dialect", conv.Dialect)
			}
			resp.Content = reply
			return appendMsg(llm.Message{Role: llm.RoleAssistant, Content: reply})
		}

		if err := appendMsg(llm.Message{Role: llm.RoleAssistant, Content: reply}); err != nil {
			return err
		}

		resp.Rounds++
		resp.ToolCalls[call.Name]++
		log.Debug("tool call parsed", "tool", call.Name, "round", resp.Rounds, "args", len(call.Arguments))

		feedback := l.dispatch(ctx, log, call, out)
		if err := appendMsg(llm.Message{
			Role:       llm.RoleTool,
			Content:    feedback,
			ToolCallID: "call_" + uuid.NewString(),
		}); err != nil {
			return err
		}
	}
}

// dispatch runs one call and returns the tool message text. A created
// artifact is loaded and sent through out; the model is told whether
// sending worked.
func (l *Loop) dispatch(ctx context.Context, log *slog.Logger, call *toolcall.Call, out Delivery) string {
	res := l.tools.Dispatch(ctx, call)
	if !res.OK() || res.Artifact == "" {
		return res.Output
	}

	name := res.Artifact
	if err := l.deliverArtifact(ctx, name, out); err != nil {
		log.Warn("artifact delivery failed", "artifact", name, "error", err)
		return fmt.Sprintf("Failed to send artifact '%s': %v", name, err)
	}
	log.Info("artifact delivered", "artifact", name)
	return fmt.Sprintf("Successfully created and sent artifact '%s'.", name)
}

func (l *Loop) deliverArtifact(ctx context.Context, name string, out Delivery) error {
	if out == nil {
		return fmt.Errorf("no delivery channel for this conversation")
	}
	if l.artifacts == nil {
		return fmt.Errorf("artifact store not configured")
	}
	data, err := l.artifacts.Get(ctx, name)
	if err != nil {
		return err
	}
	return out.SendArtifact(ctx, name, data)
}

// generateRequestID returns a time-ordered ID for correlating a turn's
// log lines.
func generateRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "r_" + uuid.NewString()
	}
	return "r_" + id.String()
}
