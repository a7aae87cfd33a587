// Package llm talks to the remote chat-completion endpoint.
package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Role tags a message's author.
type Role string

// Roles understood by the completion endpoint.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of an ordered conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCallID labels a tool result. Optional; only some endpoints
	// require it.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Chatter performs one completion and reports failures as errors.
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Completer performs one completion and never fails: transport and
// decoding problems come back as a user-facing diagnostic text in
// place of the model's reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message) string
}
