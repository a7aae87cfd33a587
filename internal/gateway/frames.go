package gateway

import "github.com/nugget/relaybot/internal/bot"

// Frame types.
const (
	// Inbound, adapter to bot.
	frameMessage = "message"
	frameCommand = "command"
	frameAck     = "ack"
	framePing    = "ping"

	// Outbound, bot to adapter.
	frameSend          = "send"
	frameEdit          = "edit"
	frameDelete        = "delete"
	frameFile          = "file"
	frameCreateContext = "create_context"
	frameRenameContext = "rename_context"
	framePong          = "pong"
)

// frame is the single JSON shape for every message on the socket; each
// type uses the subset of fields it needs.
type frame struct {
	Type string `json:"type"`
	// ID correlates an outbound request with the adapter's ack.
	ID string `json:"id,omitempty"`

	ContextID string      `json:"context_id,omitempty"`
	AuthorID  string      `json:"author_id,omitempty"`
	Text      string      `json:"text,omitempty"`
	IsDirect  bool        `json:"is_direct,omitempty"`
	Guild     *guildFrame `json:"guild,omitempty"`
	Command   string      `json:"command,omitempty"`
	Prompt    string      `json:"prompt,omitempty"`

	MessageID string `json:"message_id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Data      []byte `json:"data,omitempty"` // base64 on the wire
	GuildID   string `json:"guild_id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	Name      string `json:"name,omitempty"`

	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

type guildFrame struct {
	GuildID string   `json:"guild_id"`
	Symbols []string `json:"symbols,omitempty"`
}

func (g *guildFrame) toBot() *bot.Guild {
	if g == nil {
		return nil
	}
	return &bot.Guild{GuildID: g.GuildID, Symbols: g.Symbols}
}

func (f *frame) message() *bot.Message {
	return &bot.Message{
		ContextID: f.ContextID,
		AuthorID:  f.AuthorID,
		Text:      f.Text,
		IsDirect:  f.IsDirect,
		Guild:     f.Guild.toBot(),
	}
}

func (f *frame) command() *bot.Command {
	return &bot.Command{
		Command:   f.Command,
		ContextID: f.ContextID,
		AuthorID:  f.AuthorID,
		Guild:     f.Guild.toBot(),
		Prompt:    f.Prompt,
	}
}
