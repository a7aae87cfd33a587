package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/relaybot/internal/conversation"
	"github.com/nugget/relaybot/internal/heavy"
)

// Command names.
const (
	CommandStart   = "start"
	CommandEnable  = "enable"
	CommandDisable = "disable"
	CommandHeavy   = "heavy"
)

// AdmitCommand applies the ordering-sensitive part of cmd at once and
// returns the rest as a function that may run on any goroutine. Like
// AdmitMessage it must be called in arrival order, so a message sent
// right after enable is answered and one sent after disable is not.
// Every command answers in the invoking context.
func (b *Bot) AdmitCommand(cmd *Command) func(context.Context) {
	log := b.logger.With("command", cmd.Command, "context_id", cmd.ContextID, "author_id", cmd.AuthorID)
	log.Info("command received")

	switch strings.ToLower(cmd.Command) {
	case CommandStart:
		return func(ctx context.Context) { b.startPrivate(ctx, cmd) }
	case CommandEnable:
		b.mu.Lock()
		b.public[cmd.ContextID] = true
		b.mu.Unlock()
		return func(ctx context.Context) {
			b.sendText(ctx, cmd.ContextID, "I'll respond to every message in this channel now.")
		}
	case CommandDisable:
		b.mu.Lock()
		delete(b.public, cmd.ContextID)
		delete(b.private, cmd.ContextID)
		delete(b.toRename, cmd.ContextID)
		b.mu.Unlock()
		// Turns already admitted finish before the history goes.
		turn := b.turns.Reserve(cmd.ContextID)
		return func(ctx context.Context) { b.disable(ctx, log, turn, cmd.ContextID) }
	case CommandHeavy:
		return func(ctx context.Context) { b.runHeavy(ctx, cmd) }
	default:
		log.Warn("unknown command")
		return func(ctx context.Context) {
			b.sendText(ctx, cmd.ContextID, fmt.Sprintf("Unknown command: %s", cmd.Command))
		}
	}
}

// HandleCommand admits cmd and runs it on the calling goroutine.
func (b *Bot) HandleCommand(ctx context.Context, cmd *Command) {
	b.AdmitCommand(cmd)(ctx)
}

func (b *Bot) disable(ctx context.Context, log *slog.Logger, turn *conversation.Turn, contextID string) {
	defer turn.Release()

	ctx, cancel := context.WithTimeout(ctx, b.turnTimeout)
	defer cancel()
	if err := turn.Wait(ctx); err != nil {
		log.Warn("gave up waiting to clear history", "error", err)
		return
	}
	if b.history != nil {
		b.history.Clear(contextID)
	}
	b.sendText(ctx, contextID, "I've stopped responding in this channel and cleared our conversation.")
}

// startPrivate creates a new-chat-N context owned by the author,
// subscribes it and marks it for naming on its first message.
func (b *Bot) startPrivate(ctx context.Context, cmd *Command) {
	if cmd.Guild == nil {
		b.sendText(ctx, cmd.ContextID, "This command can only be used in a server.")
		return
	}

	b.startMu.Lock()
	name := fmt.Sprintf("new-chat-%d", b.chatCounter)
	id, err := b.out.CreateContext(ctx, cmd.Guild.GuildID, cmd.AuthorID, name)
	if err == nil {
		b.chatCounter++
	}
	b.startMu.Unlock()

	if err != nil {
		b.logger.Error("private context creation failed", "name", name, "error", err)
		b.sendText(ctx, cmd.ContextID, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	b.mu.Lock()
	b.private[id] = true
	b.toRename[id] = true
	b.mu.Unlock()

	b.logger.Info("private context created", "context_id", id, "name", name, "owner", cmd.AuthorID)
	b.sendText(ctx, cmd.ContextID, "I've created a private channel for you: "+mentionContext(id))
	b.sendText(ctx, id, fmt.Sprintf("Hello %s! This is our private chat. What can I help you with?", mentionUser(cmd.AuthorID)))
}

// runHeavy runs the pipeline, showing its status trail in one message
// that is edited after each stage, then posts the final answer.
func (b *Bot) runHeavy(ctx context.Context, cmd *Command) {
	prompt := strings.TrimSpace(cmd.Prompt)
	if prompt == "" {
		b.sendText(ctx, cmd.ContextID, "Please provide a prompt for heavy mode.")
		return
	}
	if b.heavy == nil {
		b.sendText(ctx, cmd.ContextID, "Heavy mode is not available.")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.turnTimeout)
	defer cancel()

	statusID, err := b.out.Send(ctx, cmd.ContextID, "Heavy mode queued...")
	if err != nil {
		b.logger.Error("heavy mode status send failed", "context_id", cmd.ContextID, "error", err)
		return
	}

	rep := heavy.ReporterFunc(func(ctx context.Context, trail string) {
		if err := b.out.Edit(ctx, cmd.ContextID, statusID, trail); err != nil {
			b.logger.Warn("heavy mode status edit failed", "context_id", cmd.ContextID, "error", err)
		}
	})

	run, err := b.heavy.Run(ctx, prompt, rep)
	if err != nil {
		// The status trail already shows the failure.
		b.logger.Error("heavy mode failed", "context_id", cmd.ContextID, "error", err)
		return
	}
	b.logger.Info("heavy mode answered", "context_id", cmd.ContextID, "run_id", run.ID, "elapsed", run.Elapsed)
	b.sendText(ctx, cmd.ContextID, run.Final)
}
