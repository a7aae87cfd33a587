// Package bot is the chat-facing core. It receives message and command
// events from a platform adapter, decides which contexts it answers in,
// runs turns through the agent loop and heavy mode, and drives replies,
// progress indicators and file uploads back through an Outbound.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/relaybot/internal/agent"
	"github.com/nugget/relaybot/internal/conversation"
	"github.com/nugget/relaybot/internal/heavy"
	"github.com/nugget/relaybot/internal/llm"
	"github.com/nugget/relaybot/internal/prompts"
)

const (
	defaultTurnTimeout     = 10 * time.Minute
	defaultMaxMessageChars = 2000
	defaultThinkInterval   = time.Second
)

// Guild describes the server a context belongs to.
type Guild struct {
	GuildID string
	// Symbols are the custom emoji available in the guild, already
	// rendered the way the model should write them.
	Symbols []string
}

// Message is an inbound chat message.
type Message struct {
	ContextID string
	AuthorID  string
	Text      string
	IsDirect  bool
	Guild     *Guild
}

// Command is an inbound slash-command invocation.
type Command struct {
	Command   string
	ContextID string
	AuthorID  string
	Guild     *Guild
	// Prompt is the argument to the heavy command.
	Prompt string
}

// Outbound performs platform actions. The gateway implements it.
type Outbound interface {
	Send(ctx context.Context, contextID, text string) (messageID string, err error)
	Edit(ctx context.Context, contextID, messageID, text string) error
	Delete(ctx context.Context, contextID, messageID string) error
	SendFile(ctx context.Context, contextID, filename string, data []byte) error
	CreateContext(ctx context.Context, guildID, ownerID, name string) (contextID string, err error)
	RenameContext(ctx context.Context, contextID, name string) error
}

// AgentRunner runs one conversation turn. *agent.Loop implements it.
type AgentRunner interface {
	Run(ctx context.Context, req *agent.Request, out agent.Delivery) (*agent.Response, error)
}

// HeavyRunner runs the heavy-mode pipeline. *heavy.Pipeline implements it.
type HeavyRunner interface {
	Run(ctx context.Context, prompt string, rep heavy.Reporter) (*heavy.Run, error)
}

// HistoryClearer drops a conversation. conversation.Store implements it.
type HistoryClearer interface {
	Clear(id string) bool
}

// Config holds the dependencies for a Bot.
type Config struct {
	Runner  AgentRunner
	Heavy   HeavyRunner
	Namer   llm.Chatter // generates names for new private contexts
	History HistoryClearer
	Out     Outbound
	Logger  *slog.Logger

	TurnTimeout     time.Duration
	MaxMessageChars int
	ThinkInterval   time.Duration
}

// Bot is the chat-facing core.
type Bot struct {
	runner  AgentRunner
	heavy   HeavyRunner
	namer   llm.Chatter
	history HistoryClearer
	out     Outbound
	logger  *slog.Logger

	turnTimeout   time.Duration
	maxChars      int
	thinkInterval time.Duration

	// turns orders work per context from the moment an event arrives.
	turns *conversation.TurnLock

	mu       sync.Mutex
	private  map[string]bool // contexts created by start
	public   map[string]bool // contexts enabled by command
	toRename map[string]bool

	// startMu serializes context creation so names are not reused.
	startMu     sync.Mutex
	chatCounter int
}

// New creates a Bot.
func New(cfg Config) *Bot {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		runner:        cfg.Runner,
		heavy:         cfg.Heavy,
		namer:         cfg.Namer,
		history:       cfg.History,
		out:           cfg.Out,
		logger:        logger,
		turnTimeout:   cfg.TurnTimeout,
		maxChars:      cfg.MaxMessageChars,
		thinkInterval: cfg.ThinkInterval,
		turns:         conversation.NewTurnLock(),
		private:       make(map[string]bool),
		public:        make(map[string]bool),
		toRename:      make(map[string]bool),
		chatCounter:   1,
	}
	if b.turnTimeout <= 0 {
		b.turnTimeout = defaultTurnTimeout
	}
	if b.maxChars <= 0 {
		b.maxChars = defaultMaxMessageChars
	}
	if b.thinkInterval <= 0 {
		b.thinkInterval = defaultThinkInterval
	}
	return b
}

// Subscribed reports whether the bot answers every message in contextID.
func (b *Bot) Subscribed(contextID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.private[contextID] || b.public[contextID]
}

// AdmitMessage decides whether msg is answered and, if so, reserves its
// place in the context's queue. Events must be admitted in arrival order;
// the returned function runs the turn and may be called on any
// goroutine. It returns nil for ignored messages.
func (b *Bot) AdmitMessage(msg *Message) func(context.Context) {
	if msg.Text == "" {
		return nil
	}
	if !msg.IsDirect && !b.Subscribed(msg.ContextID) {
		b.logger.Log(context.Background(), llm.LevelTrace, "ignoring message in unsubscribed context", "context_id", msg.ContextID)
		return nil
	}
	turn := b.turns.Reserve(msg.ContextID)
	return func(ctx context.Context) { b.handleMessage(ctx, turn, msg) }
}

// HandleMessage admits msg and runs its turn on the calling goroutine.
// Direct messages are always answered; other contexts only when
// subscribed.
func (b *Bot) HandleMessage(ctx context.Context, msg *Message) {
	if run := b.AdmitMessage(msg); run != nil {
		run(ctx)
	}
}

// handleMessage waits for msg's turn. Naming a fresh private context
// happens inside the turn so a slow rename cannot be overtaken.
func (b *Bot) handleMessage(ctx context.Context, turn *conversation.Turn, msg *Message) {
	defer turn.Release()

	ctx, cancel := context.WithTimeout(ctx, b.turnTimeout)
	defer cancel()

	log := b.logger.With("context_id", msg.ContextID, "author_id", msg.AuthorID)
	if err := turn.Wait(ctx); err != nil {
		log.Warn("gave up waiting for turn", "error", err)
		return
	}
	log.Info("message received", "direct", msg.IsDirect, "message_len", len(msg.Text))

	if !msg.IsDirect && b.takeRename(msg.ContextID) {
		b.rename(ctx, log, msg.ContextID, msg.Text)
	}

	reply := b.runTurn(ctx, log, msg)
	if reply == "" {
		return
	}
	b.sendText(ctx, msg.ContextID, reply)
}

// runTurn runs the agent with the indicator shown and returns the reply.
// The indicator is gone before this returns.
func (b *Bot) runTurn(ctx context.Context, log *slog.Logger, msg *Message) string {
	stop := b.startThinking(ctx, msg.ContextID)
	defer stop()

	req := &agent.Request{ConversationID: msg.ContextID, Content: msg.Text}
	if msg.Guild != nil {
		req.Symbols = msg.Guild.Symbols
	}

	delivery := agent.DeliveryFunc(func(ctx context.Context, name string, data []byte) error {
		return b.out.SendFile(ctx, msg.ContextID, name, data)
	})

	resp, err := b.runner.Run(ctx, req, delivery)
	if err != nil {
		log.Error("agent run failed", "error", err)
		return agent.FailureText
	}
	log.Info("agent run completed",
		"request_id", resp.RequestID,
		"rounds", resp.Rounds,
		"response_len", len(resp.Content),
	)
	return resp.Content
}

// takeRename removes contextID from the rename set, reporting whether it
// was there. Renaming is one-shot whether or not it succeeds.
func (b *Bot) takeRename(contextID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.toRename[contextID] {
		return false
	}
	delete(b.toRename, contextID)
	return true
}

func (b *Bot) rename(ctx context.Context, log *slog.Logger, contextID, firstMessage string) {
	if b.namer == nil {
		return
	}
	raw, err := b.namer.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.ChannelNameSystem},
		{Role: llm.RoleUser, Content: firstMessage},
	})
	if err != nil {
		log.Warn("could not name context", "error", err)
		return
	}
	name := sanitizeChannelName(raw)
	if err := b.out.RenameContext(ctx, contextID, name); err != nil {
		log.Warn("could not rename context", "name", name, "error", err)
		return
	}
	log.Info("context renamed", "name", name)
}

// sendText delivers text in platform-sized chunks.
func (b *Bot) sendText(ctx context.Context, contextID, text string) {
	for _, chunk := range splitMessage(text, b.maxChars) {
		if _, err := b.out.Send(ctx, contextID, chunk); err != nil {
			b.logger.Error("reply send failed", "context_id", contextID, "error", err)
			return
		}
	}
}
