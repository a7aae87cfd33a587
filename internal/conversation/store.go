// Package conversation holds per-context message histories and the
// per-conversation turn lock that serializes updates to them.
package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/nugget/relaybot/internal/llm"
	"github.com/nugget/relaybot/internal/toolcall"
)

// ErrNotFound is returned when appending to a conversation that does
// not exist.
var ErrNotFound = errors.New("conversation not found")

// Conversation is one chat context's history. The first message, when
// present, is the system prompt; messages are never modified once
// appended.
type Conversation struct {
	ID        string
	Dialect   toolcall.Dialect
	Messages  []llm.Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the conversation persistence abstraction.
type Store interface {
	// GetOrCreate returns the conversation for id, creating it seeded
	// with systemPrompt and dialect when absent. created reports which.
	GetOrCreate(id string, dialect toolcall.Dialect, systemPrompt string) (conv *Conversation, created bool, err error)
	// Append adds messages to the end of an existing conversation.
	Append(id string, msgs ...llm.Message) error
	// Get returns a copy of the conversation, or false.
	Get(id string) (*Conversation, bool)
	// Clear drops the conversation. It reports whether one existed.
	Clear(id string) bool
}

// MemoryStore keeps conversations in process memory; everything is lost
// on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(id string, dialect toolcall.Dialect, systemPrompt string) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[id]; ok {
		return conv.copy(), false, nil
	}

	now := time.Now()
	conv := &Conversation{
		ID:        id,
		Dialect:   dialect,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if systemPrompt != "" {
		conv.Messages = []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	}
	s.conversations[id] = conv
	return conv.copy(), true, nil
}

// Append implements Store.
func (s *MemoryStore) Append(id string, msgs ...llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = time.Now()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, false
	}
	return conv.copy(), true
}

// Clear implements Store.
func (s *MemoryStore) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.conversations[id]
	delete(s.conversations, id)
	return ok
}

// Len returns the number of live conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (c *Conversation) copy() *Conversation {
	cp := *c
	cp.Messages = make([]llm.Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}
