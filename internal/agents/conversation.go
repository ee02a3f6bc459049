package agents

import (
	"sync"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/ai"
)

// DefaultConversationCapacity bounds a session's message log.
const DefaultConversationCapacity = 50

// ConversationStore keeps a bounded per-session message log. Eviction is
// strictly FIFO: once a session reaches capacity the oldest message goes
// first. All state is process-local and lost on restart.
type ConversationStore struct {
	capacity int
	sessions map[string][]ai.Message
	mu       sync.Mutex
}

// NewConversationStore constructs a store with the given per-session
// capacity. Non-positive capacity falls back to the default.
func NewConversationStore(capacity int) *ConversationStore {
	if capacity <= 0 {
		capacity = DefaultConversationCapacity
	}
	return &ConversationStore{
		capacity: capacity,
		sessions: make(map[string][]ai.Message),
	}
}

// AddMessage appends a message to a session, evicting the oldest entry when
// the session is at capacity.
func (s *ConversationStore) AddMessage(sessionID string, msg ai.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.sessions[sessionID]
	log = append(log, msg)
	if len(log) > s.capacity {
		log = log[len(log)-s.capacity:]
	}
	s.sessions[sessionID] = log
}

// GetHistory returns up to limit most-recent messages for a session in
// chronological order. A non-positive limit returns the whole log.
func (s *ConversationStore) GetHistory(sessionID string, limit int) []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.sessions[sessionID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]ai.Message, len(log))
	copy(out, log)
	return out
}

// ClearSession removes a session's history entirely.
func (s *ConversationStore) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
