package database

import (
	"sort"
	"sync"

	"github.com/matthewtan01/pdf-rag/types"
)

// ChatHistory is the ordered, append-only message list of one session.
type ChatHistory struct {
	turn     sync.Mutex
	mu       sync.RWMutex
	messages []types.Message
}

// Messages returns a snapshot of the history in chronological order.
func (h *ChatHistory) Messages() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Append adds all messages as one unit; concurrent appends never interleave
// inside a single call.
func (h *ChatHistory) Append(msgs ...types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Lock reserves the session for one question/reply turn. Appends from other
// goroutines are still allowed; Lock only orders whole turns.
func (h *ChatHistory) Lock() { h.turn.Lock() }

func (h *ChatHistory) Unlock() { h.turn.Unlock() }

// HistoryStore maps session keys to their chat history for the lifetime of
// the owning application.
type HistoryStore struct {
	mu       sync.Mutex
	sessions map[string]*ChatHistory
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{sessions: make(map[string]*ChatHistory)}
}

// GetOrCreate returns the history for key, creating an empty one on first use.
// Every call for the same key returns the same *ChatHistory.
func (s *HistoryStore) GetOrCreate(key string) *ChatHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[key]
	if !ok {
		h = &ChatHistory{}
		s.sessions[key] = h
	}
	return h
}

// Get returns the history for key without creating one.
func (s *HistoryStore) Get(key string) (*ChatHistory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions[key]
	return h, ok
}

func (s *HistoryStore) Append(key string, msgs ...types.Message) {
	s.GetOrCreate(key).Append(msgs...)
}

// Sessions lists the known session keys in sorted order.
func (s *HistoryStore) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
