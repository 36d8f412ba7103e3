package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Athemis/squidbot/pkg/providers"
)

// MemoryStore is an in-process Store. Sub-agents use it for their isolated
// scratch history; tests use it in place of SQLite.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []providers.Message
	document string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadRecent returns at most n of the most recent entries in order.
func (s *MemoryStore) LoadRecent(_ context.Context, n int) ([]providers.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.messages) == 0 {
		return nil, nil
	}
	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]providers.Message, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out, nil
}

// Append adds one entry to the log.
func (s *MemoryStore) Append(_ context.Context, msg providers.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.messages = append(s.messages, msg)
	return nil
}

// LoadMemoryDocument returns the memory document.
func (s *MemoryStore) LoadMemoryDocument(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document, nil
}

// SaveMemoryDocument replaces the memory document.
func (s *MemoryStore) SaveMemoryDocument(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = text
	return nil
}

// SearchHistory returns entries whose content contains the query,
// case-insensitively, most recent first.
func (s *MemoryStore) SearchHistory(_ context.Context, query string, limit int) ([]providers.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(query)

	var out []providers.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(s.messages[i].Content), needle) {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

// Len returns the number of entries in the log.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// All returns a copy of the full log, oldest first.
func (s *MemoryStore) All() []providers.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]providers.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
