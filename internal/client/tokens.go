package client

import (
	"context"
	"sync"
)

// TokenStore persists rejoin tokens keyed by user and room.
type TokenStore interface {
	// SaveToken stores token for (userID, room), replacing any previous one.
	SaveToken(ctx context.Context, userID, room, token string) error
	// LoadToken returns the token and whether one exists.
	LoadToken(ctx context.Context, userID, room string) (string, bool, error)
	// DeleteToken removes the token; deleting a missing token is not an error.
	DeleteToken(ctx context.Context, userID, room string) error
}

type tokenKey struct {
	userID string
	room   string
}

// MemoryTokenStore is a process-local TokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[tokenKey]string
}

// NewMemoryTokenStore returns an empty store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[tokenKey]string)}
}

func (s *MemoryTokenStore) SaveToken(_ context.Context, userID, room, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenKey{userID, room}] = token
	return nil
}

func (s *MemoryTokenStore) LoadToken(_ context.Context, userID, room string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[tokenKey{userID, room}]
	return token, ok, nil
}

func (s *MemoryTokenStore) DeleteToken(_ context.Context, userID, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenKey{userID, room})
	return nil
}
