package auth

import (
	"context"
	"sync"

	"github.com/desertthunder/melodari/internal/models"
)

// TokenStore persists one token pair per provider.
//
// Get returns (nil, nil) when nothing is stored. Token shape is not validated.
type TokenStore interface {
	Get(ctx context.Context, provider models.Provider) (*models.Tokens, error)
	Set(ctx context.Context, provider models.Provider, tokens *models.Tokens) error
	Clear(ctx context.Context, provider models.Provider) error
}

// MemoryStore is a process-local [TokenStore].
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[models.Provider]models.Tokens
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[models.Provider]models.Tokens)}
}

func (s *MemoryStore) Get(_ context.Context, provider models.Provider) (*models.Tokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[provider]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *MemoryStore) Set(_ context.Context, provider models.Provider, tokens *models.Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tokens == nil {
		delete(s.tokens, provider)
		return nil
	}
	s.tokens[provider] = *tokens
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, provider models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, provider)
	return nil
}
