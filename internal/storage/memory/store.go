package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/feishu-coze-relay/internal/storage"
)

// Store is an in-memory implementation of ExchangeStore
type Store struct {
	mu        sync.RWMutex
	exchanges map[string]*storage.Exchange
	order     []string
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		exchanges: make(map[string]*storage.Exchange),
	}
}

func (s *Store) SaveExchange(ctx context.Context, ex *storage.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exchanges[ex.ID]; exists {
		return fmt.Errorf("exchange %s already exists", ex.ID)
	}

	ex.CreatedAt = time.Now()

	s.exchanges[ex.ID] = ex
	s.order = append(s.order, ex.ID)
	return nil
}

func (s *Store) GetExchange(ctx context.Context, id string) (*storage.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, exists := s.exchanges[id]
	if !exists {
		return nil, fmt.Errorf("exchange %s not found", id)
	}

	return ex, nil
}

func (s *Store) ListExchanges(ctx context.Context, opts storage.ListOptions) ([]*storage.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first, matching the sqlite implementation
	result := make([]*storage.Exchange, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		result = append(result, s.exchanges[s.order[i]])
	}

	// Simple pagination
	start := opts.Offset
	if start >= len(result) {
		return []*storage.Exchange{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) Close() error {
	return nil
}
