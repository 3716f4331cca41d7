package accounts

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]TokenAccount
}

// NewMemoryRepository builds an in-memory token account store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]TokenAccount)}
}

func (r *memoryRepository) Create(_ context.Context, a TokenAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[a.Code]; exists {
		return errors.New("token account exists")
	}
	r.accounts[a.Code] = a
	return nil
}

func (r *memoryRepository) Get(_ context.Context, code string) (TokenAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[code]
	if !ok {
		return TokenAccount{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID string) ([]TokenAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []TokenAccount
	for _, a := range r.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
