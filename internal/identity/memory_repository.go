package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu         sync.RWMutex
	principals map[string]Principal
	byHandle   map[string]string
}

// NewMemoryRepository builds an in-memory principal store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{principals: make(map[string]Principal), byHandle: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, p Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byHandle[p.Handle]; exists {
		return ErrExists
	}
	r.principals[p.ID] = p
	r.byHandle[p.Handle] = p.ID
	return nil
}

func (r *memoryRepository) FindByHandle(_ context.Context, handle string) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handle]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return r.principals[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) UpdateDevice(_ context.Context, id, deviceID string) error {
	return r.mutate(id, func(p *Principal) { p.DeviceID = deviceID })
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	return r.mutate(id, func(p *Principal) { p.TokenVersion = version })
}

func (r *memoryRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	at = at.UTC()
	return r.mutate(id, func(p *Principal) { p.LastLogin = &at })
}

func (r *memoryRepository) mutate(id string, fn func(*Principal)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return ErrNotFound
	}
	fn(&p)
	r.principals[id] = p
	return nil
}
