// Package memory keeps client state in process memory. State does not
// survive a restart; it backs development runs and tests.
package memory

import (
	"context"
	"sync"

	"tophome-storefront/internal/domain"
)

type StateRepository struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewStateRepository() *StateRepository {
	return &StateRepository{values: make(map[string][]byte)}
}

func (r *StateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[key]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return append([]byte(nil), value...), nil
}

func (r *StateRepository) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = append([]byte(nil), value...)
	return nil
}

func (r *StateRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.values, key)
	return nil
}

func (r *StateRepository) Ping(ctx context.Context) error {
	return nil
}

var _ domain.StateRepository = (*StateRepository)(nil)
