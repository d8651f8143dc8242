package authsdk

import (
	"context"
	"sync"
)

// MemoryRepository is a DataRepository that keeps values in process
// memory. Values are copied on the way in and out.
type MemoryRepository struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{values: make(map[string][]byte)}
}

func (r *MemoryRepository) Save(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = append([]byte(nil), value...)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	if !ok {
		return nil, ErrNoValue
	}
	return append([]byte(nil), v...), nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}

func (r *MemoryRepository) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.values)
	return nil
}
