package authsdk

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRegistrySize bounds how many trees a client keeps resumable.
const DefaultRegistrySize = 10

// Registry holds in-flight AuthServices by id. When full, registering a
// new tree silently evicts the least recently used one; nodes of an evicted
// tree fail with ErrAuthServiceNotFound. Safe for concurrent use.
type Registry struct {
	cache *lru.Cache[string, *AuthService]
}

// NewRegistry returns a registry holding at most size trees.
func NewRegistry(size int) (*Registry, error) {
	cache, err := lru.New[string, *AuthService](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service registry: %w", err)
	}
	return &Registry{cache: cache}, nil
}

func mustNewRegistry(size int) *Registry {
	r, err := NewRegistry(size)
	if err != nil {
		panic(err)
	}
	return r
}

// Add registers s under its id and reports whether another tree was
// evicted to make room.
func (r *Registry) Add(s *AuthService) bool {
	return r.cache.Add(s.id, s)
}

// Get returns the tree registered under id and marks it recently used.
func (r *Registry) Get(id string) (*AuthService, bool) {
	return r.cache.Get(id)
}

// Remove forgets the tree registered under id.
func (r *Registry) Remove(id string) bool {
	return r.cache.Remove(id)
}

// Len returns the number of registered trees.
func (r *Registry) Len() int { return r.cache.Len() }
