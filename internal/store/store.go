package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/treeauth/pkg/authsdk"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface. Concrete drivers (sqlite)
// implement it and expose sub-repositories, so callers never hold more
// than they need.
type Store interface {
	Secrets() Secrets

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Secrets holds opaque values grouped by namespace. Drivers encrypt values
// at rest; a value that can no longer be decrypted reads as ErrNotFound.
type Secrets interface {
	// Put inserts or replaces the value under namespace/key.
	Put(ctx context.Context, namespace, key string, value []byte) error

	// Get returns the value under namespace/key or ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Delete removes namespace/key. Deleting a missing key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// DeleteNamespace removes every key in namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Keys lists the keys stored in namespace, sorted.
	Keys(ctx context.Context, namespace string) ([]string, error)
}

// Repository adapts one namespace of a Secrets store to the SDK's
// DataRepository port.
type Repository struct {
	secrets   Secrets
	namespace string
}

var _ authsdk.DataRepository = (*Repository)(nil)

// NewRepository scopes secrets to namespace.
func NewRepository(secrets Secrets, namespace string) *Repository {
	return &Repository{secrets: secrets, namespace: namespace}
}

func (r *Repository) Save(ctx context.Context, key string, value []byte) error {
	return r.secrets.Put(ctx, r.namespace, key, value)
}

func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.secrets.Get(ctx, r.namespace, key)
	if errors.Is(err, ErrNotFound) {
		return nil, authsdk.ErrNoValue
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", r.namespace, key, err)
	}
	return value, nil
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	return r.secrets.Delete(ctx, r.namespace, key)
}

func (r *Repository) DeleteAll(ctx context.Context) error {
	return r.secrets.DeleteNamespace(ctx, r.namespace)
}
