package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/treeauth/internal/store"
	"github.com/aussiebroadwan/treeauth/internal/store/drivers/sqlite/queries"
	"github.com/aussiebroadwan/treeauth/pkg/cryptox"
)

type secretsRepo struct {
	q      *queries.Queries
	cipher *cryptox.Cipher
	logger *slog.Logger
}

// aad binds a sealed value to its row.
func aad(namespace, key string) []byte {
	return []byte(namespace + "\x00" + key)
}

// Put seals value and upserts it. If sealing fails the key material is
// reset and the namespace cleared, since nothing sealed under the old key
// can be trusted to open again; the seal is then retried once.
func (r *secretsRepo) Put(ctx context.Context, namespace, key string, value []byte) error {
	sealed, err := r.cipher.Seal(value, aad(namespace, key))
	if err != nil {
		r.logger.WarnContext(ctx, "sealing failed, resetting key material",
			"namespace", namespace,
			"error", err,
		)
		r.cipher.Reset()
		if derr := r.DeleteNamespace(ctx, namespace); derr != nil {
			return errors.Join(err, derr)
		}
		if sealed, err = r.cipher.Seal(value, aad(namespace, key)); err != nil {
			return fmt.Errorf("failed to seal %s/%s: %w", namespace, key, err)
		}
	}

	return r.q.UpsertSecret(ctx, queries.UpsertSecretParams{
		Namespace: namespace,
		Key:       key,
		Value:     sealed,
		UpdatedAt: time.Now().UTC(),
	})
}

func (r *secretsRepo) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	sealed, err := r.q.GetSecret(ctx, queries.GetSecretParams{Namespace: namespace, Key: key})
	if err != nil {
		return nil, mapNotFound(err)
	}

	value, err := r.cipher.Open(sealed, aad(namespace, key))
	if err != nil {
		r.logger.WarnContext(ctx, "discarding undecryptable secret",
			"namespace", namespace,
			"key", key,
			"error", err,
		)
		if derr := r.Delete(ctx, namespace, key); derr != nil {
			return nil, derr
		}
		return nil, store.ErrNotFound
	}
	return value, nil
}

func (r *secretsRepo) Delete(ctx context.Context, namespace, key string) error {
	return r.q.DeleteSecret(ctx, queries.DeleteSecretParams{Namespace: namespace, Key: key})
}

func (r *secretsRepo) DeleteNamespace(ctx context.Context, namespace string) error {
	return r.q.DeleteNamespace(ctx, namespace)
}

func (r *secretsRepo) Keys(ctx context.Context, namespace string) ([]string, error) {
	return r.q.ListSecretKeys(ctx, namespace)
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
