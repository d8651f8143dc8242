// Package queries holds the SQL the sqlite driver runs, one method per
// statement.
package queries

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertSecret = `
INSERT INTO secrets (namespace, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (namespace, key) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at
`

type UpsertSecretParams struct {
	Namespace string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

func (q *Queries) UpsertSecret(ctx context.Context, arg UpsertSecretParams) error {
	_, err := q.db.ExecContext(ctx, upsertSecret, arg.Namespace, arg.Key, arg.Value, arg.UpdatedAt)
	return err
}

const getSecret = `SELECT value FROM secrets WHERE namespace = ? AND key = ?`

type GetSecretParams struct {
	Namespace string
	Key       string
}

func (q *Queries) GetSecret(ctx context.Context, arg GetSecretParams) ([]byte, error) {
	var value []byte
	err := q.db.QueryRowContext(ctx, getSecret, arg.Namespace, arg.Key).Scan(&value)
	return value, err
}

const deleteSecret = `DELETE FROM secrets WHERE namespace = ? AND key = ?`

type DeleteSecretParams struct {
	Namespace string
	Key       string
}

func (q *Queries) DeleteSecret(ctx context.Context, arg DeleteSecretParams) error {
	_, err := q.db.ExecContext(ctx, deleteSecret, arg.Namespace, arg.Key)
	return err
}

const deleteNamespace = `DELETE FROM secrets WHERE namespace = ?`

func (q *Queries) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := q.db.ExecContext(ctx, deleteNamespace, namespace)
	return err
}

const listSecretKeys = `SELECT key FROM secrets WHERE namespace = ? ORDER BY key`

func (q *Queries) ListSecretKeys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listSecretKeys, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
