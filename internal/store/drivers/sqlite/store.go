package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/treeauth/internal/store"
	"github.com/aussiebroadwan/treeauth/internal/store/drivers/sqlite/queries"
	"github.com/aussiebroadwan/treeauth/pkg/cryptox"

	_ "modernc.org/sqlite"
)

// cipherInfo separates the secret store key from anything else derived
// from the same master key material.
const cipherInfo = "treeauth/secrets/v1"

var _ store.Store = (*Store)(nil)

type Store struct {
	db     *sql.DB
	cipher *cryptox.Cipher
	logger *slog.Logger
	dsn    string
}

// DSN returns the connection string for a database file, with the busy
// timeout and WAL journal mode the store expects.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// NewStore opens dsn. Values are sealed with a key derived from keys.
func NewStore(dsn string, keys cryptox.KeySource, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:     db,
		cipher: cryptox.NewCipher(keys, cipherInfo),
		logger: logger,
		dsn:    dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Secrets() store.Secrets {
	return &secretsRepo{q: queries.New(s.db), cipher: s.cipher, logger: s.logger}
}
