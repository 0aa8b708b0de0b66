package benchmark

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// StoreKind identifies one of the two backing stores under comparison.
type StoreKind string

const (
	KindSQLite   StoreKind = "sqlite"
	KindPostgres StoreKind = "postgres"
)

// Store wraps one backing store under test. Both kinds are driven through
// database/sql so the scenarios stay symmetric; the kind only matters for
// SQL dialect, schema qualification and error classification.
type Store struct {
	kind   StoreKind
	name   string
	db     *sql.DB
	schema string
}

// Name returns the display name used in reports and logs.
func (s *Store) Name() string { return s.name }

// Kind returns which backend this store is.
func (s *Store) Kind() StoreKind { return s.kind }

// DB exposes the underlying pool for one-off statements.
func (s *Store) DB() *sql.DB { return s.db }

// Close shuts the pool down and releases every handle.
func (s *Store) Close() error { return s.db.Close() }

// Conn checks a connection out of the pool for exclusive use. For SQLite
// every pooled connection is its own file handle, so a checked-out Conn is
// the moral equivalent of one Plex client process.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	return s.db.Conn(ctx)
}

// Table qualifies a table name with the configured schema on PostgreSQL.
// SQLite has no schemas, so the name passes through untouched.
func (s *Store) Table(base string) string {
	if s.kind == KindPostgres && s.schema != "" {
		return s.schema + "." + base
	}
	return base
}

// IsContention reports whether err is the backend saying "locked, try
// later" rather than a real failure. For SQLite that is SQLITE_BUSY or
// SQLITE_LOCKED; for PostgreSQL a lock, deadlock or serialization error.
func (s *Store) IsContention(err error) bool {
	if err == nil {
		return false
	}
	switch s.kind {
	case KindSQLite:
		return isSQLiteContention(err)
	case KindPostgres:
		return isPostgresContention(err)
	default:
		return false
	}
}

// ItemCount probes connectivity and returns the library size. Both stores
// carry the migrated Plex schema, so metadata_items exists on either side.
func (s *Store) ItemCount(ctx context.Context) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.Table("metadata_items"))
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count metadata_items on %s: %w", s.name, err)
	}
	return n, nil
}

// Exec runs one statement on the pool, discarding the result.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// DropTable removes a scratch table. It runs on a fresh context so that
// cleanup still happens when the scenario's context is already canceled,
// and failures are logged rather than returned because cleanup runs on
// paths that already carry an error.
func (s *Store) DropTable(base string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.Table(base)); err != nil {
		log.Warn().Err(err).Str("table", base).Str("store", s.name).Msg("Scratch table cleanup failed")
	}
}
