package benchmark

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// OpenPostgres connects to the comparison PostgreSQL instance, over TCP or
// over the Unix domain socket. maxConns bounds the pool the same way the
// per-scenario connection pools in a Plex-on-PostgreSQL deployment are
// bounded. The pool connects lazily; scenarios probe with ItemCount before
// trusting the store.
func OpenPostgres(cfg PGConfig, viaSocket bool, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", cfg.ConnString(viaSocket))
	if err != nil {
		return nil, fmt.Errorf("open postgres at %s: %w", cfg.Address(viaSocket), err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	name := "PostgreSQL"
	if viaSocket {
		name = "PostgreSQL (socket)"
	}
	return &Store{kind: KindPostgres, name: name, db: db, schema: cfg.Schema}, nil
}

// PostgreSQL error codes that mean "locked right now", not "broken".
const (
	pgLockNotAvailable     = pq.ErrorCode("55P03")
	pgDeadlockDetected     = pq.ErrorCode("40P01")
	pgSerializationFailure = pq.ErrorCode("40001")
)

func isPostgresContention(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return true
		}
	}
	return false
}
