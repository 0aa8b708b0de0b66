package benchmark

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// OpenSQLite opens a SQLite database file the way Plex itself does: one
// handle per client, read/write, with a busy timeout so writers retry
// instead of failing instantly. database/sql turns that into a pool where
// every pooled connection is a separate handle on the same file, which is
// exactly what the concurrent scenarios need.
func OpenSQLite(path string, busyTimeout time.Duration, maxConns int) (*Store, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	return &Store{kind: KindSQLite, name: "SQLite", db: db}, nil
}

// isSQLiteContention matches the two codes SQLite raises when a handle
// cannot take the lock it wants within the busy timeout.
func isSQLiteContention(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
