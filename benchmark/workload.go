package benchmark

import (
	"context"
	"database/sql"
)

// Workload is a single benchmarked operation bound to one backing store.
// The harness measures its cost; results are discarded.
type Workload func(ctx context.Context) error

// ClientWorkload is a workload bound to one exclusively owned connection.
// The concurrent scenarios hand each simulated client its own handle so
// that SQLite file locking and PostgreSQL session state behave the way
// they do under a real Plex Media Server.
type ClientWorkload func(ctx context.Context, conn *sql.Conn) error

// queryer covers *sql.DB, *sql.Conn and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// drainQuery runs a query and walks every row so the driver actually
// transfers the full result set, the same work a real caller would do.
func drainQuery(ctx context.Context, q queryer, query string, args ...any) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}
