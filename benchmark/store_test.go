package benchmark

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func TestTableQualifiesPostgresOnly(t *testing.T) {
	pg := &Store{kind: KindPostgres, schema: "plex"}
	if got := pg.Table("metadata_items"); got != "plex.metadata_items" {
		t.Errorf("postgres Table = %q, want plex.metadata_items", got)
	}

	sq := &Store{kind: KindSQLite}
	if got := sq.Table("metadata_items"); got != "metadata_items" {
		t.Errorf("sqlite Table = %q, want passthrough", got)
	}
}

func TestIsContention(t *testing.T) {
	sq := &Store{kind: KindSQLite}
	pg := &Store{kind: KindPostgres}

	cases := []struct {
		name  string
		store *Store
		err   error
		want  bool
	}{
		{"sqlite busy", sq, sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked", sq, sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"sqlite wrapped", sq, fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), true},
		{"sqlite other", sq, sqlite3.Error{Code: sqlite3.ErrCorrupt}, false},
		{"pg lock timeout", pg, &pq.Error{Code: "55P03"}, true},
		{"pg deadlock", pg, &pq.Error{Code: "40P01"}, true},
		{"pg serialization", pg, &pq.Error{Code: "40001"}, true},
		{"pg syntax error", pg, &pq.Error{Code: "42601"}, false},
		{"plain error", sq, errors.New("boom"), false},
		{"nil", pg, nil, false},
	}
	for _, c := range cases {
		if got := c.store.IsContention(c.err); got != c.want {
			t.Errorf("%s: IsContention = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestPlaceholderDialects(t *testing.T) {
	if got := placeholder(KindSQLite, 1); got != "?" {
		t.Errorf("sqlite placeholder = %q", got)
	}
	if got := placeholder(KindPostgres, 3); got != "$3" {
		t.Errorf("postgres placeholder = %q", got)
	}
	if got := bindList(KindPostgres, 3); got != "$1, $2, $3" {
		t.Errorf("postgres bindList = %q", got)
	}
	if got := bindList(KindSQLite, 2); got != "?, ?" {
		t.Errorf("sqlite bindList = %q", got)
	}
}

func TestItemCountProbesStore(t *testing.T) {
	store := newTestStore(t, 2)

	n, err := store.ItemCount(context.Background())
	if err != nil {
		t.Fatalf("ItemCount: %v", err)
	}
	if n != 1 {
		t.Errorf("ItemCount = %d, want 1", n)
	}
}

func TestDropTableIsUnconditional(t *testing.T) {
	store := newTestStore(t, 2)
	ctx := context.Background()

	if err := store.Exec(ctx, "CREATE TABLE benchmark_writes (id INTEGER PRIMARY KEY, val INTEGER)"); err != nil {
		t.Fatalf("create scratch table: %v", err)
	}

	store.DropTable("benchmark_writes")

	var n int
	err := store.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'benchmark_writes'").Scan(&n)
	if err != nil {
		t.Fatalf("probe sqlite_master: %v", err)
	}
	if n != 0 {
		t.Error("scratch table still present after DropTable")
	}

	// Dropping a table that is already gone is not an error.
	store.DropTable("benchmark_writes")
}
