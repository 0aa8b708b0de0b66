package benchmark

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore opens a throwaway SQLite store seeded with one item row.
func newTestStore(t *testing.T, maxConns int) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bench.db")
	store, err := OpenSQLite(path, time.Second, maxConns)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.Exec(ctx, "CREATE TABLE metadata_items (id INTEGER PRIMARY KEY, title TEXT, metadata_type INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := store.Exec(ctx, "INSERT INTO metadata_items VALUES (1000, 'Test Movie', 1)"); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	return store
}

func TestMeasureConcurrentCompletesAllOps(t *testing.T) {
	store := newTestStore(t, 8)

	const clients, perClient = 4, 25
	res, err := MeasureConcurrent(context.Background(), store, clients, perClient,
		func(ctx context.Context, conn *sql.Conn) error {
			return drainQuery(ctx, conn, "SELECT id, title FROM metadata_items WHERE id = ?", 1000)
		})
	if err != nil {
		t.Fatalf("MeasureConcurrent: %v", err)
	}
	if want := uint64(clients * perClient); res.Completed != want {
		t.Errorf("Completed = %d, want %d", res.Completed, want)
	}
	if res.OpsPerSec() <= 0 {
		t.Errorf("OpsPerSec = %.1f, want positive", res.OpsPerSec())
	}
}

func TestMeasureConcurrentBoundedPool(t *testing.T) {
	// Pool smaller than the client count: late clients block in Conn
	// until early ones finish and release, and everything still completes.
	store := newTestStore(t, 2)

	const clients, perClient = 4, 10
	res, err := MeasureConcurrent(context.Background(), store, clients, perClient,
		func(ctx context.Context, conn *sql.Conn) error {
			return drainQuery(ctx, conn, "SELECT id FROM metadata_items WHERE id = ?", 1000)
		})
	if err != nil {
		t.Fatalf("MeasureConcurrent: %v", err)
	}
	if want := uint64(clients * perClient); res.Completed != want {
		t.Errorf("Completed = %d, want %d", res.Completed, want)
	}
}

func TestMeasureConcurrentSurfacesWorkerErrors(t *testing.T) {
	store := newTestStore(t, 8)

	boom := errors.New("boom")
	res, err := MeasureConcurrent(context.Background(), store, 3, 10,
		func(ctx context.Context, conn *sql.Conn) error {
			return boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want joined boom", err)
	}
	if res.Completed != 0 {
		t.Errorf("Completed = %d, want 0 when every op fails", res.Completed)
	}
}
