package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// MicroOptions configures the driver-level microbenchmark.
type MicroOptions struct {
	PG         PGConfig
	Iterations int    // per test
	SQLitePath string // scratch database file; empty means a temp file
}

// RunMicro measures raw per-statement driver latency on tiny scratch
// tables, away from any real Plex data: point SELECT, INSERT inside one
// transaction, and a BETWEEN range scan. It answers "what does each
// round trip cost" rather than "which store survives contention"; the
// numbers here are microseconds, not milliseconds.
//
// PostgreSQL is benchmarked over the Unix socket when one is available,
// since that is how a local Plex-on-PostgreSQL install talks to it.
func RunMicro(ctx context.Context, rep *Reporter, opts MicroOptions) error {
	path := opts.SQLitePath
	if path == "" {
		path = filepath.Join(os.TempDir(), "plexbench_micro.db")
	}
	os.Remove(path)

	viaSocket := opts.PG.SocketAvailable()
	connLabel := "TCP"
	if viaSocket {
		connLabel = "Unix Socket"
	}

	log.Info().
		Str("sqlite_db", path).
		Str("postgres", opts.PG.Address(viaSocket)).
		Int("iterations", opts.Iterations).
		Msg("Starting microbenchmark")

	sqlite, err := OpenSQLite(path, time.Second, 2)
	if err != nil {
		return err
	}
	defer os.Remove(path)
	defer sqlite.Close()

	if err := sqlite.Exec(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, title TEXT, rating REAL)"); err != nil {
		return fmt.Errorf("seed sqlite scratch table: %w", err)
	}
	if err := sqlite.Exec(ctx, "INSERT INTO test VALUES (1, 'Test Movie', 7.5)"); err != nil {
		return fmt.Errorf("seed sqlite scratch table: %w", err)
	}

	pg, err := OpenPostgres(opts.PG, viaSocket, 2)
	if err != nil {
		return err
	}
	defer pg.Close()

	bench := pg.Table("bench_test")
	if err := pg.Exec(ctx, "DROP TABLE IF EXISTS "+bench); err != nil {
		return fmt.Errorf("cannot connect to PostgreSQL: %w", err)
	}
	if err := pg.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (id SERIAL PRIMARY KEY, title TEXT, rating REAL)", bench)); err != nil {
		return err
	}
	if err := pg.Exec(ctx, fmt.Sprintf("INSERT INTO %s (id, title, rating) VALUES (1, 'Test Movie', 7.5)", bench)); err != nil {
		return err
	}
	defer pg.DropTable("bench_test")

	rep.Banner(fmt.Sprintf("SQLite vs PostgreSQL (%s) - Latency Comparison", connLabel))
	rep.Printf("\n")

	// Test 1: point SELECT by primary key.
	rep.Printf("[1] SELECT by Primary Key\n")
	sqSel, err := MeasureFixed(ctx, microOpts(sqlite, opts.Iterations), func(ctx context.Context) error {
		return drainQuery(ctx, sqlite.DB(), "SELECT * FROM test WHERE id = 1")
	})
	if err != nil {
		return err
	}
	pgSel, err := MeasureFixed(ctx, microOpts(pg, opts.Iterations), func(ctx context.Context) error {
		return drainQuery(ctx, pg.DB(), fmt.Sprintf("SELECT * FROM %s WHERE id = 1", bench))
	})
	if err != nil {
		return err
	}
	rep.MicroLatency(sqSel, pgSel)

	// Test 2: INSERT inside one transaction, no commit per row. The
	// commit lands after the clock stops on both sides.
	rep.Printf("[2] INSERT (in transaction, no commit per row)\n")
	if err := pg.Exec(ctx, "TRUNCATE "+bench); err != nil {
		return err
	}
	if err := sqlite.Exec(ctx, "DELETE FROM test WHERE id > 1"); err != nil {
		return err
	}

	sqIns, err := insertBench(ctx, sqlite, "INSERT INTO test (id, title, rating) VALUES (?, ?, ?)", opts.Iterations)
	if err != nil {
		return err
	}
	pgIns, err := insertBench(ctx, pg, fmt.Sprintf("INSERT INTO %s (id, title, rating) VALUES ($1, $2, $3)", bench), opts.Iterations)
	if err != nil {
		return err
	}
	rep.MicroLatency(sqIns, pgIns)

	// Test 3: range scan.
	rep.Printf("[3] Range Query (BETWEEN)\n")
	sqRange, err := MeasureFixed(ctx, microOpts(sqlite, opts.Iterations), func(ctx context.Context) error {
		return drainQuery(ctx, sqlite.DB(), "SELECT * FROM test WHERE id BETWEEN 100 AND 200")
	})
	if err != nil {
		return err
	}
	pgRange, err := MeasureFixed(ctx, microOpts(pg, opts.Iterations), func(ctx context.Context) error {
		return drainQuery(ctx, pg.DB(), fmt.Sprintf("SELECT * FROM %s WHERE id BETWEEN 100 AND 200", bench))
	})
	if err != nil {
		return err
	}
	rep.MicroLatency(sqRange, pgRange)

	rep.DoubleRule()
	rep.Printf("%s\n", rep.Bold("CONCLUSION"))
	rep.DoubleRule()
	rep.Printf("\n  PostgreSQL (%s) is ~%.0fx slower than SQLite per query.\n\n",
		connLabel, ratio(pgSel.PerOpMicros(), sqSel.PerOpMicros()))
	rep.Printf("  Trade-off:\n")
	rep.Printf("    SQLite:     Faster single-query, but LOCKS on concurrent writes\n")
	rep.Printf("    PostgreSQL: Slower per-query, but NEVER LOCKS (MVCC)\n\n")
	rep.Printf("  For Plex + rclone/Real-Debrid: PostgreSQL wins because\n")
	rep.Printf("  smooth playback > raw speed\n\n")

	return nil
}

func microOpts(store *Store, iterations int) FixedOptions {
	return FixedOptions{Label: store.Name(), Kind: store.Kind(), Iterations: iterations}
}

// insertBench times iterations inserts on a dedicated connection inside
// one open transaction, ids starting at 2 so the seed row stays put.
func insertBench(ctx context.Context, store *Store, insertSQL string, iterations int) (LatencyResult, error) {
	conn, err := store.Conn(ctx)
	if err != nil {
		return LatencyResult{}, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		return LatencyResult{}, err
	}

	id := 1
	res, err := MeasureFixed(ctx, microOpts(store, iterations), func(ctx context.Context) error {
		id++
		_, err := conn.ExecContext(ctx, insertSQL, id, fmt.Sprintf("Movie %d", id), 5.0)
		return err
	})
	if err != nil {
		conn.ExecContext(ctx, "ROLLBACK")
		return LatencyResult{}, err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return LatencyResult{}, err
	}
	return res, nil
}
