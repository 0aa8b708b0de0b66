package inspect

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/prometheus/procfs"
)

const plexMaps = `7f2a14000000-7f2a14200000 r-xp 00000000 08:01 400123 /usr/lib/plexmediaserver/lib/libsqlite3.so.0
7f2a14200000-7f2a14300000 rw-p 00000000 00:00 0
7f2a14300000-7f2a14400000 r-xp 00000000 08:01 400456 /usr/lib/plexmediaserver/lib/libssl.so.3
`

// writeProc lays down one /proc/<pid> fixture directory.
func writeProc(t *testing.T, root string, pid int, comm, cmdline, maps string, fdTargets []string) {
	t.Helper()

	dir := filepath.Join(root, strconv.Itoa(pid))
	if err := os.MkdirAll(filepath.Join(dir, "fd"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), append([]byte(cmdline), 0), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "maps"), []byte(maps), 0o644); err != nil {
		t.Fatal(err)
	}
	for i, target := range fdTargets {
		if err := os.Symlink(target, filepath.Join(dir, "fd", strconv.Itoa(i))); err != nil {
			t.Fatal(err)
		}
	}
}

func newFixtureFS(t *testing.T, withPlex bool) procfs.FS {
	t.Helper()
	root := t.TempDir()

	writeProc(t, root, 100, "bash", "/bin/bash", "", []string{"/dev/pts/0"})
	if withPlex {
		const dbDir = "/var/lib/plexmediaserver/Library/Application Support/Plex Media Server/Plug-in Support/Databases"
		writeProc(t, root, 123,
			"Plex Media Serv", // comm truncates at 15 characters
			"/usr/lib/plexmediaserver/Plex Media Server",
			plexMaps,
			[]string{
				"/dev/null",
				dbDir + "/com.plexapp.plugins.library.db",
				dbDir + "/com.plexapp.plugins.library.db-wal",
				dbDir + "/com.plexapp.plugins.library.db-shm",
				"/tmp/transcode.ts",
			})
	}

	fs, err := procfs.NewFS(root)
	if err != nil {
		t.Fatalf("procfs.NewFS: %v", err)
	}
	return fs
}

func TestFindServerByTruncatedComm(t *testing.T) {
	fs := newFixtureFS(t, true)

	p, err := FindServer(fs)
	if err != nil {
		t.Fatalf("FindServer: %v", err)
	}
	if p.PID != 123 {
		t.Errorf("PID = %d, want 123", p.PID)
	}
}

func TestFindServerNotRunning(t *testing.T) {
	fs := newFixtureFS(t, false)

	_, err := FindServer(fs)
	if !errors.Is(err, ErrServerNotRunning) {
		t.Fatalf("error = %v, want ErrServerNotRunning", err)
	}
}

func TestInspectServerCollectsSQLiteState(t *testing.T) {
	fs := newFixtureFS(t, true)

	srv, err := Run(fs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(srv.DatabaseFiles) != 3 {
		t.Fatalf("DatabaseFiles = %v, want the .db, .db-wal and .db-shm handles", srv.DatabaseFiles)
	}
	for _, f := range srv.DatabaseFiles {
		if !sqliteFile(f) {
			t.Errorf("non-SQLite file reported: %s", f)
		}
	}
	if srv.SQLiteLibrary != "/usr/lib/plexmediaserver/lib/libsqlite3.so.0" {
		t.Errorf("SQLiteLibrary = %q", srv.SQLiteLibrary)
	}
	if srv.Cmdline == "" {
		t.Error("Cmdline not captured")
	}
}

func TestSQLiteFileClassification(t *testing.T) {
	for path, want := range map[string]bool{
		"/x/library.db":     true,
		"/x/library.db-wal": true,
		"/x/library.db-shm": true,
		"/dev/null":         false,
		"/x/movie.mkv":      false,
		"/x/library.dbx":    false,
	} {
		if got := sqliteFile(path); got != want {
			t.Errorf("sqliteFile(%q) = %v, want %v", path, got, want)
		}
	}
}
