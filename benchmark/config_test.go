package benchmark

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPGConfigDefaults(t *testing.T) {
	for _, v := range []string{"HOST", "PORT", "SOCKET", "DATABASE", "USER", "PASSWORD", "SCHEMA", "SSLMODE"} {
		t.Setenv("PLEX_PG_"+v, "")
		os.Unsetenv("PLEX_PG_" + v)
	}

	cfg := LoadPGConfig()
	if cfg.Host != "localhost" || cfg.Port != 5432 {
		t.Errorf("default endpoint = %s:%d, want localhost:5432", cfg.Host, cfg.Port)
	}
	if cfg.Database != "plex" || cfg.User != "plex" || cfg.Schema != "plex" {
		t.Errorf("default identity = %s/%s schema %s, want plex everywhere", cfg.Database, cfg.User, cfg.Schema)
	}
	if cfg.SSLMode != "disable" {
		t.Errorf("default sslmode = %q, want disable", cfg.SSLMode)
	}
}

func TestLoadPGConfigEnvOverrides(t *testing.T) {
	t.Setenv("PLEX_PG_HOST", "db.internal")
	t.Setenv("PLEX_PG_PORT", "5533")
	t.Setenv("PLEX_PG_SCHEMA", "media")

	cfg := LoadPGConfig()
	if cfg.Host != "db.internal" || cfg.Port != 5533 || cfg.Schema != "media" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestConnStringSocketSwitchesHost(t *testing.T) {
	cfg := PGConfig{
		Host: "dbhost", Port: 5432, SocketDir: "/run/postgresql",
		Database: "plex", User: "plex", Password: "pw", SSLMode: "disable",
	}

	tcp := cfg.ConnString(false)
	if !strings.Contains(tcp, "host=dbhost") {
		t.Errorf("tcp DSN %q missing host", tcp)
	}
	sock := cfg.ConnString(true)
	if !strings.Contains(sock, "host=/run/postgresql") {
		t.Errorf("socket DSN %q not pointing at the socket dir", sock)
	}
}

func TestSocketAvailable(t *testing.T) {
	dir := t.TempDir()
	cfg := PGConfig{SocketDir: dir, Port: 5599}

	if cfg.SocketAvailable() {
		t.Error("SocketAvailable = true before the socket exists")
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf(".s.PGSQL.%d", cfg.Port)), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if !cfg.SocketAvailable() {
		t.Error("SocketAvailable = false with the socket present")
	}
}

func TestFindPlexDBMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := FindPlexDB()
	if !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("error = %v, want ErrNoDatabase", err)
	}
}

func TestFindPlexDBDiscovers(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dbPath := filepath.Join(home, "Library/Application Support",
		"Plex Media Server/Plug-in Support/Databases/com.plexapp.plugins.library.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dbPath, []byte("stub"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := FindPlexDB()
	if err != nil {
		t.Fatalf("FindPlexDB: %v", err)
	}
	if got != dbPath {
		t.Errorf("FindPlexDB = %q, want %q", got, dbPath)
	}
}
