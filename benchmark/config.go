package benchmark

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// PGConfig holds the connection parameters for the PostgreSQL side of the
// comparison. Every field can be overridden through a PLEX_PG_* environment
// variable; the defaults match the standard Plex-on-PostgreSQL setup.
type PGConfig struct {
	Host      string // TCP host
	Port      int    // TCP port, also used as the socket suffix
	SocketDir string // directory holding the .s.PGSQL.<port> socket
	Database  string
	User      string
	Password  string
	Schema    string // schema the migrated Plex tables live in
	SSLMode   string
}

// LoadPGConfig reads the PLEX_PG_* environment variables and fills in
// defaults for anything unset.
func LoadPGConfig() PGConfig {
	v := viper.New()
	v.SetEnvPrefix("plex_pg")
	v.AutomaticEnv()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 5432)
	v.SetDefault("socket", "/var/run/postgresql")
	v.SetDefault("database", "plex")
	v.SetDefault("user", "plex")
	v.SetDefault("password", "plex")
	v.SetDefault("schema", "plex")
	v.SetDefault("sslmode", "disable")

	return PGConfig{
		Host:      v.GetString("host"),
		Port:      v.GetInt("port"),
		SocketDir: v.GetString("socket"),
		Database:  v.GetString("database"),
		User:      v.GetString("user"),
		Password:  v.GetString("password"),
		Schema:    v.GetString("schema"),
		SSLMode:   v.GetString("sslmode"),
	}
}

// ConnString renders a lib/pq keyword/value DSN. With viaSocket the host is
// the socket directory, which makes libpq dial the Unix domain socket
// instead of TCP.
func (c PGConfig) ConnString(viaSocket bool) string {
	host := c.Host
	if viaSocket {
		host = c.SocketDir
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}

// Address is the human-readable endpoint for banners and logs.
func (c PGConfig) Address(viaSocket bool) string {
	if viaSocket {
		return fmt.Sprintf("%s/.s.PGSQL.%d", c.SocketDir, c.Port)
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SocketAvailable reports whether the PostgreSQL Unix socket actually
// exists, so scenarios can skip the socket run instead of failing it.
func (c PGConfig) SocketAvailable() bool {
	_, err := os.Stat(filepath.Join(c.SocketDir, fmt.Sprintf(".s.PGSQL.%d", c.Port)))
	return err == nil
}

// ErrNoDatabase is returned when none of the well-known Plex database
// locations exist and no explicit path was given.
var ErrNoDatabase = errors.New("plex sqlite database not found")

// plexDBCandidates lists the well-known locations of the Plex library
// database, most specific first.
func plexDBCandidates() []string {
	const tail = "Plex Media Server/Plug-in Support/Databases/com.plexapp.plugins.library.db"
	const shadowTail = "Plex Media Server/Plug-in Support/Databases/shadow/com.plexapp.plugins.library.db"

	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, "Library/Application Support", tail),
			filepath.Join(home, "Library/Application Support", shadowTail),
		)
	}
	paths = append(paths, filepath.Join("/var/lib/plexmediaserver/Library/Application Support", tail))
	return paths
}

// FindPlexDB returns the first existing Plex SQLite database from the
// well-known locations.
func FindPlexDB() (string, error) {
	for _, p := range plexDBCandidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: checked %d well-known locations, pass --db to point at one", ErrNoDatabase, len(plexDBCandidates()))
}
