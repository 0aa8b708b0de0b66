// Package inspect locates a running Plex Media Server through procfs and
// reports the SQLite state visible from outside the process: which
// database files it holds open and which SQLite library it loaded.
//
// That is as far as an external tool can go. Flushing the page cache
// behind those handles needs sqlite3_db_cacheflush on the in-process
// connection objects, which cannot be reached from another process; the
// findings stop at that boundary and say so.
package inspect

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/procfs"
)

// ServerName is the process name the Plex Media Server runs under.
const ServerName = "Plex Media Server"

// ErrServerNotRunning is returned when no Plex Media Server process is
// visible in the procfs tree.
var ErrServerNotRunning = errors.New("no Plex Media Server process found")

// Server is what one inspection pass found.
type Server struct {
	PID           int
	Cmdline       string
	DatabaseFiles []string // open descriptors resolving to SQLite files
	SQLiteLibrary string   // loaded libsqlite3 mapping, empty when linked statically
}

// isPlexServer matches a process against the Plex server name. The comm
// file truncates at 15 characters, so a prefix of the full name counts;
// the cmdline is checked first because it carries the whole path.
func isPlexServer(p procfs.Proc) bool {
	if args, err := p.CmdLine(); err == nil && len(args) > 0 {
		if strings.Contains(strings.Join(args, " "), ServerName) {
			return true
		}
	}
	comm, err := p.Comm()
	if err != nil || comm == "" {
		return false
	}
	return comm == ServerName || (len(comm) >= 15 && strings.HasPrefix(ServerName, comm))
}

// FindServer scans the process table for the Plex Media Server.
func FindServer(fs procfs.FS) (procfs.Proc, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return procfs.Proc{}, fmt.Errorf("scan process table: %w", err)
	}
	for _, p := range procs {
		if isPlexServer(p) {
			return p, nil
		}
	}
	return procfs.Proc{}, ErrServerNotRunning
}

// sqliteFile reports whether an fd target looks like a SQLite database,
// write-ahead log or shared-memory index.
func sqliteFile(path string) bool {
	switch filepath.Ext(path) {
	case ".db", ".db-wal", ".db-shm":
		return true
	}
	return false
}

// InspectServer collects the SQLite-related state of one process: its
// open database files and the shared SQLite library mapping, if any.
func InspectServer(p procfs.Proc) (Server, error) {
	srv := Server{PID: p.PID}

	if args, err := p.CmdLine(); err == nil {
		srv.Cmdline = strings.Join(args, " ")
	}

	targets, err := p.FileDescriptorTargets()
	if err != nil {
		return srv, fmt.Errorf("read file descriptors of pid %d: %w", p.PID, err)
	}
	seen := make(map[string]bool)
	for _, t := range targets {
		if sqliteFile(t) && !seen[t] {
			seen[t] = true
			srv.DatabaseFiles = append(srv.DatabaseFiles, t)
		}
	}

	// Memory maps are best-effort: Plex links SQLite statically on some
	// platforms and then no libsqlite3 mapping exists.
	if maps, err := p.ProcMaps(); err == nil {
		for _, m := range maps {
			if strings.Contains(filepath.Base(m.Pathname), "libsqlite3") {
				srv.SQLiteLibrary = m.Pathname
				break
			}
		}
	}

	return srv, nil
}

// Run performs one full inspection against the given procfs mount.
func Run(fs procfs.FS) (Server, error) {
	p, err := FindServer(fs)
	if err != nil {
		return Server{}, err
	}
	return InspectServer(p)
}
