package cmd

import (
	"fmt"
	"os"

	"github.com/plexpg/plexbench/inspect"
	"github.com/prometheus/procfs"
	"github.com/spf13/cobra"
)

var handlesProcPath string

// handlesCmd shows which SQLite files the running Plex server holds
// open. It cannot flush their page caches; that would take a call to
// sqlite3_db_cacheflush inside the server process.
var handlesCmd = &cobra.Command{
	Use:   "handles",
	Short: "List the SQLite database handles of the running Plex server",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := procfs.NewFS(handlesProcPath)
		if err != nil {
			return fmt.Errorf("open procfs at %s: %w", handlesProcPath, err)
		}

		srv, err := inspect.Run(fs)
		if err != nil {
			return err
		}

		out := os.Stdout
		fmt.Fprintf(out, "Plex Media Server: pid %d\n", srv.PID)
		if srv.Cmdline != "" {
			fmt.Fprintf(out, "  cmdline: %s\n", srv.Cmdline)
		}

		if len(srv.DatabaseFiles) == 0 {
			fmt.Fprintf(out, "\nNo open SQLite files found.\n")
		} else {
			fmt.Fprintf(out, "\nOpen SQLite files:\n")
			for _, f := range srv.DatabaseFiles {
				fmt.Fprintf(out, "  %s\n", f)
			}
		}

		if srv.SQLiteLibrary != "" {
			fmt.Fprintf(out, "\nLoaded SQLite library: %s\n", srv.SQLiteLibrary)
		} else {
			fmt.Fprintf(out, "\nNo libsqlite3 mapping found (statically linked).\n")
		}

		fmt.Fprintf(out, "\nNote: the page cache behind these handles can only be flushed\n")
		fmt.Fprintf(out, "from inside the server process (sqlite3_db_cacheflush); this tool\n")
		fmt.Fprintf(out, "stops at the process boundary. Restart Plex to drop the cache.\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(handlesCmd)

	handlesCmd.Flags().StringVar(&handlesProcPath, "proc", procfs.DefaultMountPoint, "procfs mount point to scan")
}
