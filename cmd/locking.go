package cmd

import (
	"os"
	"time"

	"github.com/plexpg/plexbench/benchmark"
	"github.com/spf13/cobra"
)

var (
	lockingDB       string
	lockingWriteDur time.Duration
)

// lockingCmd demonstrates reader blocking during long writes and the
// single-writer limit, the two behaviors that make Plex stutter on SQLite.
var lockingCmd = &cobra.Command{
	Use:   "locking",
	Short: "Locking and concurrency comparison between the stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveDB(lockingDB)
		if err != nil {
			return err
		}
		return benchmark.RunLocking(cmd.Context(), benchmark.NewReporter(os.Stdout), benchmark.LockingOptions{
			DBPath:        path,
			PG:            benchmark.LoadPGConfig(),
			WriteDuration: lockingWriteDur,
		})
	},
}

func init() {
	rootCmd.AddCommand(lockingCmd)

	lockingCmd.Flags().StringVar(&lockingDB, "db", "", "Path to the Plex SQLite database (default: auto-discover)")
	lockingCmd.Flags().DurationVar(&lockingWriteDur, "write-duration", 3*time.Second, "How long the blocking writer holds its transaction")
}
