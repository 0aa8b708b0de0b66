package cmd

import (
	"os"
	"time"

	"github.com/plexpg/plexbench/benchmark"
	"github.com/spf13/cobra"
)

var (
	compareDB       string
	compareClients  int
	compareQueries  int
	compareMixedDur time.Duration
)

// compareCmd is the headline benchmark: the same Plex queries on both
// stores, sequential and concurrent.
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Direct SQLite vs PostgreSQL comparison against a live Plex library",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveDB(compareDB)
		if err != nil {
			return err
		}
		return benchmark.RunCompare(cmd.Context(), benchmark.NewReporter(os.Stdout), benchmark.CompareOptions{
			DBPath:        path,
			PG:            benchmark.LoadPGConfig(),
			Clients:       compareClients,
			PerClient:     compareQueries,
			MixedDuration: compareMixedDur,
		})
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVar(&compareDB, "db", "", "Path to the Plex SQLite database (default: auto-discover)")
	compareCmd.Flags().IntVar(&compareClients, "clients", 10, "Concurrent clients in the read test")
	compareCmd.Flags().IntVar(&compareQueries, "queries", 100, "Queries each client issues")
	compareCmd.Flags().DurationVar(&compareMixedDur, "mixed-duration", 5*time.Second, "Length of the mixed read/write test")
}
