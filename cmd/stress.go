package cmd

import (
	"os"
	"time"

	"github.com/plexpg/plexbench/benchmark"
	"github.com/spf13/cobra"
)

var (
	stressDB       string
	stressDuration time.Duration
	stressStreams  int
)

// stressCmd hammers each store with the worst-case Plex workload:
// library scanners and Kometa writing while playback streams read.
var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Library scan + playback stress test on both stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveDB(stressDB)
		if err != nil {
			return err
		}
		return benchmark.RunStress(cmd.Context(), benchmark.NewReporter(os.Stdout), benchmark.StressOptions{
			DBPath:   path,
			PG:       benchmark.LoadPGConfig(),
			Duration: stressDuration,
			Streams:  stressStreams,
		})
	},
}

func init() {
	rootCmd.AddCommand(stressCmd)

	stressCmd.Flags().StringVar(&stressDB, "db", "", "Path to the Plex SQLite database (default: auto-discover)")
	stressCmd.Flags().DurationVar(&stressDuration, "duration", 10*time.Second, "How long each store is stressed")
	stressCmd.Flags().IntVar(&stressStreams, "streams", 4, "Concurrent playback streams to simulate")
}
