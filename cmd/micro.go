package cmd

import (
	"os"

	"github.com/plexpg/plexbench/benchmark"
	"github.com/spf13/cobra"
)

var microIterations int

// microCmd measures raw driver round-trip cost on scratch tables, away
// from any real Plex data.
var microCmd = &cobra.Command{
	Use:   "micro",
	Short: "Per-statement driver latency microbenchmark",
	RunE: func(cmd *cobra.Command, args []string) error {
		return benchmark.RunMicro(cmd.Context(), benchmark.NewReporter(os.Stdout), benchmark.MicroOptions{
			PG:         benchmark.LoadPGConfig(),
			Iterations: microIterations,
		})
	},
}

func init() {
	rootCmd.AddCommand(microCmd)

	microCmd.Flags().IntVar(&microIterations, "iterations", 10000, "Iterations per test")
}
