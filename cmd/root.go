package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/plexpg/plexbench/benchmark"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logFormat string

var rootCmd = &cobra.Command{
	Use:   "plexbench",
	Short: "SQLite vs PostgreSQL benchmarks for a Plex media server",
	Long: `plexbench compares SQLite and PostgreSQL as backing stores for a
Plex media server: per-query latency, concurrent throughput, locking
behavior under mixed read/write load, plus a metadata refresh client
and a diagnostic for the running server's database handles.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: 'json' or 'console'")
}

func setupLog() {
	if strings.ToLower(logFormat) == "json" {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = log.Output(os.Stderr)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

// Execute runs the CLI and maps the outcome to a process exit code:
// 0 success, 1 failure, 130 when the run was interrupted.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		log.Error().Msg("Interrupted")
		return 130
	}
	log.Error().Err(err).Msg("Command failed")
	return 1
}

// resolveDB returns the SQLite database to benchmark: the --db flag when
// given, otherwise the first well-known Plex library location.
func resolveDB(flagPath string) (string, error) {
	if flagPath != "" {
		if _, err := os.Stat(flagPath); err != nil {
			return "", fmt.Errorf("database %s: %w", flagPath, err)
		}
		return flagPath, nil
	}
	path, err := benchmark.FindPlexDB()
	if err != nil {
		return "", err
	}
	log.Info().Str("db", path).Msg("Found Plex database")
	return path, nil
}
