package main

import (
	"os"

	"github.com/plexpg/plexbench/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Pretty console logger until the root command parses --log-format.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	os.Exit(cmd.Execute())
}
