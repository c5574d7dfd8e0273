package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dialogeval/internal/setup"
)

// Runs one pending test run to completion from the command line. The API
// server triggers runs the same way; this entrypoint exists for operating
// runs out of band and for re-driving a stuck queue from a shell.
func main() {
	runID := flag.Int64("run-id", 0, "ID of the pending test run to execute")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	logger := log.Logger

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	if *runID == 0 {
		log.Fatal().Msg("-run-id is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := setup.LoadConfig()
	deps, err := setup.Wire(ctx, cfg, &logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer deps.Store.Close()

	log.Info().Int64("run_id", *runID).Msg("Executing test run")

	if err := deps.Controller.Start(ctx, *runID); err != nil {
		log.Fatal().Int64("run_id", *runID).Err(err).Msg("Run did not complete")
	}

	log.Info().Int64("run_id", *runID).Msg("Run finished")
}
