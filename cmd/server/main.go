package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/qfnu-tools/jwxt-relay/internal/api"
	"github.com/qfnu-tools/jwxt-relay/internal/config"
	"github.com/qfnu-tools/jwxt-relay/internal/session/storage/inmem"
	"github.com/qfnu-tools/jwxt-relay/internal/task"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Set up zerolog to use pretty printing
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out: os.Stderr,
	})
	log.Info().Msg("starting up...")

	// Load the application configuration
	log.Info().Msg("loading configuration...")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load the configuration")
	}
	if cfg.IsEnvProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Debug().Str("config", fmt.Sprintf("%+v", cfg)).Msg("")

	// Initialize the in-memory session storage driver
	log.Info().Msg("initializing the session storage...")
	sessions, err := inmem.New()
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize the session storage")
	}

	// Schedule a background task that sweeps expired sessions even while no
	// requests arrive
	sweepTask := task.NewRepeating(func() {
		n, err := sessions.TerminateExpired(context.Background(), cfg.SessionTTL)
		if err != nil {
			log.Error().Err(err).Msg("could not sweep expired sessions")
		} else if n > 0 {
			log.Info().Int("amount", n).Msg("swept expired sessions")
		}
	}, cfg.SweepInterval)
	sweepTask.Start()
	defer sweepTask.Stop(true)

	// Start up the relay API
	log.Info().Str("listen_address", cfg.ListenAddress).Str("upstream", cfg.UpstreamBaseURL).Msg("starting up the relay API...")
	apiService := &api.Service{
		Config:   cfg,
		Sessions: sessions,
	}
	apiErrs := make(chan error, 1)
	apiService.Startup(apiErrs)
	go func() {
		err := <-apiErrs
		log.Fatal().Err(err).Msg("the API service raised an unexpected error")
	}()
	defer func() {
		log.Info().Msg("shutting down the relay API...")
		apiService.Shutdown()
	}()

	log.Info().Msg("done!")
	defer log.Info().Msg("shutting down...")

	// Wait for the application to be terminated
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt)
	<-shutdown
}
