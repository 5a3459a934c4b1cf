package main

import (
	"net/http"
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/llxisdsh/synctable"
	"github.com/llxisdsh/synctable/internal/config"
	"github.com/llxisdsh/synctable/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a string table over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	table, err := synctable.New[string, string](append(cfg.TableOptions(), synctable.WithLogger(log.Logger))...)
	if err != nil {
		return errors.Wrap(err, "could not create the table")
	}

	// Start up the table API
	log.Info().Str("address", cfg.ListenAddress).Msg("starting up the table API...")
	service := &server.Service{
		Config: cfg,
		Table:  table,
	}
	apiErrs := make(chan error, 1)
	go func() {
		if err := service.Startup(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			apiErrs <- err
		}
	}()
	defer func() {
		log.Info().Msg("shutting down the table API...")
		service.Shutdown()
	}()

	log.Info().Msg("done!")
	defer log.Info().Msg("shutting down...")

	// Wait for the application to be terminated
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt)
	select {
	case <-shutdown:
		return nil
	case err := <-apiErrs:
		return errors.Wrap(err, "the table API raised an unexpected error")
	}
}
