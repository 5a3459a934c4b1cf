package main

import (
	"fmt"
	"os"

	"github.com/llxisdsh/synctable/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Set up zerolog to use pretty printing
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out: os.Stderr,
	})

	if err := rootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func rootCommand() *cobra.Command {
	cfg := new(config.Config)
	cmd := &cobra.Command{
		Use:           "synctable",
		Short:         "Serve or exercise a synchronized hash table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load the application configuration
			loaded, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			*cfg = *loaded
			if cfg.IsEnvProduction() {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Debug().Str("config", fmt.Sprintf("%+v", cfg)).Msg("")
			return nil
		},
	}
	cmd.AddCommand(serveCommand(cfg), benchCommand(cfg))
	return cmd
}
