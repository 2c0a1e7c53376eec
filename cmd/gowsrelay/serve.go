package main

import (
	"github.com/gbdevw/gowsrelay/cmd/gowsrelay/providers"
	"github.com/gbdevw/gowsrelay/configuration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run the relay server until SIGINT or SIGTERM.

Settings are read from the YAML file named by GOWSRELAY_CONFIG (config.yaml by default), then
from GOWSRELAY_* environment variables. Flags override both.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configuration.LoadConfiguration()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("cert") {
			cfg.Cert, _ = flags.GetString("cert")
		}
		if flags.Changed("key") {
			cfg.Key, _ = flags.GetString("key")
		}
		if flags.Changed("origin") {
			cfg.Origin, _ = flags.GetString("origin")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		app := fx.New(
			fx.Supply(cfg),
			fx.Provide(providers.ProvideLogger),
			fx.Provide(providers.ProvideTracerProvider),
			fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: logger.Named("fx")}
			}),
			// Use invoke to force the server to be instanciated and its hooks to be registered
			fx.Invoke(providers.ProvideRelayServer),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "address to listen on")
	serveCmd.Flags().String("cert", "", "TLS certificate file")
	serveCmd.Flags().String("key", "", "TLS private key file")
	serveCmd.Flags().String("origin", "", "allowed origin")
}
