package providers

import (
	"context"

	"github.com/gbdevw/gowsrelay/configuration"
	"github.com/gbdevw/gowsrelay/relayserver"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Build the relay server and register hooks to start and stop it with the application.
func ProvideRelayServer(
	lc fx.Lifecycle,
	cfg configuration.Configuration,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
) (*relayserver.RelayServer, error) {
	srv, err := relayserver.NewRelayServer(cfg.ServerOptions(), cfg.Authenticator(), logger, tracerProvider, nil)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
	return srv, nil
}
