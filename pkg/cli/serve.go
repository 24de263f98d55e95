package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nimburion/docstore/pkg/config"
	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/observability/metrics"
	"github.com/nimburion/docstore/pkg/observability/tracing"
	"github.com/nimburion/docstore/pkg/server"
	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/store/factory"
	"github.com/nimburion/docstore/pkg/version"
)

type configLoader func(cmd *cobra.Command) (*config.Config, logger.Logger, error)

func newServeCommand(loadConfig configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunServer(ctx, cfg, log)
		},
	}
	cmd.Flags().Int("http-port", 0, "HTTP port override")
	return cmd
}

// RunServer connects the configured store and serves the HTTP facade until
// ctx is cancelled.
func RunServer(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		Insecure:       cfg.Observability.Tracing.Insecure,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	var (
		registry    *metrics.Registry
		metricsPath string
		storeOpts   []store.Option
	)
	if cfg.Observability.Metrics.Enabled {
		registry = metrics.NewRegistry()
		metricsPath = cfg.Observability.Metrics.Path
		storeOpts = append(storeOpts, store.WithObserver(registry.Store()))
	}

	client, err := factory.NewClient(cfg.Store, log, storeOpts...)
	if err != nil {
		return fmt.Errorf("create store client: %w", err)
	}
	if registry != nil {
		untrack := registry.Store().TrackReadiness(client.Backend(), client.Health())
		defer untrack()
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer disconnect(client, log)

	serverCfg, err := server.ConfigFromHTTP(cfg.HTTP)
	if err != nil {
		return fmt.Errorf("configure server: %w", err)
	}

	engine := server.NewRouter(server.RouterOptions{
		Client:      client,
		Logger:      log,
		HTTP:        cfg.HTTP,
		Metrics:     registry,
		MetricsPath: metricsPath,
		Tracing:     cfg.Observability.Tracing.Enabled,
	})

	log.Info("docstore starting", "version", version.Current(cfg.Service.Name).String(), "backend", client.Backend())
	return server.NewServer(serverCfg, engine, log).Start(ctx)
}

func disconnect(client store.Client, log logger.Logger) {
	if err := client.Disconnect(context.Background()); err != nil && !errors.Is(err, store.ErrNotInitialized) {
		log.Warn("store disconnect failed", "error", err)
	}
}
