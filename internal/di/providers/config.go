// Package providers contains the samber/do providers for shelfd.
package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/telemetry"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting shelfd",
		"environment", cfg.App.Environment,
		"log_level", cfg.Log.Level,
		"remote", cfg.Remote.Kind,
		"bus", cfg.Bus.Kind,
	)

	return log, nil
}

// TelemetryHandle flushes the tracer provider on shutdown.
type TelemetryHandle struct {
	shutdown telemetry.Shutdown
	timeout  func() (context.Context, context.CancelFunc)
}

// Shutdown implements do.Shutdownable.
func (h *TelemetryHandle) Shutdown() error {
	ctx, cancel := h.timeout()
	defer cancel()
	return h.shutdown(ctx)
}

// ProvideTelemetry installs the OTLP tracer provider when enabled.
func ProvideTelemetry(i do.Injector) (*TelemetryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	shutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.Enabled {
		log.Info("Tracing enabled", "endpoint", cfg.Telemetry.Endpoint)
	}
	return &TelemetryHandle{shutdown: shutdown, timeout: shutdownContext(cfg)}, nil
}

// shutdownContext bounds a Shutdown call by the configured timeout.
func shutdownContext(cfg *config.Config) func() (context.Context, context.CancelFunc) {
	return func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	}
}
