// Package di wires the shelfd server with samber/do.
package di

import (
	"github.com/samber/do/v2"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/di/providers"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/mdns"
	"github.com/cryptoshelf/shelfsync/internal/ratelimit"
)

// NewContainer creates the container with every shelfd provider.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideTelemetry)

	// Data and events
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideBus)
	do.Provide(injector, providers.ProvideWriteLimiter)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideAdvertiser)

	return injector
}

// Bootstrap initializes every service. The HTTP server starts listening
// once its provider runs.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.TelemetryHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SSEManagerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.BusHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*ratelimit.KeyedRateLimiter](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*mdns.Service](injector); err != nil {
		return err
	}
	return nil
}
