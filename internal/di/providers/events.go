package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/cryptoshelf/shelfsync/internal/bus"
	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/ratelimit"
	"github.com/cryptoshelf/shelfsync/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel  context.CancelFunc
	timeout func() (context.Context, context.CancelFunc)
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := h.timeout()
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(cfg.Server.Heartbeat, log.Component("sse"))

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
		timeout: shutdownContext(cfg),
	}, nil
}

// BusHandle is the change bus with its forwarder into the SSE manager.
type BusHandle struct {
	bus.Bus
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *BusHandle) Shutdown() error {
	h.cancel()
	return h.Close()
}

// ProvideBus connects the configured bus and forwards every change it
// carries to this instance's SSE clients.
func ProvideBus(i do.Injector) (*BusHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	b, err := bus.New(cfg.Bus, log.Component("bus"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := b.StartForwarder(ctx, sseHandle.Emit); err != nil {
		cancel()
		_ = b.Close()
		return nil, err
	}

	log.Info("Change bus ready", "kind", cfg.Bus.Kind)
	return &BusHandle{Bus: b, cancel: cancel}, nil
}

// ProvideWriteLimiter provides the per-IP limiter for writes and stream
// connects.
func ProvideWriteLimiter(i do.Injector) (*ratelimit.KeyedRateLimiter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return ratelimit.New(cfg.Server.WriteRate, cfg.Server.WriteBurst), nil
}
