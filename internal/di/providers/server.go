package providers

import (
	"errors"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/cryptoshelf/shelfsync/internal/api"
	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/mdns"
	"github.com/cryptoshelf/shelfsync/internal/ratelimit"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	// Port is the bound TCP port.
	Port    int
	limiter *ratelimit.KeyedRateLimiter
	sse     *SSEManagerHandle
	cfg     *config.Config
}

// Shutdown implements do.Shutdownable. Open change streams are closed
// first so the server does not wait on them.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := shutdownContext(h.cfg)()
	defer cancel()

	sseErr := h.sse.Shutdown()
	err := h.Server.Shutdown(ctx)
	h.limiter.Stop()
	return errors.Join(sseErr, err)
}

// ProvideHTTPServer builds the API and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	busHandle := do.MustInvoke[*BusHandle](i)
	limiter := do.MustInvoke[*ratelimit.KeyedRateLimiter](i)

	handler := api.NewServer(api.Options{
		Store:        storeHandle.Store,
		Bus:          busHandle.Bus,
		SSEManager:   sseHandle.Manager,
		WriteLimiter: limiter,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Logger:       log.Component("api"),
	})

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		// No WriteTimeout: change streams stay open.
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}

	go func() {
		log.Info("HTTP server starting", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	port := 0
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	return &HTTPServerHandle{Server: srv, Port: port, limiter: limiter, sse: sseHandle, cfg: cfg}, nil
}

// ProvideAdvertiser announces the running server via mDNS when enabled.
// A failed announcement is logged and shelfd keeps serving.
func ProvideAdvertiser(i do.Injector) (*mdns.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	server := do.MustInvoke[*HTTPServerHandle](i)

	svc := mdns.NewService(log.Component("mdns"))
	if !cfg.Server.Advertise {
		return svc, nil
	}

	err := svc.Start(mdns.Announcement{
		InstanceID: id.MustGenerate(id.PrefixServer),
		Name:       cfg.Server.Name,
		Version:    api.Version,
		Bus:        cfg.Bus.Kind,
	}, server.Port)
	if err != nil {
		log.Warn("mDNS advertisement unavailable", "error", err)
	}
	return svc, nil
}
