// Package api is the shelfd HTTP server: the store contract as huma
// operations over chi, plus the SSE change stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cryptoshelf/shelfsync/internal/bus"
	"github.com/cryptoshelf/shelfsync/internal/ratelimit"
	"github.com/cryptoshelf/shelfsync/internal/sse"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Options holds the server's dependencies.
type Options struct {
	Store      store.Store
	Bus        bus.Bus
	SSEManager *sse.Manager
	// WriteLimiter throttles mutating routes and stream connects per client
	// IP. Nil disables rate limiting.
	WriteLimiter *ratelimit.KeyedRateLimiter
	CORSOrigins  []string
	Logger       *slog.Logger
}

// Server serves the shelfd API.
type Server struct {
	store      store.Store
	bus        bus.Bus
	sseManager *sse.Manager
	sseHandler *sse.Handler
	limiter    *ratelimit.KeyedRateLimiter
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
}

// NewServer creates a server with every route registered.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := chi.NewRouter()
	s := &Server{
		store:      opts.Store,
		bus:        opts.Bus,
		sseManager: opts.SSEManager,
		limiter:    opts.WriteLimiter,
		router:     router,
		logger:     logger,
	}
	if opts.SSEManager != nil {
		s.sseHandler = sse.NewHandler(opts.SSEManager, logger.With("component", "sse"))
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig("shelfd", Version)
	// Responses carry exactly the envelope; no $schema links.
	humaConfig.CreateHooks = nil
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerTableRoutes()
	s.registerChangeRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) registerChangeRoutes() {
	if s.sseHandler == nil {
		return
	}
	var h http.Handler = s.sseHandler
	if s.limiter != nil {
		h = RateLimitMiddleware(s.limiter, "stream", s.logger)(h)
	}
	s.router.Method(http.MethodGet, "/api/v1/changes", h)
}

// publish sends committed changes to the bus. Failures are logged; the
// write itself already succeeded.
func (s *Server) publish(ctx context.Context, changes ...store.Change) {
	if s.bus == nil {
		return
	}
	for _, c := range changes {
		if c.At.IsZero() {
			c.At = time.Now().UTC()
		}
		if err := s.bus.Publish(context.WithoutCancel(ctx), c); err != nil {
			s.logger.Warn("failed to publish change",
				"table", c.Table,
				"op", c.Op,
				"error", err)
		}
	}
}
