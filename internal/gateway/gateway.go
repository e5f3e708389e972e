// Package gateway translates entity operations into store calls and store
// rows back into domain values.
//
// The gateway is stateless. Reads fail soft: they return the value plus a
// known flag, and on any remote error they log and return the neutral value
// with known=false so callers can tell "unknown" from "confirmed empty".
// Writes log and return a coded error from internal/errors.
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/normalize"
	"github.com/cryptoshelf/shelfsync/internal/slot"
	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/telemetry"
)

// Options configures a Gateway.
type Options struct {
	// Capacity is the number of slots per shelf.
	Capacity int
	// Images resolves stored image references.
	Images normalize.ImageResolver
	Logger *slog.Logger
	// Tracer defaults to the global shelfsync tracer.
	Tracer trace.Tracer
}

// Gateway is the remote boundary of the sync layer.
type Gateway struct {
	store    store.Store
	capacity int
	images   normalize.ImageResolver
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a gateway over st.
func New(st store.Store, opts Options) *Gateway {
	if opts.Capacity <= 0 {
		opts.Capacity = slot.CapacitySimple
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}
	return &Gateway{
		store:    st,
		capacity: opts.Capacity,
		images:   opts.Images,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
	}
}

// Capacity returns the configured slot count.
func (g *Gateway) Capacity() int { return g.capacity }

// Images returns the image resolver.
func (g *Gateway) Images() normalize.ImageResolver { return g.images }

func (g *Gateway) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "gateway."+op, trace.WithAttributes(attrs...))
}

// end records err on span and closes it.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domainerrors.CodeOf(err)))
	}
	span.End()
}

// readFailed logs a failed read. Cancellation is not worth a warning.
func (g *Gateway) readFailed(ctx context.Context, op string, err error, args ...any) {
	level := slog.LevelWarn
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	g.logger.Log(ctx, level, op+" failed", append(args, "error", err)...)
}

// writeFailed logs a failed write and returns err unchanged.
func (g *Gateway) writeFailed(ctx context.Context, op string, err error, args ...any) error {
	g.logger.WarnContext(ctx, op+" failed", append(args, "code", domainerrors.CodeOf(err), "error", err)...)
	return err
}

// fetchAll reads every row of table matching q inside its own span.
func (g *Gateway) fetchAll(ctx context.Context, table store.Table, q store.Query) ([]store.Row, error) {
	ctx, span := g.start(ctx, "fetch", attribute.String("table", string(table)))
	rows, err := g.store.FetchAll(ctx, table, q)
	span.SetAttributes(attribute.Int("rows", len(rows)))
	end(span, err)
	return rows, err
}
