// Package httpstore is a store.Store backed by a remote shelfd instance.
// Table operations are JSON POSTs; the change stream is Server-Sent Events.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cryptoshelf/shelfsync/internal/api/dto"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Client implements store.Store over the shelfd HTTP API.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ store.Store = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for table operations. Its
// transport is shared with the change stream.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each table operation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the shelfd instance at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid remote url %q", store.ErrInvalidInput, baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: slog.New(slog.DiscardHandler),
		subs:   make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Streams outlive any request timeout.
	c.stream = &http.Client{Transport: c.http.Transport}
	return c, nil
}

// Close ends every open subscription. In-flight table calls finish on their
// own.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for sub := range subs {
		sub.finish(store.ErrClosed)
	}
	return nil
}

// FetchAll implements store.Store.
func (c *Client) FetchAll(ctx context.Context, table store.Table, q store.Query) ([]store.Row, error) {
	var out dto.RowsResponse
	req := dto.SelectRequest{Filter: q.Filter, OrderBy: q.OrderBy, Desc: q.Desc, Limit: q.Limit}
	if err := c.call(ctx, table, "select", req, &out); err != nil {
		return nil, err
	}
	return coerceRows(table, out.Rows)
}

// FetchOne implements store.Store.
func (c *Client) FetchOne(ctx context.Context, table store.Table, filter store.Filter) (store.Row, error) {
	var out dto.RowResponse
	if err := c.call(ctx, table, "one", dto.FilterRequest{Filter: filter}, &out); err != nil {
		return nil, err
	}
	rows, err := coerceRows(table, []store.Row{out.Row})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// Upsert implements store.Store.
func (c *Client) Upsert(ctx context.Context, table store.Table, row store.Row, conflict []string) (store.Change, error) {
	var out store.Change
	if err := c.call(ctx, table, "upsert", dto.UpsertRequest{Row: row, Conflict: conflict}, &out); err != nil {
		return store.Change{}, err
	}
	return coerceChange(out)
}

// Update implements store.Store.
func (c *Client) Update(ctx context.Context, table store.Table, filter store.Filter, patch store.Row) ([]store.Row, error) {
	var out dto.RowsResponse
	if err := c.call(ctx, table, "update", dto.UpdateRequest{Filter: filter, Patch: patch}, &out); err != nil {
		return nil, err
	}
	return coerceRows(table, out.Rows)
}

// Delete implements store.Store.
func (c *Client) Delete(ctx context.Context, table store.Table, filter store.Filter) ([]store.Row, error) {
	var out dto.RowsResponse
	if err := c.call(ctx, table, "delete", dto.FilterRequest{Filter: filter}, &out); err != nil {
		return nil, err
	}
	return coerceRows(table, out.Rows)
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// call POSTs body to /api/v1/tables/{table}/{verb} and decodes the envelope
// data into out.
func (c *Client) call(ctx context.Context, table store.Table, verb string, body, out any) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", store.ErrUnknownTable, table)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", verb, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/api/v1/tables/"+url.PathEscape(string(table))+"/"+verb), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", verb, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return store.Unavailable(verb, table, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return store.Unavailable(verb, table, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, raw)
	}

	env := dto.Envelope[jsontext.Value]{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return store.Unavailable(verb, table, fmt.Errorf("decode envelope: %w", err))
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return store.Unavailable(verb, table, fmt.Errorf("decode %s response: %w", verb, err))
	}
	return nil
}

// decodeError rebuilds the domain error the server reported. Bodies that are
// not envelopes fall back to the status code.
func decodeError(status int, raw []byte) error {
	var env dto.Envelope[struct{}]
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil && env.Error.Code != "" {
		return &domainerrors.Error{
			Code:    domainerrors.Code(env.Error.Code),
			Message: env.Error.Message,
			Details: env.Error.Details,
		}
	}
	code := domainerrors.CodeFromStatus(status)
	return &domainerrors.Error{Code: code, Message: fmt.Sprintf("remote returned %d", status)}
}

func coerceRows(table store.Table, rows []store.Row) ([]store.Row, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	return schema.CoerceAll(rows)
}

func coerceChange(change store.Change) (store.Change, error) {
	schema, err := store.SchemaOf(change.Table)
	if err != nil {
		return store.Change{}, err
	}
	row, err := schema.Coerce(change.Row)
	if err != nil {
		return store.Change{}, err
	}
	change.Row = row
	return change, nil
}
