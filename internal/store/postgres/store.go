// Package postgres is the shared store backend. Reads and writes go through
// a pgx pool; committed changes are published by a row trigger with
// pg_notify and picked up by one LISTEN connection per Store.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/store/sqlgen"
)

// NotifyChannel is the channel the change trigger notifies on.
const NotifyChannel = "shelf_changes"

//go:embed migrations/*.sql
var migrations embed.FS

// Querier is the part of *pgxpool.Pool the store uses. pgxmock's pool
// satisfies it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Config configures Open.
type Config struct {
	DSN      string
	MaxConns int32
	// ListenBackoff is the first delay before re-LISTENing after the
	// notification connection drops. It doubles up to MaxListenBackoff.
	ListenBackoff    time.Duration
	MaxListenBackoff time.Duration
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	db     Querier
	pool   *pgxpool.Pool
	logger *slog.Logger
	broker *store.Broker

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ store.Store = (*Store)(nil)

// Open connects, applies migrations and starts the change listener.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := New(pool, logger)
	s.pool = pool

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	backoff, maxBackoff := cfg.ListenBackoff, cfg.MaxListenBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if maxBackoff < backoff {
		maxBackoff = 30 * time.Second
	}
	s.wg.Go(func() { s.listen(listenCtx, backoff, maxBackoff) })

	return s, nil
}

// New wraps an existing querier. Stores built this way never receive
// notifications; Subscribe still works but stays silent.
func New(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		db:     db,
		logger: logger,
		broker: store.NewBroker(0, logger),
	}
}

// NewPool creates a connection pool and pings it so a bad DSN fails fast.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close stops the listener, ends subscriptions and closes the pool.
func (s *Store) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.broker.Close()
		if s.pool != nil {
			s.pool.Close()
		}
	})
	return nil
}

// FetchAll returns the rows of table matching q.
func (s *Store) FetchAll(ctx context.Context, table store.Table, q store.Query) ([]store.Row, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	if q.Filter, err = schema.PrepareFilter(q.Filter); err != nil {
		return nil, err
	}
	query, args, err := sqlgen.Postgres.Select(schema, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, schema, "select", query, args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchOne returns the single row matching filter.
func (s *Store) FetchOne(ctx context.Context, table store.Table, filter store.Filter) (store.Row, error) {
	if len(filter) == 0 {
		return nil, store.ErrEmptyFilter
	}
	rows, err := s.FetchAll(ctx, table, store.Query{Filter: filter, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.NotFound(table, filter)
	}
	return rows[0], nil
}

// Upsert inserts row or replaces the non-key columns of the row sharing its
// conflict key in a single statement.
func (s *Store) Upsert(ctx context.Context, table store.Table, row store.Row, conflict []string) (store.Change, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return store.Change{}, err
	}
	key, err := schema.ConflictKey(conflict)
	if err != nil {
		return store.Change{}, err
	}
	now := time.Now().UTC()
	prepared, err := schema.PrepareWrite(row, now)
	if err != nil {
		return store.Change{}, err
	}
	keyFilter := make(store.Filter, len(key))
	for _, k := range key {
		v, ok := prepared[k]
		if !ok || v == nil {
			return store.Change{}, fmt.Errorf("%w: conflict column %q missing", store.ErrInvalidInput, k)
		}
		keyFilter[k] = v
	}

	query, args, err := sqlgen.Postgres.Upsert(schema, prepared, key)
	if err != nil {
		return store.Change{}, err
	}
	written, err := s.query(ctx, schema, "upsert", query, args)
	if err != nil {
		return store.Change{}, err
	}

	op := store.OpUpdate
	if len(written) == 0 {
		// DO NOTHING: the key already existed and nothing else was written.
		stored, err := s.FetchOne(ctx, table, keyFilter)
		if err != nil {
			return store.Change{}, err
		}
		return store.Change{At: now, Table: table, Op: op, Row: stored}, nil
	}

	stored := written[0]
	if inserted, _ := stored[sqlgen.InsertedColumn].(bool); inserted {
		op = store.OpInsert
	}
	delete(stored, sqlgen.InsertedColumn)

	s.logger.Debug("row upserted", "table", table, "op", op)
	return store.Change{At: now, Table: table, Op: op, Row: stored}, nil
}

// Update patches every row matching filter.
func (s *Store) Update(ctx context.Context, table store.Table, filter store.Filter, patch store.Row) ([]store.Row, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	if filter, err = schema.PrepareFilter(filter); err != nil {
		return nil, err
	}
	if patch, err = schema.PreparePatch(patch, time.Now().UTC()); err != nil {
		return nil, err
	}
	query, args, err := sqlgen.Postgres.Update(schema, filter, patch)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, schema, "update", query, args)
}

// Delete removes every row matching filter and returns the removed rows.
func (s *Store) Delete(ctx context.Context, table store.Table, filter store.Filter) ([]store.Row, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	if filter, err = schema.PrepareFilter(filter); err != nil {
		return nil, err
	}
	query, args, err := sqlgen.Postgres.Delete(schema, filter)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, schema, "delete", query, args)
}

// Subscribe streams committed changes to table as delivered by NOTIFY.
func (s *Store) Subscribe(ctx context.Context, table store.Table) (store.Subscription, error) {
	if table != "" && !table.Valid() {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownTable, table)
	}
	return s.broker.Subscribe(ctx, table)
}

func (s *Store) query(ctx context.Context, schema store.Schema, op, query string, args []any) ([]store.Row, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, schema.Table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, mapError(op, schema.Table, err)
	}
	out := make([]store.Row, len(maps))
	for i, m := range maps {
		out[i] = store.Row(m)
	}
	return schema.CoerceAll(out)
}

// mapError converts pgx/pgconn errors to store errors.
// context.DeadlineExceeded and context.Canceled pass through.
func mapError(op string, table store.Table, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", op, table, store.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return store.Conflict(table, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s %s: %w", op, table, store.ErrNotFound)
		case "23514", "22P02": // check_violation, invalid_text_representation
			return fmt.Errorf("%s %s: %w", op, table, store.ErrInvalidInput)
		}
	}
	return store.Unavailable(op, table, err)
}
