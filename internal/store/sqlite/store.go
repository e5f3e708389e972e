// Package sqlite is the embedded store backend. It keeps every table in one
// SQLite file and fans committed writes out through an in-process broker,
// which makes it the default remote for single-host setups and tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/store/sqlgen"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed persistence implementing store.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	broker *store.Broker
	now    func() time.Time

	// SQLite allows one writer; serializing here keeps the existence check
	// and the upsert in one consistent view without SQLITE_BUSY retries.
	writeMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger,
		broker: store.NewBroker(0, logger),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close ends every subscription and closes the database.
func (s *Store) Close() error {
	s.broker.Close()
	return s.db.Close()
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
	q.Filter = store.Filter(encodeRow(store.Row(q.Filter)))

	query, args, err := sqlgen.SQLite.Select(schema, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("select", table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, mapError("select", table, err)
	}
	return schema.CoerceAll(out)
}

// FetchOne returns the single row of table matching filter.
// Returns a store.ErrNotFound error on a miss.
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
// conflict key.
func (s *Store) Upsert(ctx context.Context, table store.Table, row store.Row, conflict []string) (store.Change, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return store.Change{}, err
	}
	key, err := schema.ConflictKey(conflict)
	if err != nil {
		return store.Change{}, err
	}
	now := s.now()
	prepared, err := schema.PrepareWrite(row, now)
	if err != nil {
		return store.Change{}, err
	}
	keyFilter, err := conflictFilter(prepared, key)
	if err != nil {
		return store.Change{}, err
	}
	encoded := encodeRow(prepared)
	encodedKey := store.Filter(encodeRow(store.Row(keyFilter)))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Change{}, mapError("upsert", table, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	existsSQL, existsArgs, err := sqlgen.SQLite.Exists(schema, encodedKey)
	if err != nil {
		return store.Change{}, err
	}
	var one int
	existed := true
	if err := tx.QueryRowContext(ctx, existsSQL, existsArgs...).Scan(&one); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return store.Change{}, mapError("upsert", table, err)
		}
		existed = false
	}

	query, args, err := sqlgen.SQLite.Upsert(schema, encoded, key)
	if err != nil {
		return store.Change{}, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return store.Change{}, mapError("upsert", table, err)
	}
	written, err := scanRows(rows)
	if err != nil {
		return store.Change{}, mapError("upsert", table, err)
	}

	// DO NOTHING returns no row when only key columns were written.
	if len(written) == 0 {
		selectSQL, selectArgs, err := sqlgen.SQLite.Select(schema, store.Query{Filter: encodedKey, Limit: 1})
		if err != nil {
			return store.Change{}, err
		}
		rows, err := tx.QueryContext(ctx, selectSQL, selectArgs...)
		if err != nil {
			return store.Change{}, mapError("upsert", table, err)
		}
		if written, err = scanRows(rows); err != nil {
			return store.Change{}, mapError("upsert", table, err)
		}
		if len(written) == 0 {
			return store.Change{}, store.NotFound(table, keyFilter)
		}
	}

	if err := tx.Commit(); err != nil {
		return store.Change{}, mapError("upsert", table, err)
	}

	stored, err := schema.Coerce(written[0])
	if err != nil {
		return store.Change{}, err
	}
	op := store.OpInsert
	if existed {
		op = store.OpUpdate
	}
	change := store.Change{At: now, Table: table, Op: op, Row: stored}
	s.broker.Emit(change)

	s.logger.Debug("row upserted", "table", table, "op", op)
	return change, nil
}

// Update patches every row matching filter and returns the new rows.
func (s *Store) Update(ctx context.Context, table store.Table, filter store.Filter, patch store.Row) ([]store.Row, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	if filter, err = schema.PrepareFilter(filter); err != nil {
		return nil, err
	}
	now := s.now()
	if patch, err = schema.PreparePatch(patch, now); err != nil {
		return nil, err
	}
	query, args, err := sqlgen.SQLite.Update(schema, store.Filter(encodeRow(store.Row(filter))), encodeRow(patch))
	if err != nil {
		return nil, err
	}

	updated, err := s.write(ctx, schema, "update", query, args)
	if err != nil {
		return nil, err
	}
	for _, row := range updated {
		s.broker.Emit(store.Change{At: now, Table: table, Op: store.OpUpdate, Row: row})
	}
	return updated, nil
}

// Delete removes every row matching filter and returns the removed rows. A
// filter that matches nothing is not an error.
func (s *Store) Delete(ctx context.Context, table store.Table, filter store.Filter) ([]store.Row, error) {
	schema, err := store.SchemaOf(table)
	if err != nil {
		return nil, err
	}
	if filter, err = schema.PrepareFilter(filter); err != nil {
		return nil, err
	}
	query, args, err := sqlgen.SQLite.Delete(schema, store.Filter(encodeRow(store.Row(filter))))
	if err != nil {
		return nil, err
	}

	deleted, err := s.write(ctx, schema, "delete", query, args)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, row := range deleted {
		s.broker.Emit(store.Change{At: now, Table: table, Op: store.OpDelete, Row: row})
	}
	return deleted, nil
}

// Subscribe streams committed changes to table.
func (s *Store) Subscribe(ctx context.Context, table store.Table) (store.Subscription, error) {
	if table != "" && !table.Valid() {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownTable, table)
	}
	return s.broker.Subscribe(ctx, table)
}

// write runs a RETURNING statement and coerces the returned rows.
func (s *Store) write(ctx context.Context, schema store.Schema, op, query string, args []any) ([]store.Row, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, schema.Table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, mapError(op, schema.Table, err)
	}
	return schema.CoerceAll(out)
}

// dsn applies the per-connection pragmas to every pooled connection, not
// just the one the Open-time PRAGMA statements ran on.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func conflictFilter(row store.Row, key []string) (store.Filter, error) {
	f := make(store.Filter, len(key))
	for _, k := range key {
		v, ok := row[k]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: conflict column %q missing", store.ErrInvalidInput, k)
		}
		f[k] = v
	}
	return f, nil
}

// encodeRow converts values to the representations stored in the schema:
// booleans as 0/1 and timestamps as RFC3339 text.
func encodeRow(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		switch x := v.(type) {
		case time.Time:
			out[k] = store.FormatTime(x)
		case bool:
			if x {
				out[k] = int64(1)
			} else {
				out[k] = int64(0)
			}
		default:
			out[k] = v
		}
	}
	return out
}

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []store.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func mapError(op string, table store.Table, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return store.Conflict(table, err)
	case strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s references a missing row", store.ErrNotFound, table)
	case errors.Is(err, sql.ErrConnDone), strings.Contains(err.Error(), "database is closed"):
		return fmt.Errorf("%w: %w", store.ErrClosed, err)
	default:
		return store.Unavailable(op, table, err)
	}
}
