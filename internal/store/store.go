// Package store defines the persistent-store contract the sync layer talks
// to: raw rows addressed by table, equality filters, idempotent upserts on a
// unique key, conditional deletes, and a per-table change stream.
//
// Backends live in subpackages (sqlite, postgres, httpstore). They share the
// table registry in schema.go so every backend accepts and returns the same
// columns with the same Go types.
package store

import (
	"context"
	"maps"
	"time"
)

// Table names a store table.
type Table string

// Tables.
const (
	TableProfiles    Table = "profiles"
	TableAccessories Table = "accessories"
	TableThemes      Table = "themes"
	TableSkins       Table = "skins"
	TableShelves     Table = "shelves"
	TableShelfItems  Table = "shelf_items"
	TableReactions   Table = "reactions"
)

// Tables lists every table in dependency order.
var Tables = []Table{
	TableProfiles, TableAccessories, TableThemes, TableSkins,
	TableShelves, TableShelfItems, TableReactions,
}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// Row is one record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	if r == nil {
		return Row{}
	}
	return maps.Clone(r)
}

// Filter matches rows whose columns equal every given value. A nil value
// matches NULL.
type Filter map[string]any

// Query selects rows.
type Query struct {
	Filter  Filter `json:"filter,omitempty"`
	OrderBy string `json:"order_by,omitempty"`
	Desc    bool   `json:"desc,omitempty"`
	Limit   uint64 `json:"limit,omitempty"`
}

// Op is the kind of row change.
type Op string

// Change operations.
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes a committed row change. For deletes Row holds the removed
// row.
type Change struct {
	At    time.Time `json:"at"`
	Table Table     `json:"table"`
	Op    Op        `json:"op"`
	Row   Row       `json:"row"`
}

// Store is the remote source of truth. Every method is safe for concurrent use.
type Store interface {
	// FetchAll returns every row matching q.
	FetchAll(ctx context.Context, table Table, q Query) ([]Row, error)
	// FetchOne returns the single row matching filter or an ErrNotFound error.
	FetchOne(ctx context.Context, table Table, filter Filter) (Row, error)
	// Upsert inserts row or, when a row with the same conflict columns
	// exists, replaces its non-key columns. A missing generated id is
	// assigned by the store. The stored row is returned.
	Upsert(ctx context.Context, table Table, row Row, conflict []string) (Change, error)
	// Update patches every row matching filter and returns the new rows.
	Update(ctx context.Context, table Table, filter Filter, patch Row) ([]Row, error)
	// Delete removes every row matching filter and returns the removed rows.
	Delete(ctx context.Context, table Table, filter Filter) ([]Row, error)
	// Subscribe streams committed changes to table until ctx ends or the
	// subscription is closed.
	Subscribe(ctx context.Context, table Table) (Subscription, error)
	Close() error
}

// Subscription is a live change stream.
type Subscription interface {
	// Events is closed when the stream ends.
	Events() <-chan Change
	// Err reports why the stream ended. Nil after Close or context end.
	Err() error
	Close()
}

// EventEmitter receives committed changes. Backends and the API use it to
// broadcast without depending on the transport.
type EventEmitter interface {
	Emit(change Change)
}

// NoopEmitter is a no-op implementation of EventEmitter.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(Change) {}

// NewNoopEmitter creates a new no-op emitter.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}
