package dto

import "github.com/cryptoshelf/shelfsync/internal/store"

// SelectRequest filters and orders a table read.
type SelectRequest struct {
	Filter  store.Filter `json:"filter,omitempty" doc:"Column equality filter; null matches NULL"`
	OrderBy string       `json:"order_by,omitempty" doc:"Column to order by"`
	Desc    bool         `json:"desc,omitempty" doc:"Descending order"`
	Limit   uint64       `json:"limit,omitempty" maximum:"10000" doc:"Maximum rows, 0 for all"`
}

// Query converts the request to a store query.
func (r SelectRequest) Query() store.Query {
	return store.Query{Filter: r.Filter, OrderBy: r.OrderBy, Desc: r.Desc, Limit: r.Limit}
}

// SelectInput wraps a select request for huma.
type SelectInput struct {
	TableParam
	Body SelectRequest
}

// FilterRequest carries a filter for single-row reads and deletes.
type FilterRequest struct {
	Filter store.Filter `json:"filter" doc:"Column equality filter"`
}

// FetchOneInput wraps a single-row read for huma.
type FetchOneInput struct {
	TableParam
	Body FilterRequest
}

// DeleteInput wraps a conditional delete for huma.
type DeleteInput struct {
	TableParam
	Body FilterRequest
}

// UpsertRequest writes one row keyed by its conflict columns.
type UpsertRequest struct {
	Row      store.Row `json:"row" doc:"Row to insert or merge"`
	Conflict []string  `json:"conflict,omitempty" doc:"Unique key columns; empty means the primary key"`
}

// UpsertInput wraps an upsert for huma.
type UpsertInput struct {
	TableParam
	Body UpsertRequest
}

// UpdateRequest patches every row matching Filter.
type UpdateRequest struct {
	Filter store.Filter `json:"filter" doc:"Column equality filter"`
	Patch  store.Row    `json:"patch" doc:"Columns to set"`
}

// UpdateInput wraps an update for huma.
type UpdateInput struct {
	TableParam
	Body UpdateRequest
}

// RowsResponse returns a list of rows.
type RowsResponse struct {
	Rows []store.Row `json:"rows" doc:"Matching rows"`
}

// RowsOutput wraps RowsResponse for huma.
type RowsOutput struct {
	Body RowsResponse
}

// RowResponse returns one row.
type RowResponse struct {
	Row store.Row `json:"row" doc:"Matching row"`
}

// RowOutput wraps RowResponse for huma.
type RowOutput struct {
	Body RowResponse
}

// ChangeOutput wraps a committed change for huma.
type ChangeOutput struct {
	Body store.Change
}
