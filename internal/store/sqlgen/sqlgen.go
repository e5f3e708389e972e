// Package sqlgen builds the SQL statements shared by the relational
// backends. Column and table names are checked against the store schema
// before they reach SQL text; values are always bound as arguments.
package sqlgen

import (
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Dialect captures the differences between the relational backends.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	// Returning is appended to INSERT statements after RETURNING *. Postgres
	// uses it to report whether an upsert inserted.
	Returning string
}

// Dialects.
var (
	SQLite   = Dialect{Name: "sqlite", Placeholder: sq.Question}
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, Returning: ", (xmax = 0) AS " + InsertedColumn}
)

// InsertedColumn is the synthetic column Postgres upserts return.
const InsertedColumn = "_inserted"

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}

// Select builds a SELECT for q. Filter keys must already be validated.
func (d Dialect) Select(schema store.Schema, q store.Query) (string, []any, error) {
	b := d.builder().Select("*").From(string(schema.Table))
	if len(q.Filter) > 0 {
		b = b.Where(sq.Eq(q.Filter))
	}
	if q.OrderBy != "" {
		if err := schema.CheckColumns(q.OrderBy); err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		b = b.OrderBy(q.OrderBy + " " + dir)
	}
	if q.Limit > 0 {
		b = b.Limit(q.Limit)
	}
	return b.ToSql()
}

// Exists builds a SELECT that returns one row when filter matches.
func (d Dialect) Exists(schema store.Schema, filter store.Filter) (string, []any, error) {
	return d.builder().Select("1").From(string(schema.Table)).Where(sq.Eq(filter)).Limit(1).ToSql()
}

// Upsert builds INSERT ... ON CONFLICT (key) DO UPDATE SET ... RETURNING *.
// The conflict key columns, id and created_at are never overwritten.
func (d Dialect) Upsert(schema store.Schema, row store.Row, conflict []string) (string, []any, error) {
	cols := store.Keys(row)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("%w: empty row", store.ErrInvalidInput)
	}
	values := make([]any, len(cols))
	for i, c := range cols {
		values[i] = row[c]
	}

	var sets []string
	for _, c := range cols {
		if slices.Contains(conflict, c) || c == "id" || c == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	suffix := fmt.Sprintf("ON CONFLICT (%s) %s RETURNING *%s", strings.Join(conflict, ", "), action, d.Returning)

	return d.builder().
		Insert(string(schema.Table)).
		Columns(cols...).
		Values(values...).
		Suffix(suffix).
		ToSql()
}

// Update builds UPDATE ... SET ... WHERE ... RETURNING *.
func (d Dialect) Update(schema store.Schema, filter store.Filter, patch store.Row) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, store.ErrEmptyFilter
	}
	b := d.builder().Update(string(schema.Table))
	for _, c := range store.Keys(patch) {
		b = b.Set(c, patch[c])
	}
	return b.Where(sq.Eq(filter)).Suffix("RETURNING *").ToSql()
}

// Delete builds DELETE ... WHERE ... RETURNING *. An empty filter is refused.
func (d Dialect) Delete(schema store.Schema, filter store.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, store.ErrEmptyFilter
	}
	return d.builder().Delete(string(schema.Table)).Where(sq.Eq(filter)).Suffix("RETURNING *").ToSql()
}
