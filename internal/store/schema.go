package store

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ColumnType is the Go type a column value is coerced to.
type ColumnType int

// Column types.
const (
	ColText ColumnType = iota
	ColInt
	ColBool
	ColTime
)

// Column describes one table column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema describes a table: its columns, primary key and unique keys.
type Schema struct {
	Table      Table
	Columns    []Column
	PrimaryKey []string
	Unique     [][]string
	// GeneratedID marks tables whose single "id" key is assigned by the store
	// when a written row omits it.
	GeneratedID bool
}

func text(name string) Column    { return Column{Name: name, Type: ColText} }
func integer(name string) Column { return Column{Name: name, Type: ColInt} }
func boolean(name string) Column { return Column{Name: name, Type: ColBool} }
func stamp(name string) Column   { return Column{Name: name, Type: ColTime} }

var schemas = map[Table]Schema{
	TableProfiles: {
		Table: TableProfiles,
		Columns: []Column{
			text("id"), text("handle"), text("avatar_url"), text("twitter_handle"), text("role"),
			boolean("is_verified"), boolean("is_hidden"), stamp("created_at"), stamp("updated_at"),
		},
		PrimaryKey:  []string{"id"},
		GeneratedID: true,
	},
	TableAccessories: {
		Table: TableAccessories,
		Columns: []Column{
			text("id"), text("name"), text("category"), text("rarity"),
			text("image"), text("image_url"), text("image_path"),
			boolean("is_active"), boolean("is_photo_frame"), stamp("created_at"), stamp("updated_at"),
		},
		PrimaryKey:  []string{"id"},
		GeneratedID: true,
	},
	TableThemes: {
		Table: TableThemes,
		Columns: []Column{
			text("id"), text("name"), text("type"), text("value"), text("page_background"),
			text("image_url"), text("image_path"), boolean("is_active"), stamp("created_at"), stamp("updated_at"),
		},
		PrimaryKey:  []string{"id"},
		Unique:      [][]string{{"name"}},
		GeneratedID: true,
	},
	TableSkins: {
		Table: TableSkins,
		Columns: []Column{
			text("id"), text("name"), text("image_url"), text("image_path"), text("frame_color"),
			boolean("is_active"), stamp("created_at"), stamp("updated_at"),
		},
		PrimaryKey:  []string{"id"},
		GeneratedID: true,
	},
	TableShelves: {
		Table: TableShelves,
		Columns: []Column{
			text("id"), text("user_id"), text("theme_id"), text("skin_id"),
			boolean("is_featured"), boolean("is_hidden"), stamp("created_at"), stamp("updated_at"),
		},
		PrimaryKey:  []string{"id"},
		Unique:      [][]string{{"user_id"}},
		GeneratedID: true,
	},
	TableShelfItems: {
		Table: TableShelfItems,
		Columns: []Column{
			text("shelf_id"), integer("slot_index"), text("item_key"), text("extra_data"), stamp("updated_at"),
		},
		PrimaryKey: []string{"shelf_id", "slot_index"},
	},
	TableReactions: {
		Table: TableReactions,
		Columns: []Column{
			text("id"), text("shelf_id"), text("user_id"), text("type"), stamp("created_at"), stamp("updated_at"),
		},
		PrimaryKey:  []string{"id"},
		Unique:      [][]string{{"shelf_id", "user_id"}},
		GeneratedID: true,
	},
}

// SchemaOf returns the schema for table.
func SchemaOf(table Table) (Schema, error) {
	s, ok := schemas[table]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return s, nil
}

// Column returns the named column.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames lists the column names in declaration order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ConflictKey validates conflict columns against the primary and unique
// keys. An empty conflict means the primary key.
func (s Schema) ConflictKey(conflict []string) ([]string, error) {
	if len(conflict) == 0 {
		return s.PrimaryKey, nil
	}
	want := slices.Sorted(slices.Values(conflict))
	for _, key := range append([][]string{s.PrimaryKey}, s.Unique...) {
		if slices.Equal(want, slices.Sorted(slices.Values(key))) {
			return key, nil
		}
	}
	return nil, invalid("%s: %v is not a unique key", s.Table, conflict)
}

// CheckColumns rejects names that are not columns of the table. Column names
// end up in SQL text, so every backend calls this before building a query.
func (s Schema) CheckColumns(names ...string) error {
	for _, n := range names {
		if _, ok := s.Column(n); !ok {
			return invalid("%s: unknown column %q", s.Table, n)
		}
	}
	return nil
}

// Keys returns the sorted keys of m.
func Keys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// PrepareWrite validates and coerces a row for writing: unknown columns are
// rejected, a missing generated id is assigned, and timestamps are stamped.
func (s Schema) PrepareWrite(row Row, now time.Time) (Row, error) {
	if err := s.CheckColumns(Keys(row)...); err != nil {
		return nil, err
	}
	out, err := s.Coerce(row)
	if err != nil {
		return nil, err
	}
	if s.GeneratedID {
		if v, _ := out["id"].(string); v == "" {
			out["id"] = uuid.NewString()
		}
	}
	if _, ok := s.Column("created_at"); ok {
		if _, set := out["created_at"]; !set {
			out["created_at"] = now
		}
	}
	if _, ok := s.Column("updated_at"); ok {
		out["updated_at"] = now
	}
	return out, nil
}

// PreparePatch validates and coerces an update patch.
func (s Schema) PreparePatch(patch Row, now time.Time) (Row, error) {
	if len(patch) == 0 {
		return nil, invalid("%s: empty patch", s.Table)
	}
	if err := s.CheckColumns(Keys(patch)...); err != nil {
		return nil, err
	}
	out, err := s.Coerce(patch)
	if err != nil {
		return nil, err
	}
	if _, ok := s.Column("updated_at"); ok {
		out["updated_at"] = now
	}
	return out, nil
}

// PrepareFilter validates and coerces a filter.
func (s Schema) PrepareFilter(filter Filter) (Filter, error) {
	if err := s.CheckColumns(Keys(filter)...); err != nil {
		return nil, err
	}
	row, err := s.Coerce(Row(filter))
	if err != nil {
		return nil, err
	}
	return Filter(row), nil
}

// Coerce converts known column values to their canonical Go types: string,
// int64, bool and time.Time. Unknown columns and nil values pass through.
// Backends call it on rows they read so every backend returns the same
// shapes regardless of driver.
func (s Schema) Coerce(row Row) (Row, error) {
	out := make(Row, len(row))
	for k, v := range row {
		col, ok := s.Column(k)
		if !ok || v == nil {
			out[k] = v
			continue
		}
		cv, err := coerce(col.Type, v)
		if err != nil {
			return nil, invalid("%s.%s: %v", s.Table, k, err)
		}
		out[k] = cv
	}
	return out, nil
}

// CoerceAll applies Coerce to every row.
func (s Schema) CoerceAll(rows []Row) ([]Row, error) {
	out := make([]Row, len(rows))
	for i, r := range rows {
		c, err := s.Coerce(r)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

//nolint:gocyclo // One case per driver representation.
func coerce(t ColumnType, v any) (any, error) {
	switch t {
	case ColText:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case fmt.Stringer:
			return x.String(), nil
		default:
			return fmt.Sprint(x), nil
		}
	case ColInt:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("%v is not an integer", x)
			}
			return int64(x), nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case ColBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case float64:
			return x != 0, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(x))
		}
	case ColTime:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			return ParseTime(x)
		}
	}
	return nil, fmt.Errorf("cannot use %T", v)
}

// Time layouts accepted from drivers and JSON.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// ParseTime parses a stored timestamp in any accepted layout.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// FormatTime formats a time for text storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
