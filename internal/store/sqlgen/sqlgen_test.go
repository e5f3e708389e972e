package sqlgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/store"
)

func schema(t *testing.T, table store.Table) store.Schema {
	t.Helper()
	s, err := store.SchemaOf(table)
	require.NoError(t, err)
	return s
}

func TestUpsert_ConflictOnOwner(t *testing.T) {
	now := time.Now()
	row := store.Row{"id": "s1", "user_id": "u1", "theme_id": "night", "created_at": now, "updated_at": now}

	sql, args, err := SQLite.Upsert(schema(t, store.TableShelves), row, []string{"user_id"})
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO shelves (created_at,id,theme_id,updated_at,user_id) VALUES (?,?,?,?,?) "+
			"ON CONFLICT (user_id) DO UPDATE SET theme_id = excluded.theme_id, updated_at = excluded.updated_at RETURNING *",
		sql)
	assert.Equal(t, []any{now, "s1", "night", now, "u1"}, args)
}

func TestUpsert_PostgresReturnsInsertedFlag(t *testing.T) {
	row := store.Row{"shelf_id": "s1", "slot_index": int64(2), "item_key": "btc"}

	sql, args, err := Postgres.Upsert(schema(t, store.TableShelfItems), row, []string{"shelf_id", "slot_index"})
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO shelf_items (item_key,shelf_id,slot_index) VALUES ($1,$2,$3) "+
			"ON CONFLICT (shelf_id, slot_index) DO UPDATE SET item_key = excluded.item_key RETURNING *, (xmax = 0) AS _inserted",
		sql)
	assert.Len(t, args, 3)
}

func TestUpsert_OnlyKeyColumnsDoesNothing(t *testing.T) {
	sql, _, err := SQLite.Upsert(schema(t, store.TableShelfItems), store.Row{"shelf_id": "s1", "slot_index": int64(0)}, []string{"shelf_id", "slot_index"})
	require.NoError(t, err)
	assert.Contains(t, sql, "ON CONFLICT (shelf_id, slot_index) DO NOTHING RETURNING *")
}

func TestSelect(t *testing.T) {
	sql, args, err := Postgres.Select(schema(t, store.TableShelves), store.Query{
		Filter:  store.Filter{"is_hidden": false},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   10,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM shelves WHERE is_hidden = $1 ORDER BY created_at DESC LIMIT 10", sql)
	assert.Equal(t, []any{false}, args)
}

func TestSelect_RejectsUnknownOrderColumn(t *testing.T) {
	_, _, err := SQLite.Select(schema(t, store.TableShelves), store.Query{OrderBy: "1; DROP TABLE shelves"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestSelect_NullFilter(t *testing.T) {
	sql, _, err := SQLite.Select(schema(t, store.TableShelfItems), store.Query{Filter: store.Filter{"item_key": nil}})
	require.NoError(t, err)
	assert.Contains(t, sql, "item_key IS NULL")
}

func TestDelete(t *testing.T) {
	sql, args, err := SQLite.Delete(schema(t, store.TableReactions), store.Filter{"shelf_id": "s1", "user_id": "u1", "type": "FIRE"})
	require.NoError(t, err)

	assert.Contains(t, sql, "DELETE FROM reactions WHERE")
	assert.Contains(t, sql, "shelf_id = ?")
	assert.Contains(t, sql, "type = ?")
	assert.Contains(t, sql, "RETURNING *")
	assert.Equal(t, []any{"s1", "FIRE", "u1"}, args)

	_, _, err = SQLite.Delete(schema(t, store.TableReactions), nil)
	assert.ErrorIs(t, err, store.ErrEmptyFilter)
}

func TestUpdate(t *testing.T) {
	sql, args, err := Postgres.Update(schema(t, store.TableShelves), store.Filter{"id": "s1"}, store.Row{"is_featured": true})
	require.NoError(t, err)

	assert.Equal(t, "UPDATE shelves SET is_featured = $1 WHERE id = $2 RETURNING *", sql)
	assert.Equal(t, []any{true, "s1"}, args)

	_, _, err = Postgres.Update(schema(t, store.TableShelves), nil, store.Row{"is_featured": true})
	assert.ErrorIs(t, err, store.ErrEmptyFilter)
}
