package postgres

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return New(mock, nil), mock
}

func TestFetchAll(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM shelf_items WHERE shelf_id = $1 ORDER BY slot_index ASC")).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"shelf_id", "slot_index", "item_key", "extra_data", "updated_at"}).
			AddRow("s1", int32(0), "btc", nil, now).
			AddRow("s1", int32(1), nil, nil, now))

	rows, err := s.FetchAll(t.Context(), store.TableShelfItems, store.Query{
		Filter:  store.Filter{"shelf_id": "s1"},
		OrderBy: "slot_index",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(0), rows[0]["slot_index"])
	assert.Equal(t, "btc", rows[0]["item_key"])
	assert.Nil(t, rows[1]["item_key"])
}

func TestFetchOne_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM shelves WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := s.FetchOne(t.Context(), store.TableShelves, store.Filter{"id": "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsert_ReportsInsert(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO shelves (created_at,id,theme_id,updated_at,user_id) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (user_id) DO UPDATE SET")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "dawn", pgxmock.AnyArg(), "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "theme_id", "is_featured", "created_at", "updated_at", "_inserted"}).
			AddRow("s1", "u1", "dawn", false, now, now, true))

	change, err := s.Upsert(t.Context(), store.TableShelves, store.Row{"user_id": "u1", "theme_id": "dawn"}, []string{"user_id"})
	require.NoError(t, err)
	assert.Equal(t, store.OpInsert, change.Op)
	assert.Equal(t, "s1", change.Row["id"])
	assert.NotContains(t, change.Row, "_inserted")
}

func TestUpsert_ReportsUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reactions")).
		WillReturnRows(pgxmock.NewRows([]string{"id", "shelf_id", "user_id", "type", "created_at", "updated_at", "_inserted"}).
			AddRow("r1", "s1", "u2", "EYES", now, now, false))

	change, err := s.Upsert(t.Context(), store.TableReactions,
		store.Row{"shelf_id": "s1", "user_id": "u2", "type": "EYES"}, []string{"shelf_id", "user_id"})
	require.NoError(t, err)
	assert.Equal(t, store.OpUpdate, change.Op)
	assert.Equal(t, "EYES", change.Row["type"])
}

func TestUpsert_UniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO themes")).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.Upsert(t.Context(), store.TableThemes, store.Row{"id": "dawn2", "name": "Dawn"}, nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestUpsert_ForeignKeyViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO shelf_items")).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := s.Upsert(t.Context(), store.TableShelfItems,
		store.Row{"shelf_id": "ghost", "slot_index": 0, "item_key": "btc"}, []string{"shelf_id", "slot_index"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_ConditionalReaction(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM reactions WHERE")).
		WithArgs("s1", "FIRE", "u2").
		WillReturnRows(pgxmock.NewRows([]string{"id", "shelf_id", "user_id", "type", "created_at", "updated_at"}).
			AddRow("r1", "s1", "u2", "FIRE", now, now))

	deleted, err := s.Delete(t.Context(), store.TableReactions, store.Filter{"shelf_id": "s1", "user_id": "u2", "type": "FIRE"})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "r1", deleted[0]["id"])
}

func TestUpdate_ConnectionFailureIsUnavailable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE shelves SET")).
		WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))

	_, err := s.Update(t.Context(), store.TableShelves, store.Filter{"id": "s1"}, store.Row{"is_featured": true})
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestDecodeNotification(t *testing.T) {
	change, err := decodeNotification(`{"table":"reactions","op":"insert","at":"2026-03-01T10:00:00.123456+00:00",` +
		`"row":{"id":"r1","shelf_id":"s1","user_id":"u2","type":"FIRE","created_at":"2026-03-01T10:00:00.123456+00:00"}}`)
	require.NoError(t, err)

	assert.Equal(t, store.TableReactions, change.Table)
	assert.Equal(t, store.OpInsert, change.Op)
	assert.Equal(t, "FIRE", change.Row["type"])
	assert.Equal(t, 2026, change.At.Year())
	assert.IsType(t, time.Time{}, change.Row["created_at"])

	items, err := decodeNotification(`{"table":"shelf_items","op":"update","at":"x","row":{"shelf_id":"s1","slot_index":3}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), items.Row["slot_index"])
	assert.False(t, items.At.IsZero())

	_, err = decodeNotification(`{"table":"users","op":"insert","row":{}}`)
	assert.Error(t, err)
	_, err = decodeNotification(`{"table":"reactions","op":"truncate","row":{}}`)
	assert.Error(t, err)
	_, err = decodeNotification(`not json`)
	assert.Error(t, err)
}
