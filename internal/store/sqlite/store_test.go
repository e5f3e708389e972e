package sqlite

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedShelf(t *testing.T, s *Store, userID string) store.Row {
	t.Helper()
	change, err := s.Upsert(t.Context(), store.TableShelves, store.Row{"user_id": userID, "theme_id": "dawn"}, []string{"user_id"})
	require.NoError(t, err)
	return change.Row
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	for _, table := range store.Tables {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", string(table)).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpenClose_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	_, err = s.Upsert(t.Context(), store.TableSkins, store.Row{"id": "classic", "name": "Classic"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	row, err := s2.FetchOne(t.Context(), store.TableSkins, store.Filter{"id": "classic"})
	require.NoError(t, err)
	assert.Equal(t, "Classic", row["name"])
}

func TestUpsert_ShelfPerOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	first, err := s.Upsert(ctx, store.TableShelves, store.Row{"user_id": "u1", "theme_id": "dawn"}, []string{"user_id"})
	require.NoError(t, err)
	assert.Equal(t, store.OpInsert, first.Op)
	id := first.Row["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, false, first.Row["is_featured"])
	assert.IsType(t, time.Time{}, first.Row["created_at"])

	second, err := s.Upsert(ctx, store.TableShelves, store.Row{"user_id": "u1", "theme_id": "night"}, []string{"user_id"})
	require.NoError(t, err)
	assert.Equal(t, store.OpUpdate, second.Op)
	assert.Equal(t, id, second.Row["id"], "upsert keeps the existing id")
	assert.Equal(t, "night", second.Row["theme_id"])
	assert.Equal(t, first.Row["created_at"], second.Row["created_at"])

	rows, err := s.FetchAll(ctx, store.TableShelves, store.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpsert_PartialRowKeepsOtherColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	shelf := seedShelf(t, s, "u1")

	_, err := s.Update(ctx, store.TableShelves, store.Filter{"id": shelf["id"]}, store.Row{"is_featured": true})
	require.NoError(t, err)

	change, err := s.Upsert(ctx, store.TableShelves, store.Row{"user_id": "u1", "skin_id": "gold"}, []string{"user_id"})
	require.NoError(t, err)
	assert.Equal(t, true, change.Row["is_featured"])
	assert.Equal(t, "dawn", change.Row["theme_id"])
	assert.Equal(t, "gold", change.Row["skin_id"])
}

func TestUpsert_SlotRows(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	shelf := seedShelf(t, s, "u1")
	key := []string{"shelf_id", "slot_index"}

	_, err := s.Upsert(ctx, store.TableShelfItems, store.Row{"shelf_id": shelf["id"], "slot_index": 2, "item_key": "btc"}, key)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, store.TableShelfItems, store.Row{"shelf_id": shelf["id"], "slot_index": 2, "item_key": nil}, key)
	require.NoError(t, err)

	rows, err := s.FetchAll(ctx, store.TableShelfItems, store.Query{Filter: store.Filter{"shelf_id": shelf["id"]}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0]["slot_index"])
	assert.Nil(t, rows[0]["item_key"])
}

func TestUpsert_MissingParentIsNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Upsert(t.Context(), store.TableShelfItems,
		store.Row{"shelf_id": "ghost", "slot_index": 0, "item_key": "btc"}, []string{"shelf_id", "slot_index"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsert_RejectsNonUniqueConflict(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Upsert(t.Context(), store.TableReactions, store.Row{"shelf_id": "s", "user_id": "u", "type": "FIRE"}, []string{"type"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = s.Upsert(t.Context(), store.TableReactions, store.Row{"shelf_id": "s", "type": "FIRE"}, []string{"shelf_id", "user_id"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpsert_UniqueNameConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.Upsert(ctx, store.TableThemes, store.Row{"id": "dawn", "name": "Dawn"}, nil)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, store.TableThemes, store.Row{"id": "dawn2", "name": "Dawn"}, nil)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestReactionToggle_OneRowPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	shelf := seedShelf(t, s, "owner")
	key := []string{"shelf_id", "user_id"}

	_, err := s.Upsert(ctx, store.TableReactions, store.Row{"shelf_id": shelf["id"], "user_id": "u2", "type": "FIRE"}, key)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, store.TableReactions, store.Row{"shelf_id": shelf["id"], "user_id": "u2", "type": "EYES"}, key)
	require.NoError(t, err)

	rows, err := s.FetchAll(ctx, store.TableReactions, store.Query{Filter: store.Filter{"shelf_id": shelf["id"]}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "EYES", rows[0]["type"])

	deleted, err := s.Delete(ctx, store.TableReactions, store.Filter{"shelf_id": shelf["id"], "user_id": "u2", "type": "FIRE"})
	require.NoError(t, err)
	assert.Empty(t, deleted, "type mismatch deletes nothing")

	deleted, err = s.Delete(ctx, store.TableReactions, store.Filter{"shelf_id": shelf["id"], "user_id": "u2", "type": "EYES"})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
}

func TestReactionUpsert_Concurrent(t *testing.T) {
	s := newTestStore(t)
	shelf := seedShelf(t, s, "owner")

	var wg sync.WaitGroup
	for _, typ := range []string{"FIRE", "DIAMOND", "FUNNY", "EYES", "BRAIN"} {
		wg.Go(func() {
			_, err := s.Upsert(t.Context(), store.TableReactions,
				store.Row{"shelf_id": shelf["id"], "user_id": "u2", "type": typ}, []string{"shelf_id", "user_id"})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	rows, err := s.FetchAll(t.Context(), store.TableReactions, store.Query{Filter: store.Filter{"user_id": "u2"}})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFetchAll_FilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	for _, u := range []string{"a", "b", "c"} {
		seedShelf(t, s, u)
	}
	rows, err := s.FetchAll(ctx, store.TableShelves, store.Query{OrderBy: "user_id", Desc: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "c", rows[0]["user_id"])

	_, err = s.Update(ctx, store.TableShelves, store.Filter{"user_id": "b"}, store.Row{"is_hidden": true})
	require.NoError(t, err)

	visible, err := s.FetchAll(ctx, store.TableShelves, store.Query{Filter: store.Filter{"is_hidden": false}})
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	_, err = s.FetchAll(ctx, store.TableShelves, store.Query{Filter: store.Filter{"nope": 1}})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestFetchOne_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FetchOne(t.Context(), store.TableShelves, store.Filter{"id": "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FetchOne(t.Context(), store.TableShelves, nil)
	assert.ErrorIs(t, err, store.ErrEmptyFilter)
}

func TestDelete_EmptyFilterRefused(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Delete(t.Context(), store.TableReactions, store.Filter{})
	assert.ErrorIs(t, err, store.ErrEmptyFilter)
}

func TestSubscribe_ReceivesCommittedChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	shelf := seedShelf(t, s, "owner")

	sub, err := s.Subscribe(ctx, store.TableReactions)
	require.NoError(t, err)
	defer sub.Close()

	_, err = s.Upsert(ctx, store.TableShelves, store.Row{"user_id": "other"}, []string{"user_id"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, store.TableReactions, store.Row{"shelf_id": shelf["id"], "user_id": "u", "type": "FIRE"}, []string{"shelf_id", "user_id"})
	require.NoError(t, err)
	_, err = s.Delete(ctx, store.TableReactions, store.Filter{"shelf_id": shelf["id"], "user_id": "u"})
	require.NoError(t, err)

	for _, want := range []store.Op{store.OpInsert, store.OpDelete} {
		select {
		case c := <-sub.Events():
			assert.Equal(t, store.TableReactions, c.Table)
			assert.Equal(t, want, c.Op)
			assert.Equal(t, "FIRE", c.Row["type"])
		case <-time.After(time.Second):
			t.Fatalf("no %s change", want)
		}
	}

	_, err = s.Subscribe(ctx, "bogus")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestClose_EndsSubscriptions(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)

	sub, err := s.Subscribe(t.Context(), store.TableReactions)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), store.ErrClosed)
}
