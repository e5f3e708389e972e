package localstate

import (
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	"github.com/cryptoshelf/shelfsync/internal/logger"
)

func open(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, logger.Discard())
	require.NoError(t, err)
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("", nil)
	require.Error(t, err)
}

func TestDeviceID_StableAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	s := open(t, dir)
	first, err := s.DeviceID(t.Context())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "device-"), first)

	again, err := s.DeviceID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, first, again)
	require.NoError(t, s.Close())

	s = open(t, dir)
	defer s.Close()
	reopened, err := s.DeviceID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, first, reopened)
}

func TestEntity_CreateRejectsExisting(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	d := Device{ID: "device-a"}
	require.NoError(t, s.Devices.Create(t.Context(), "k", &d))
	err := s.Devices.Create(t.Context(), "k", &Device{ID: "device-b"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.Devices.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.Equal(t, "device-a", got.ID)

	require.NoError(t, s.Devices.Delete(t.Context(), "k"))
	require.NoError(t, s.Devices.Delete(t.Context(), "k"))
	_, err = s.Devices.Get(t.Context(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshot_SaveAndLoad(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	_, ok, err := s.LoadSnapshot(t.Context(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	shelf := domain.NewShelf("s1", "u1", 8)
	shelf.Slots[2].ItemID = "btc"
	shelf.Reactions[domain.ReactionFire] = 2
	snap := cache.Snapshot{
		Accessories: domain.DefaultAccessories(),
		Themes:      domain.DefaultThemes(),
		Shelves:     []domain.Shelf{shelf},
	}
	require.NoError(t, s.SaveSnapshot(t.Context(), "u1", snap))

	rec, ok, err := s.LoadSnapshot(t.Context(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", rec.UserID)
	assert.False(t, rec.SavedAt.IsZero())
	require.Len(t, rec.Snapshot.Shelves, 1)
	assert.Equal(t, "btc", rec.Snapshot.Shelves[0].Slots[2].ItemID)
	assert.Equal(t, 2, rec.Snapshot.Shelves[0].Reactions[domain.ReactionFire])
	assert.Len(t, rec.Snapshot.Accessories, len(snap.Accessories))
	assert.Empty(t, rec.Snapshot.Skins)

	// Snapshots are per user.
	_, ok, err = s.LoadSnapshot(t.Context(), "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshot_CorruptIsDiscarded(t *testing.T) {
	s := open(t, t.TempDir())
	defer s.Close()

	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixSnapshot+"u1"), []byte("{not json"))
	}))

	_, ok, err := s.LoadSnapshot(t.Context(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Snapshots.Get(t.Context(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}
