package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/store/httpstore"
)

func shelfChange(id string) store.Change {
	return store.Change{
		At:    time.Now().UTC(),
		Table: store.TableShelves,
		Op:    store.OpInsert,
		Row:   store.Row{"id": id, "user_id": "u-" + id},
	}
}

func startManager(t *testing.T, heartbeat time.Duration) *Manager {
	t.Helper()
	m := NewManager(heartbeat, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		_ = m.Shutdown(context.Background())
		cancel()
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.EventChan:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestManager_FiltersByTable(t *testing.T) {
	m := startManager(t, time.Hour)

	shelves, err := m.Connect(store.TableShelves)
	require.NoError(t, err)
	reactions, err := m.Connect(store.TableReactions)
	require.NoError(t, err)
	all, err := m.Connect("")
	require.NoError(t, err)
	assert.Equal(t, 3, m.ClientCount())

	m.Emit(shelfChange("s1"))

	assert.Equal(t, "s1", receive(t, shelves).Change.Row["id"])
	assert.Equal(t, "s1", receive(t, all).Change.Row["id"])
	select {
	case ev := <-reactions.EventChan:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_Heartbeat(t *testing.T) {
	m := startManager(t, 10*time.Millisecond)
	c, err := m.Connect(store.TableShelves)
	require.NoError(t, err)

	ev := receive(t, c)
	assert.Equal(t, EventHeartbeat, ev.Type)
	assert.Equal(t, store.Table(""), ev.Table())
}

func TestManager_ShutdownDrainsAndCloses(t *testing.T) {
	m := NewManager(time.Hour, nil)
	c, err := m.Connect("")
	require.NoError(t, err)

	// No broadcast loop is running, so the change waits in the queue.
	m.Emit(shelfChange("s1"))
	require.NoError(t, m.Shutdown(t.Context()))

	ev, ok := <-c.EventChan
	require.True(t, ok)
	assert.Equal(t, EventChange, ev.Type)
	_, ok = <-c.EventChan
	assert.False(t, ok)
	assert.Zero(t, m.ClientCount())

	// After shutdown nothing is accepted.
	m.Emit(shelfChange("s2"))
	_, err = m.Connect("")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.False(t, m.Accepting())
	assert.NoError(t, m.Shutdown(t.Context()))
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	m := NewManager(time.Hour, nil)
	c, err := m.Connect("")
	require.NoError(t, err)
	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Zero(t, m.ClientCount())
}

func TestHandler_RejectsUnknownTable(t *testing.T) {
	m := NewManager(time.Hour, nil)
	rec := httptest.NewRecorder()
	NewHandler(m, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/changes?table=widgets", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"VALIDATION"`)
	assert.Zero(t, m.ClientCount())
}

func TestHandler_RejectsPost(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(NewManager(time.Hour, nil), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/changes", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_StreamsToHTTPStore(t *testing.T) {
	m := startManager(t, time.Hour)
	mux := http.NewServeMux()
	mux.Handle("/api/v1/changes", NewHandler(m, nil))
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	client, err := httpstore.New(api.URL)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	sub, err := client.Subscribe(t.Context(), store.TableShelves)
	require.NoError(t, err)
	defer sub.Close()

	m.Emit(store.Change{Table: store.TableReactions, Op: store.OpInsert, Row: store.Row{"shelf_id": "x", "user_id": "y", "type": "fire"}})
	m.Emit(shelfChange("s1"))

	select {
	case change := <-sub.Events():
		assert.Equal(t, store.TableShelves, change.Table)
		assert.Equal(t, store.OpInsert, change.Op)
		assert.Equal(t, "s1", change.Row["id"])
	case <-time.After(5 * time.Second):
		t.Fatal("change not streamed")
	}
}
