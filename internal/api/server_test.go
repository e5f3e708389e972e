package api

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/api/dto"
	"github.com/cryptoshelf/shelfsync/internal/bus"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/ratelimit"
	"github.com/cryptoshelf/shelfsync/internal/sse"
	"github.com/cryptoshelf/shelfsync/internal/store"
	"github.com/cryptoshelf/shelfsync/internal/store/httpstore"
	"github.com/cryptoshelf/shelfsync/internal/store/sqlite"
)

type testServer struct {
	*Server
	api   humatest.TestAPI
	store *sqlite.Store
	sse   *sse.Manager
}

// setupTestServer builds a server on a fresh sqlite store with a local bus
// feeding the SSE manager.
func setupTestServer(t *testing.T, limiter *ratelimit.KeyedRateLimiter) *testServer {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "shelfd.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.NewLocal()
	t.Cleanup(func() { b.Close() })

	manager := sse.NewManager(time.Hour, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)
	t.Cleanup(func() {
		_ = manager.Shutdown(context.Background())
		cancel()
	})
	require.NoError(t, b.StartForwarder(ctx, manager.Emit))

	s := NewServer(Options{
		Store:        st,
		Bus:          b,
		SSEManager:   manager,
		WriteLimiter: limiter,
		Logger:       logger.Discard(),
	})
	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		store:  st,
		sse:    manager,
	}
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) dto.Envelope[T] {
	t.Helper()
	var env dto.Envelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	assert.Equal(t, dto.EnvelopeVersion, env.V)
	return env
}

func TestTables_UpsertThenSelect(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Post("/api/v1/tables/shelves/upsert", dto.UpsertRequest{
		Row:      store.Row{"user_id": "owner-1", "theme_id": "night"},
		Conflict: []string{"user_id"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	change := decode[store.Change](t, resp)
	require.True(t, change.Success)
	assert.Equal(t, store.OpInsert, change.Data.Op)
	assert.Equal(t, store.TableShelves, change.Data.Table)
	shelfID, _ := change.Data.Row["id"].(string)
	require.NotEmpty(t, shelfID)

	resp = ts.api.Post("/api/v1/tables/shelves/select", dto.SelectRequest{
		Filter: store.Filter{"user_id": "owner-1"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	rows := decode[dto.RowsResponse](t, resp)
	require.Len(t, rows.Data.Rows, 1)
	assert.Equal(t, shelfID, rows.Data.Rows[0]["id"])
	assert.Equal(t, "night", rows.Data.Rows[0]["theme_id"])

	resp = ts.api.Post("/api/v1/tables/shelves/one", dto.FilterRequest{Filter: store.Filter{"id": shelfID}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	one := decode[dto.RowResponse](t, resp)
	assert.Equal(t, "owner-1", one.Data.Row["user_id"])
}

func TestTables_SelectEmptyReturnsEmptyList(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Post("/api/v1/tables/themes/select", dto.SelectRequest{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"rows":[]`)
}

func TestTables_UpdateAndDeletePublishPerRow(t *testing.T) {
	ts := setupTestServer(t, nil)
	client, err := ts.sse.Connect(store.TableShelves)
	require.NoError(t, err)

	for _, owner := range []string{"a", "b"} {
		resp := ts.api.Post("/api/v1/tables/shelves/upsert", dto.UpsertRequest{
			Row:      store.Row{"user_id": owner},
			Conflict: []string{"user_id"},
		})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}

	resp := ts.api.Post("/api/v1/tables/shelves/update", dto.UpdateRequest{
		Filter: store.Filter{"is_featured": false},
		Patch:  store.Row{"is_featured": true},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Len(t, decode[dto.RowsResponse](t, resp).Data.Rows, 2)

	resp = ts.api.Post("/api/v1/tables/shelves/delete", dto.FilterRequest{Filter: store.Filter{"user_id": "a"}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	deleted := decode[dto.RowsResponse](t, resp)
	require.Len(t, deleted.Data.Rows, 1)
	assert.Equal(t, "a", deleted.Data.Rows[0]["user_id"])

	var ops []store.Op
	for range 5 {
		select {
		case ev := <-client.EventChan:
			ops = append(ops, ev.Change.Op)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d changes broadcast: %v", len(ops), ops)
		}
	}
	assert.Equal(t, []store.Op{store.OpInsert, store.OpInsert, store.OpUpdate, store.OpUpdate, store.OpDelete}, ops)
}

func TestTables_Errors(t *testing.T) {
	ts := setupTestServer(t, nil)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   domainerrors.Code
	}{
		{
			name:       "missing row",
			path:       "/api/v1/tables/shelves/one",
			body:       dto.FilterRequest{Filter: store.Filter{"id": "nope"}},
			wantStatus: http.StatusNotFound,
			wantCode:   domainerrors.CodeNotFound,
		},
		{
			name:       "unknown table",
			path:       "/api/v1/tables/widgets/select",
			body:       dto.SelectRequest{},
			wantStatus: http.StatusBadRequest,
			wantCode:   domainerrors.CodeValidation,
		},
		{
			name:       "unknown column",
			path:       "/api/v1/tables/shelves/select",
			body:       dto.SelectRequest{Filter: store.Filter{"title": "x"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   domainerrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post(tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			env := decode[any](t, resp)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.wantCode), env.Error.Code)
		})
	}
}

func TestTables_WritesAreRateLimited(t *testing.T) {
	limiter := ratelimit.New(0.001, 1)
	t.Cleanup(limiter.Stop)
	ts := setupTestServer(t, limiter)

	upsert := func() *httptest.ResponseRecorder {
		return ts.api.Post("/api/v1/tables/profiles/upsert", dto.UpsertRequest{
			Row: store.Row{"id": "device-1", "handle": "device-1", "role": "user"},
		})
	}
	require.Equal(t, http.StatusOK, upsert().Code)

	resp := upsert()
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	env := decode[any](t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(domainerrors.CodeRateLimited), env.Error.Code)

	// Reads are not limited.
	resp = ts.api.Post("/api/v1/tables/profiles/select", dto.SelectRequest{})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	env := decode[HealthResponse](t, resp)
	assert.Equal(t, statusHealthy, env.Data.Status)
	assert.Equal(t, statusHealthy, env.Data.Components["store"].Status)
	assert.Equal(t, "no connected clients", env.Data.Components["sse"].Message)
}

func TestHealthCheck_StoreClosed(t *testing.T) {
	ts := setupTestServer(t, nil)
	require.NoError(t, ts.store.Close())

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	env := decode[HealthResponse](t, resp)
	assert.Equal(t, statusUnhealthy, env.Data.Status)
}

// TestHTTPStore_RoundTrip drives the server through the HTTP store client,
// including the change stream.
func TestHTTPStore_RoundTrip(t *testing.T) {
	ts := setupTestServer(t, nil)
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)

	client, err := httpstore.New(srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	ctx := t.Context()

	sub, err := client.Subscribe(ctx, store.TableShelves)
	require.NoError(t, err)
	defer sub.Close()

	change, err := client.Upsert(ctx, store.TableShelves, store.Row{"user_id": "owner-1"}, []string{"user_id"})
	require.NoError(t, err)
	shelfID := change.Row["id"]

	select {
	case got := <-sub.Events():
		assert.Equal(t, store.OpInsert, got.Op)
		assert.Equal(t, shelfID, got.Row["id"])
	case <-time.After(5 * time.Second):
		t.Fatal("change not streamed")
	}

	rows, err := client.FetchAll(ctx, store.TableShelves, store.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, false, rows[0]["is_hidden"])

	_, err = client.FetchOne(ctx, store.TableShelves, store.Filter{"id": "missing"})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	removed, err := client.Delete(ctx, store.TableShelves, store.Filter{"id": shelfID})
	require.NoError(t, err)
	assert.Len(t, removed, 1)
}

func TestChanges_RejectsUnknownTable(t *testing.T) {
	ts := setupTestServer(t, nil)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/changes?table=widgets", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
