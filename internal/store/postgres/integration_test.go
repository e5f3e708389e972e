package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cryptoshelf/shelfsync/internal/logger"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// startPostgres runs a throwaway postgres:17-alpine container and returns
// its DSN. The container is terminated on test cleanup.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
}

func TestIntegration_UpsertAndNotify(t *testing.T) {
	dsn := startPostgres(t)
	ctx := t.Context()

	s, err := Open(ctx, Config{DSN: dsn, MaxConns: 4}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sub, err := s.Subscribe(ctx, store.TableReactions)
	require.NoError(t, err)
	defer sub.Close()

	shelf, err := s.Upsert(ctx, store.TableShelves, store.Row{"user_id": "owner"}, []string{"user_id"})
	require.NoError(t, err)
	require.Equal(t, store.OpInsert, shelf.Op)
	shelfID := shelf.Row["id"]

	again, err := s.Upsert(ctx, store.TableShelves, store.Row{"user_id": "owner", "theme_id": "night"}, []string{"user_id"})
	require.NoError(t, err)
	assert.Equal(t, store.OpUpdate, again.Op)
	assert.Equal(t, shelfID, again.Row["id"])

	// The listener may still be connecting; keep writing until a change
	// arrives.
	key := []string{"shelf_id", "user_id"}
	require.Eventually(t, func() bool {
		if _, err := s.Upsert(ctx, store.TableReactions, store.Row{"shelf_id": shelfID, "user_id": "u2", "type": "FIRE"}, key); err != nil {
			return false
		}
		select {
		case c := <-sub.Events():
			return c.Table == store.TableReactions && c.Row["user_id"] == "u2"
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	rows, err := s.FetchAll(ctx, store.TableReactions, store.Query{Filter: store.Filter{"shelf_id": shelfID}})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	deleted, err := s.Delete(ctx, store.TableReactions, store.Filter{"shelf_id": shelfID, "user_id": "u2", "type": "EYES"})
	require.NoError(t, err)
	assert.Empty(t, deleted)
}
