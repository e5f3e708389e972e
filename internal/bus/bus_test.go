package bus

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

func change(id string) store.Change {
	return store.Change{
		At:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Table: store.TableShelves,
		Op:    store.OpInsert,
		Row:   store.Row{"id": id},
	}
}

func TestLocal_PublishReachesForwarders(t *testing.T) {
	b := NewLocal()
	t.Cleanup(func() { b.Close() })

	var got []store.Change
	require.NoError(t, b.StartForwarder(t.Context(), func(c store.Change) { got = append(got, c) }))

	require.NoError(t, b.Publish(t.Context(), change("s1")))
	require.NoError(t, b.Publish(t.Context(), change("s2")))

	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].Row["id"])
	assert.Equal(t, "s2", got[1].Row["id"])
}

func TestLocal_ForwarderStopsWithContext(t *testing.T) {
	b := NewLocal()
	ctx, cancel := context.WithCancel(t.Context())

	calls := 0
	require.NoError(t, b.StartForwarder(ctx, func(store.Change) { calls++ }))
	assert.Equal(t, 1, b.Forwarders())

	cancel()
	require.Eventually(t, func() bool { return b.Forwarders() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(t.Context(), change("s1")))
	assert.Zero(t, calls)
}

func TestLocal_Closed(t *testing.T) {
	b := NewLocal()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(t.Context(), change("s1")), store.ErrClosed)
	assert.ErrorIs(t, b.StartForwarder(t.Context(), func(store.Change) {}), store.ErrClosed)
}

func TestLocal_RequiresCallback(t *testing.T) {
	assert.Error(t, NewLocal().StartForwarder(t.Context(), nil))
}

func TestNew(t *testing.T) {
	b, err := New(config.BusConfig{Kind: config.BusLocal}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, b)

	_, err = New(config.BusConfig{Kind: "kafka"}, nil)
	assert.Error(t, err)

	_, err = NewRedis(config.BusConfig{RedisAddr: " "}, nil)
	assert.Error(t, err)
}

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return net.JoinHostPort(host, port.Port())
}

func TestIntegration_RedisRoundTrip(t *testing.T) {
	addr := startRedis(t)
	cfg := config.BusConfig{Kind: config.BusRedis, RedisAddr: addr, Channel: fmt.Sprintf("test:%d", time.Now().UnixNano())}

	sender, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sender.Close() })
	receiver, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { receiver.Close() })

	got := make(chan store.Change, 1)
	require.NoError(t, receiver.StartForwarder(t.Context(), func(c store.Change) { got <- c }))
	require.NoError(t, sender.Publish(t.Context(), change("s1")))

	select {
	case c := <-got:
		assert.Equal(t, store.TableShelves, c.Table)
		assert.Equal(t, store.OpInsert, c.Op)
		assert.Equal(t, "s1", c.Row["id"])
		assert.True(t, c.At.Equal(change("s1").At))
	case <-time.After(10 * time.Second):
		t.Fatal("change not forwarded")
	}
}
