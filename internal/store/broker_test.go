package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestBroker_FiltersByTable(t *testing.T) {
	b := NewBroker(4, nil)
	ctx := t.Context()

	reactions, err := b.Subscribe(ctx, TableReactions)
	require.NoError(t, err)
	all, err := b.Subscribe(ctx, "")
	require.NoError(t, err)

	b.Emit(Change{Table: TableShelves, Op: OpUpdate})
	b.Emit(Change{Table: TableReactions, Op: OpInsert, Row: Row{"type": "FIRE"}})

	got := receive(t, reactions)
	assert.Equal(t, OpInsert, got.Op)
	assert.Equal(t, TableShelves, receive(t, all).Table)
	assert.Equal(t, TableReactions, receive(t, all).Table)
}

func TestBroker_ContextCancelEndsSubscription(t *testing.T) {
	b := NewBroker(1, nil)
	ctx, cancel := context.WithCancel(t.Context())

	sub, err := b.Subscribe(ctx, TableReactions)
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers())

	cancel()

	require.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.NoError(t, sub.Err())
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(1, nil)
	sub, err := b.Subscribe(t.Context(), TableReactions)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for range 10 {
			b.Emit(Change{Table: TableReactions})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full subscriber")
	}
	receive(t, sub)
}

func TestBroker_CloseEndsAll(t *testing.T) {
	b := NewBroker(1, nil)
	sub, err := b.Subscribe(t.Context(), TableReactions)
	require.NoError(t, err)

	b.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), ErrClosed)

	_, err = b.Subscribe(t.Context(), TableReactions)
	assert.ErrorIs(t, err, ErrClosed)

	sub.Close()
	b.Close()
}
