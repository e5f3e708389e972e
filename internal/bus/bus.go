// Package bus carries committed store changes between shelfd instances.
// Every instance publishes the changes written through it and forwards what
// it receives to its own SSE clients.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Bus publishes changes and delivers them to forwarders.
type Bus interface {
	Publish(ctx context.Context, change store.Change) error
	// StartForwarder calls onChange for every published change until ctx
	// ends or the bus closes.
	StartForwarder(ctx context.Context, onChange func(store.Change)) error
	Close() error
}

// New builds the bus selected by cfg.Kind.
func New(cfg config.BusConfig, logger *slog.Logger) (Bus, error) {
	switch cfg.Kind {
	case "", config.BusLocal:
		return NewLocal(), nil
	case config.BusRedis:
		return NewRedis(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown bus kind %q", cfg.Kind)
	}
}

// Local delivers changes to forwarders in the same process.
type Local struct {
	mu     sync.RWMutex
	next   int
	fwds   map[int]func(store.Change)
	closed bool
}

// NewLocal creates an in-process bus.
func NewLocal() *Local {
	return &Local{fwds: make(map[int]func(store.Change))}
}

// Publish calls every forwarder in the caller's goroutine.
func (b *Local) Publish(ctx context.Context, change store.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return store.ErrClosed
	}
	for _, fn := range b.fwds {
		fn(change)
	}
	return nil
}

func (b *Local) StartForwarder(ctx context.Context, onChange func(store.Change)) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return store.ErrClosed
	}
	key := b.next
	b.next++
	b.fwds[key] = onChange

	context.AfterFunc(ctx, func() {
		b.mu.Lock()
		delete(b.fwds, key)
		b.mu.Unlock()
	})
	return nil
}

// Forwarders returns the number of registered forwarders.
func (b *Local) Forwarders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.fwds)
}

func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	clear(b.fwds)
	return nil
}
