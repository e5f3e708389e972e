package store

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultSubscriberBuffer is the per-subscriber channel size.
const DefaultSubscriberBuffer = 64

// Broker fans committed changes out to in-process subscribers. Embedded
// backends use it to implement Subscribe. A subscriber that falls behind
// loses events instead of blocking writers; events already queued for it
// still report that the table changed.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*brokerSub]struct{}
	closed bool
	buffer int
	logger *slog.Logger
}

// NewBroker creates a broker. buffer <= 0 uses DefaultSubscriberBuffer.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broker{
		subs:   make(map[*brokerSub]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Emit implements EventEmitter.
func (b *Broker) Emit(change Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.table != "" && sub.table != change.Table {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			b.logger.Debug("subscriber lagging, change dropped",
				"table", change.Table,
				"op", change.Op,
			)
		}
	}
}

// Subscribe registers a subscriber for table. An empty table receives every
// change. The subscription ends when ctx is done, Close is called, or the
// broker closes.
func (b *Broker) Subscribe(ctx context.Context, table Table) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &brokerSub{
		broker: b,
		table:  table,
		ch:     make(chan Change, b.buffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	sub.stop = stop
	sub.mu.Unlock()
	return sub, nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later Subscribe calls fail.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*brokerSub]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.finish(ErrClosed)
	}
}

func (b *Broker) remove(sub *brokerSub) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return false
	}
	delete(b.subs, sub)
	return true
}

type brokerSub struct {
	broker *Broker
	table  Table
	ch     chan Change
	stop   func() bool

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *brokerSub) Events() <-chan Change { return s.ch }

func (s *brokerSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *brokerSub) Close() {
	if s.broker.remove(s) {
		s.finish(nil)
	}
}

// finish closes the channel once. The caller must have removed s from the
// broker so no Emit can be sending on it.
func (s *brokerSub) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		close(s.ch)
	})
}
