package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

const (
	defaultHeartbeat = 30 * time.Second
	eventBuffer      = 1000
	clientBuffer     = 100
)

// Client is a connected SSE client.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string
	// Table limits delivery to changes of one table. Empty means every
	// table.
	Table store.Table
}

// Manager fans committed changes out to connected clients.
type Manager struct {
	clients           map[string]*Client
	events            chan Event
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewManager creates a manager. heartbeat <= 0 uses 30s.
func NewManager(heartbeat time.Duration, logger *slog.Logger) *Manager {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		clients:           make(map[string]*Client),
		events:            make(chan Event, eventBuffer),
		logger:            logger,
		heartbeatInterval: heartbeat,
	}
}

// Start runs the broadcast loop until ctx ends or Shutdown closes the
// queue. Call it once, in its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info("SSE manager starting", "heartbeat", m.heartbeatInterval)

	heartbeatTicker := time.NewTicker(m.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-m.events:
			if !ok {
				return
			}
			m.broadcast(event)

		case <-heartbeatTicker.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("SSE manager stopping")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting changes, delivers what is queued (bounded by
// ctx) and closes every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("SSE manager shutdown initiated")

	// Close under the write lock; Emit sends under the read lock.
	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	close(m.events)
	m.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		for event := range m.events {
			m.broadcast(event)
		}
		close(done)
	}()

	var err error
	select {
	case <-done:
		m.logger.Info("SSE events drained")
	case <-ctx.Done():
		m.logger.Warn("SSE event drain timeout, some events may be lost")
		err = ctx.Err()
	}

	m.wg.Wait()
	m.closeAllClients()
	m.logger.Info("SSE manager shutdown complete")
	return err
}

func (m *Manager) broadcast(event Event) {
	var delivered, dropped, filtered int

	m.mu.RLock()
	defer m.mu.RUnlock()

	table := event.Table()
	for _, client := range m.clients {
		if table != "" && client.Table != "" && client.Table != table {
			filtered++
			continue
		}

		// Slow clients lose events instead of blocking the loop.
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow client",
				slog.String("client_id", client.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event broadcast",
			slog.String("table", string(table)),
			slog.String("op", string(event.Change.Op)),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("filtered", filtered),
				slog.Int("dropped", dropped)))
	}
}

// Connect registers a client for table ("" for every table).
func (m *Manager) Connect(table store.Table) (*Client, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		Table:       table,
		EventChan:   make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	// Hold the shutdown lock so a client is never added after the final
	// close.
	m.shutdownMu.RLock()
	if m.shutdown {
		m.shutdownMu.RUnlock()
		return nil, store.ErrClosed
	}
	m.mu.Lock()
	m.clients[client.ID] = client
	totalClients := len(m.clients)
	m.mu.Unlock()
	m.shutdownMu.RUnlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("table", string(table)),
		slog.Int("total_clients", totalClients))
	return client, nil
}

// Disconnect removes a client and closes its channels.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, clientID)
	totalClients := len(m.clients)
	m.mu.Unlock()

	close(client.Done)
	close(client.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", totalClients))
}

// Emit queues a committed change for broadcast. It implements
// store.EventEmitter. Changes emitted after Shutdown are dropped.
func (m *Manager) Emit(change store.Change) {
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()

	if m.shutdown {
		return
	}

	select {
	case m.events <- NewChangeEvent(change):
	default:
		m.logger.Error("SSE event queue full, dropping change",
			slog.String("table", string(change.Table)),
			slog.String("op", string(change.Op)))
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Accepting reports whether the manager still takes new clients.
func (m *Manager) Accepting() bool {
	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()
	return !m.shutdown
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Done)
		close(client.EventChan)
	}
	clear(m.clients)
}
