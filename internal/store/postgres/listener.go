package postgres

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoshelf/shelfsync/internal/store"
)

// listen holds one LISTEN connection and re-establishes it with capped
// exponential backoff until ctx ends.
func (s *Store) listen(ctx context.Context, backoff, maxBackoff time.Duration) {
	delay := backoff
	for {
		err := s.listenOnce(ctx, s.pool, func() { delay = backoff })
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("change listener disconnected", "error", err, "retry_in", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, maxBackoff)
	}
}

func (s *Store) listenOnce(ctx context.Context, pool *pgxpool.Pool, connected func()) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	connected()
	s.logger.Debug("listening for changes", "channel", NotifyChannel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		change, err := decodeNotification(n.Payload)
		if err != nil {
			s.logger.Warn("dropping malformed change notification", "error", err)
			continue
		}
		s.broker.Emit(change)
	}
}

type notification struct {
	Table store.Table `json:"table"`
	Op    store.Op    `json:"op"`
	At    string      `json:"at"`
	Row   store.Row   `json:"row"`
}

// decodeNotification parses the JSON payload built by notify_shelf_change.
func decodeNotification(payload string) (store.Change, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return store.Change{}, fmt.Errorf("decode payload: %w", err)
	}
	schema, err := store.SchemaOf(n.Table)
	if err != nil {
		return store.Change{}, err
	}
	switch n.Op {
	case store.OpInsert, store.OpUpdate, store.OpDelete:
	default:
		return store.Change{}, fmt.Errorf("unknown op %q", n.Op)
	}
	row, err := schema.Coerce(n.Row)
	if err != nil {
		return store.Change{}, err
	}
	at, err := store.ParseTime(n.At)
	if err != nil {
		at = time.Now().UTC()
	}
	return store.Change{At: at, Table: n.Table, Op: n.Op, Row: row}, nil
}
