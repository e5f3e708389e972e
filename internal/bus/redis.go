package bus

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

type redisBus struct {
	log     *slog.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedis connects to the Redis server at cfg.RedisAddr and publishes on
// cfg.Channel.
func NewRedis(cfg config.BusConfig, logger *slog.Logger) (Bus, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	ch := strings.TrimSpace(cfg.Channel)
	if ch == "" {
		ch = "shelfsync:changes"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:     logger.With("component", "redis_bus"),
		rdb:     rdb,
		channel: ch,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, change store.Change) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onChange func(store.Change)) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// Wait for the subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var change store.Change
				if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
					b.log.Warn("bad change payload", "error", err)
					continue
				}
				onChange(change)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	return b.rdb.Close()
}
