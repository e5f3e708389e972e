// Package feed keeps the cached shelf collection in step with reaction
// changes made anywhere.
//
// The listener holds one subscription to the reactions table. Any change,
// from any shelf or user, triggers a full shelf refetch and an atomic
// replace of the cached collection; counts are always re-derived from the
// source rows. Bursts coalesce: events that arrive during a refetch cause
// exactly one more.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Subscriber opens change streams. store.Store satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, table store.Table) (store.Subscription, error)
}

// Fetcher loads the aggregate shelf listing. known=false means the fetch
// failed and the result must not replace the cache.
type Fetcher interface {
	Shelves(ctx context.Context) ([]domain.Shelf, bool)
}

// LocalEdits overlays optimistic values onto fetched shelves that a
// refetch would otherwise revert. The coordinator satisfies it.
type LocalEdits interface {
	Mark() uint64
	KeepLocal(since uint64, fetched, cached domain.Shelf) domain.Shelf
}

// Options tunes a Listener.
type Options struct {
	Logger *slog.Logger
	// Edits, when set, protects shelves with unsettled writes.
	Edits LocalEdits
	// MinRefetchInterval spaces consecutive refetches.
	MinRefetchInterval time.Duration
	// ReconnectBackoff is the first wait after losing the stream.
	ReconnectBackoff time.Duration
	// MaxBackoff caps the reconnect wait.
	MaxBackoff time.Duration
}

// OptionsFromConfig maps the feed config section onto Options.
func OptionsFromConfig(cfg config.FeedConfig, logger *slog.Logger) Options {
	return Options{
		Logger:             logger,
		MinRefetchInterval: cfg.MinRefetchInterval,
		ReconnectBackoff:   cfg.ReconnectBackoff,
		MaxBackoff:         cfg.MaxBackoff,
	}
}

// Listener re-derives the shelf collection whenever a reaction changes.
type Listener struct {
	cache   *cache.Cache
	sub     Subscriber
	fetch   Fetcher
	logger  *slog.Logger
	limiter *rate.Limiter
	opts    Options

	dirty chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	connected  atomic.Bool
	refetches  atomic.Int64
	reconnects atomic.Int64
}

// New creates a listener. Call Start to subscribe.
func New(c *cache.Cache, sub Subscriber, fetch Fetcher, opts Options) *Listener {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.ReconnectBackoff {
		opts.MaxBackoff = opts.ReconnectBackoff
	}

	limit := rate.Inf
	if opts.MinRefetchInterval > 0 {
		limit = rate.Every(opts.MinRefetchInterval)
	}

	return &Listener{
		cache:   c,
		sub:     sub,
		fetch:   fetch,
		logger:  opts.Logger,
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
		dirty:   make(chan struct{}, 1),
	}
}

// Start subscribes and begins refetching. It returns at once; a failed
// subscription is retried in the background. Only the first call has an
// effect.
func (l *Listener) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		l.cancel = cancel

		l.wg.Add(2)
		go func() {
			defer l.wg.Done()
			l.subscribeLoop(ctx)
		}()
		go func() {
			defer l.wg.Done()
			l.refetchLoop(ctx)
		}()
		l.logger.Info("change feed listener started", "table", store.TableReactions)
	})
}

// Close stops the listener and waits until its subscription is released.
func (l *Listener) Close() {
	l.stopOnce.Do(func() {
		l.startOnce.Do(func() {}) // a never-started listener stays stopped
		if l.cancel != nil {
			l.cancel()
		}
		l.wg.Wait()
		l.logger.Info("change feed listener stopped")
	})
}

// Refetch asks for a shelf refetch as if a change had arrived.
func (l *Listener) Refetch() {
	l.markDirty()
}

// Connected reports whether the change stream is currently open.
func (l *Listener) Connected() bool { return l.connected.Load() }

// Refetches returns how many refetches have run.
func (l *Listener) Refetches() int64 { return l.refetches.Load() }

// Reconnects returns how many times the stream was re-established.
func (l *Listener) Reconnects() int64 { return l.reconnects.Load() }

func (l *Listener) markDirty() {
	select {
	case l.dirty <- struct{}{}:
	default:
		// A refetch is already pending and will see this change.
	}
}

func (l *Listener) subscribeLoop(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.opts.ReconnectBackoff
	b.MaxInterval = l.opts.MaxBackoff
	b.Reset()

	recovering := false
	for {
		sub, err := l.sub.Subscribe(ctx, store.TableReactions)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := b.NextBackOff()
			l.logger.Warn("change feed subscribe failed", "retry_in", wait, "error", err)
			recovering = true
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		b.Reset()
		l.connected.Store(true)
		if recovering {
			// Changes may have been missed while disconnected.
			l.reconnects.Add(1)
			l.markDirty()
			l.logger.Info("change feed resubscribed")
		}

		lost := l.consume(ctx, sub)
		sub.Close()
		l.connected.Store(false)
		if !lost {
			return
		}

		recovering = true
		wait := b.NextBackOff()
		l.logger.Warn("change feed lost", "retry_in", wait, "error", sub.Err())
		if !sleep(ctx, wait) {
			return
		}
	}
}

// consume forwards events until the stream ends. It reports whether the
// stream was lost, as opposed to the listener stopping.
func (l *Listener) consume(ctx context.Context, sub store.Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ch, ok := <-sub.Events():
			if !ok {
				return ctx.Err() == nil
			}
			l.logger.Debug("reaction changed", "op", ch.Op, "shelf_id", ch.Row["shelf_id"])
			l.markDirty()
		}
	}
}

func (l *Listener) refetchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.dirty:
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return
		}
		l.RefetchNow(ctx)
	}
}

// RefetchNow fetches the shelf listing in the caller's goroutine and
// replaces the cached collection. It reports whether the fetch result was
// known; an unknown result leaves the cache untouched.
func (l *Listener) RefetchNow(ctx context.Context) bool {
	l.refetches.Add(1)
	var since uint64
	if l.opts.Edits != nil {
		since = l.opts.Edits.Mark()
	}
	shelves, known := l.fetch.Shelves(ctx)
	if !known {
		l.logger.Debug("shelf refetch unknown, keeping cache")
		return false
	}
	if l.cache.Shelves.Replace(mergeLocal(shelves, l.cache.Shelves.All(), l.opts.Edits, since)) {
		l.logger.Debug("shelves refetched", "count", len(shelves))
	}
	return true
}

// mergeLocal keeps cached shelves the remote has not seen yet: ones still
// carrying a temporary id whose owner has no fetched shelf. Fetched shelves
// win otherwise, except for the parts edits still holds locally.
func mergeLocal(fetched, cached []domain.Shelf, edits LocalEdits, since uint64) []domain.Shelf {
	byOwner := make(map[string]domain.Shelf, len(cached))
	for _, s := range cached {
		byOwner[s.OwnerID] = s
	}
	owners := make(map[string]struct{}, len(fetched))
	out := make([]domain.Shelf, 0, len(fetched))
	for _, s := range fetched {
		owners[s.OwnerID] = struct{}{}
		if local, ok := byOwner[s.OwnerID]; ok && edits != nil {
			s = edits.KeepLocal(since, s, local)
		}
		out = append(out, s)
	}
	for _, s := range cached {
		if !id.IsTemp(s.ID) {
			continue
		}
		if _, ok := owners[s.OwnerID]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
