// Package session is the composition root of the sync layer on a client.
//
// A Session owns one entity cache and wires the gateway, the mutation
// coordinator and the change feed listener around it. Open performs the
// initial load, Close tears everything down in order. There is no global
// state: two sessions in one process are fully independent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	"github.com/cryptoshelf/shelfsync/internal/config"
	"github.com/cryptoshelf/shelfsync/internal/coordinator"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/feed"
	"github.com/cryptoshelf/shelfsync/internal/gateway"
	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/localstate"
	"github.com/cryptoshelf/shelfsync/internal/normalize"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

const anonymousKey = "anonymous"

// Options configures Open.
type Options struct {
	// Store is the remote. The session does not close it.
	Store store.Store
	// Local enables the device identity and warm-start snapshots. The
	// session does not close it.
	Local *localstate.Store
	// Principal is the identity supplied by an auth provider. When nil the
	// device identity from Local is used; with neither the session is
	// read-only.
	Principal *domain.Principal

	Capacity         int
	EmptyProbability float64
	Images           normalize.ImageResolver
	Feed             feed.Options
	Logger           *slog.Logger
	// Rand drives Randomize; tests pin it.
	Rand *rand.Rand
}

// OptionsFromConfig fills Options from cfg. Store, Local and Principal are
// left for the caller.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		Capacity:         cfg.Shelf.Capacity,
		EmptyProbability: cfg.Shelf.EmptyProbability,
		Images: normalize.ImageResolver{
			BaseURL:     cfg.Assets.BaseURL,
			Bucket:      cfg.Assets.Bucket,
			LocalPrefix: cfg.Assets.LocalPrefix,
		},
		Feed:   feed.OptionsFromConfig(cfg.Feed, logger),
		Logger: logger,
	}
}

// Session is one client's view of the shared shelf state.
type Session struct {
	cache    *cache.Cache
	gateway  *gateway.Gateway
	commands *coordinator.Coordinator
	listener *feed.Listener
	local    *localstate.Store
	logger   *slog.Logger

	// mineMu serializes creation of the user's local shelf.
	mineMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Open builds a session and performs the initial load: principal, warm
// start, catalogs, shelves and the user's reactions. It then starts the
// change feed. Remote failures during the load are logged and leave the
// affected collections on snapshot or built-in data; Open only fails when
// the session cannot be built at all.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Store == nil {
		return nil, domainerrors.Validation("session: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Feed.Logger == nil {
		opts.Feed.Logger = opts.Logger
	}

	c := cache.New()
	gw := gateway.New(opts.Store, gateway.Options{
		Capacity: opts.Capacity,
		Images:   opts.Images,
		Logger:   opts.Logger,
	})
	commands := coordinator.New(c, gw, coordinator.Options{
		Logger:           opts.Logger,
		Rand:             opts.Rand,
		EmptyProbability: opts.EmptyProbability,
	})
	opts.Feed.Edits = commands
	s := &Session{
		cache:    c,
		gateway:  gw,
		commands: commands,
		listener: feed.New(c, opts.Store, gw, opts.Feed),
		local:    opts.Local,
		logger:   opts.Logger,
	}

	if err := s.identify(ctx, opts.Principal); err != nil {
		c.Close()
		return nil, err
	}
	s.warmStart(ctx)
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial load incomplete", "error", err)
	}
	s.listener.Start(ctx)

	p, _ := c.CurrentUser()
	s.logger.Info("session opened",
		"user_id", p.ID,
		"shelves", c.Shelves.Len(),
		"accessories", c.Accessories.Len())
	return s, nil
}

// identify settles the current user. A profile row is ensured for it; if
// the remote is unreachable the principal is used as is.
func (s *Session) identify(ctx context.Context, auth *domain.Principal) error {
	var profile domain.Profile
	switch {
	case auth != nil:
		if auth.ID == "" {
			return domainerrors.Validation("session: principal id is required")
		}
		profile = domain.Profile{ID: auth.ID, Handle: auth.Handle, Role: auth.Role}
	case s.local != nil:
		deviceID, err := s.local.DeviceID(ctx)
		if err != nil {
			return fmt.Errorf("session: device identity: %w", err)
		}
		profile = domain.DeviceProfile(deviceID)
	default:
		s.logger.Info("no principal configured, session is read-only")
		return nil
	}

	stored, err := s.gateway.EnsureProfile(ctx, profile)
	if err != nil {
		s.logger.Warn("could not ensure profile, continuing offline", "user_id", profile.ID, "error", err)
		stored = profile
	}

	p := stored.Principal()
	if auth != nil {
		// The auth provider is authoritative for the role.
		p.Role = auth.Role
		if p.Handle == "" {
			p.Handle = auth.Handle
		}
	}
	s.cache.SetCurrentUser(p)
	return nil
}

func (s *Session) snapshotKey() string {
	if p, ok := s.cache.CurrentUser(); ok {
		return p.ID
	}
	return anonymousKey
}

func (s *Session) warmStart(ctx context.Context) {
	if s.local == nil {
		return
	}
	rec, ok, err := s.local.LoadSnapshot(ctx, s.snapshotKey())
	if err != nil {
		s.logger.Warn("could not load snapshot", "error", err)
		return
	}
	if !ok || rec.Snapshot.Empty() {
		return
	}
	snap := savedOnly(rec.Snapshot)
	s.cache.Restore(snap)
	s.logger.Debug("warm start from snapshot", "saved_at", rec.SavedAt, "shelves", len(snap.Shelves))
}

// savedOnly drops shelves the remote never assigned an id to. Restoring one
// would hide a shelf the owner saved elsewhere in the meantime.
func savedOnly(snap cache.Snapshot) cache.Snapshot {
	snap.Shelves = slices.DeleteFunc(slices.Clone(snap.Shelves), func(sh domain.Shelf) bool {
		return id.IsTemp(sh.ID)
	})
	return snap
}

// Refresh reloads every collection from the remote in parallel. It
// reconciles optimistic state that diverged after a failed write. A
// collection whose fetch fails keeps its current contents, or the built-in
// defaults if it has none; the returned error names the collections that
// could not be fetched.
func (s *Session) Refresh(ctx context.Context) error {
	var (
		accessories []domain.Accessory
		themes      []domain.Theme
		skins       []domain.Skin
		reactions   []domain.Reaction

		accKnown, themesKnown, skinsKnown, shelvesKnown bool
		reactionsKnown                                  = true
		haveUser                                        bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		accessories, accKnown = s.gateway.Accessories(gctx)
		return nil
	})
	g.Go(func() error {
		themes, themesKnown = s.gateway.Themes(gctx)
		return nil
	})
	g.Go(func() error {
		skins, skinsKnown = s.gateway.Skins(gctx)
		return nil
	})
	g.Go(func() error {
		shelvesKnown = s.listener.RefetchNow(gctx)
		return nil
	})
	if p, ok := s.cache.CurrentUser(); ok {
		haveUser = true
		g.Go(func() error {
			reactions, reactionsKnown = s.gateway.UserReactions(gctx, p.ID)
			return nil
		})
	}
	_ = g.Wait()

	applyCatalog(s.cache.Accessories, accessories, accKnown, domain.DefaultAccessories)
	applyCatalog(s.cache.Themes, themes, themesKnown, domain.DefaultThemes)
	if skinsKnown && len(skins) > 0 {
		skins = domain.MergeSkins(domain.DefaultSkins(), skins)
	}
	applyCatalog(s.cache.Skins, skins, skinsKnown, domain.DefaultSkins)
	if haveUser && reactionsKnown {
		s.cache.Reactions.Replace(reactions)
	}

	var unknown []string
	for name, known := range map[string]bool{
		"accessories": accKnown,
		"themes":      themesKnown,
		"skins":       skinsKnown,
		"shelves":     shelvesKnown,
		"reactions":   reactionsKnown,
	} {
		if !known {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return domainerrors.Unavailablef("could not fetch %s", strings.Join(unknown, ", "))
	}
	return nil
}

// applyCatalog installs a fetched catalog. A confirmed non-empty list wins;
// otherwise current contents stay, and an empty collection gets defaults.
func applyCatalog[T cache.Keyed](col *cache.Collection[T], fetched []T, known bool, defaults func() []T) {
	if known && len(fetched) > 0 {
		col.Replace(fetched)
		return
	}
	if col.Len() == 0 {
		col.Replace(defaults())
	}
}

// Close stops the change feed, waits for issued writes (bounded by ctx),
// saves the warm-start snapshot and closes the cache. It is safe to call
// more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.listener.Close()

		var errs []error
		if err := s.commands.Drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain writes: %w", err))
		}
		if s.local != nil {
			if err := s.local.SaveSnapshot(context.WithoutCancel(ctx), s.snapshotKey(), savedOnly(s.cache.Snapshot())); err != nil {
				errs = append(errs, err)
			}
		}
		s.cache.Close()

		s.closeErr = errors.Join(errs...)
		s.logger.Info("session closed", "pending_writes", s.commands.InFlight())
	})
	return s.closeErr
}
