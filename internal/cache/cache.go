// Package cache holds the in-memory copies of the shared entity collections
// for one client session.
//
// A Cache is an explicit object owned by the session that created it; there
// is no package-level state. After Close every write is ignored and reported
// as not applied, so late remote results cannot touch a torn-down session.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cryptoshelf/shelfsync/internal/domain"
)

// Name identifies a collection in change notifications.
type Name string

// Collection names.
const (
	NameAccessories Name = "accessories"
	NameThemes      Name = "themes"
	NameSkins       Name = "skins"
	NameShelves     Name = "shelves"
	NameReactions   Name = "reactions"
	NameCurrentUser Name = "current_user"
)

// watchBuffer is the per-watcher notification queue. A watcher that falls
// behind misses notifications, not data: it re-reads the collection.
const watchBuffer = 16

// Cache is the set of collections for one session.
type Cache struct {
	Accessories *Collection[domain.Accessory]
	Themes      *Collection[domain.Theme]
	Skins       *Collection[domain.Skin]
	Shelves     *Collection[domain.Shelf]
	// Reactions holds the current user's own reaction rows, keyed by
	// (shelf, user).
	Reactions *Collection[domain.Reaction]

	user   atomic.Pointer[domain.Principal]
	userMu sync.Mutex
	closed atomic.Bool

	watchMu  sync.Mutex
	watchers map[chan Name]struct{}
}

// New creates an empty, live cache.
func New() *Cache {
	c := &Cache{watchers: make(map[chan Name]struct{})}
	c.Accessories = newCollection[domain.Accessory](c, NameAccessories)
	c.Themes = newCollection[domain.Theme](c, NameThemes)
	c.Skins = newCollection[domain.Skin](c, NameSkins)
	c.Shelves = newCollection[domain.Shelf](c, NameShelves)
	c.Reactions = newCollection[domain.Reaction](c, NameReactions)
	return c
}

// Alive reports whether the cache still accepts writes.
func (c *Cache) Alive() bool {
	return !c.closed.Load()
}

// CurrentUser returns the principal the session acts for.
func (c *Cache) CurrentUser() (domain.Principal, bool) {
	p := c.user.Load()
	if p == nil {
		return domain.Principal{}, false
	}
	return *p, true
}

// SetCurrentUser stores the principal. It reports false once closed.
func (c *Cache) SetCurrentUser(p domain.Principal) bool {
	c.userMu.Lock()
	if !c.Alive() {
		c.userMu.Unlock()
		return false
	}
	c.user.Store(&p)
	c.userMu.Unlock()
	c.notify(NameCurrentUser)
	return true
}

// Close stops the cache from accepting writes and ends every watch. It
// returns after any write already in progress has been published.
func (c *Cache) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.Accessories.barrier()
	c.Themes.barrier()
	c.Skins.barrier()
	c.Shelves.barrier()
	c.Reactions.barrier()
	c.userMu.Lock()
	c.userMu.Unlock() //nolint:staticcheck // barrier for SetCurrentUser

	c.watchMu.Lock()
	for ch := range c.watchers {
		close(ch)
	}
	c.watchers = nil
	c.watchMu.Unlock()
}

// Watch streams the names of collections as they change until ctx ends or
// the cache is closed. Notifications are dropped for a watcher that is not
// keeping up.
func (c *Cache) Watch(ctx context.Context) <-chan Name {
	ch := make(chan Name, watchBuffer)

	c.watchMu.Lock()
	if c.watchers == nil {
		c.watchMu.Unlock()
		close(ch)
		return ch
	}
	c.watchers[ch] = struct{}{}
	c.watchMu.Unlock()

	context.AfterFunc(ctx, func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		if _, ok := c.watchers[ch]; ok {
			delete(c.watchers, ch)
			close(ch)
		}
	})
	return ch
}

func (c *Cache) notify(name Name) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for ch := range c.watchers {
		select {
		case ch <- name:
		default:
		}
	}
}

// Snapshot is a point-in-time copy of the catalog and shelf collections.
type Snapshot struct {
	Accessories []domain.Accessory `json:"accessories"`
	Themes      []domain.Theme     `json:"themes"`
	Skins       []domain.Skin      `json:"skins"`
	Shelves     []domain.Shelf     `json:"shelves"`
}

// Empty reports whether the snapshot holds nothing.
func (s Snapshot) Empty() bool {
	return len(s.Accessories) == 0 && len(s.Themes) == 0 && len(s.Skins) == 0 && len(s.Shelves) == 0
}

// Snapshot copies the current collections.
func (c *Cache) Snapshot() Snapshot {
	return Snapshot{
		Accessories: c.Accessories.All(),
		Themes:      c.Themes.All(),
		Skins:       c.Skins.All(),
		Shelves:     c.Shelves.All(),
	}
}

// Restore replaces each collection the snapshot holds data for.
func (c *Cache) Restore(s Snapshot) {
	if len(s.Accessories) > 0 {
		c.Accessories.Replace(s.Accessories)
	}
	if len(s.Themes) > 0 {
		c.Themes.Replace(s.Themes)
	}
	if len(s.Skins) > 0 {
		c.Skins.Replace(s.Skins)
	}
	if len(s.Shelves) > 0 {
		c.Shelves.Replace(s.Shelves)
	}
}
