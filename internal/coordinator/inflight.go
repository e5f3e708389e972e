package coordinator

import (
	"sync"

	"github.com/cryptoshelf/shelfsync/internal/domain"
)

// inflight counts unsettled remote writes per sequencer key and remembers
// when each key last settled, on a logical clock.
type inflight struct {
	mu      sync.Mutex
	clock   uint64
	open    map[string]int
	settled map[string]uint64
}

func newInflight() *inflight {
	return &inflight{open: make(map[string]int), settled: make(map[string]uint64)}
}

func (f *inflight) begin(key string) {
	f.mu.Lock()
	f.open[key]++
	f.mu.Unlock()
}

func (f *inflight) end(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock++
	f.settled[key] = f.clock
	if f.open[key] <= 1 {
		delete(f.open, key)
		return
	}
	f.open[key]--
}

func (f *inflight) mark() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

// touched reports whether key has a write in flight or one that settled
// after since.
func (f *inflight) touched(key string, since uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[key] > 0 || f.settled[key] > since
}

// Mark returns a token to take before fetching shelves from the remote. The
// fetched rows are passed to KeepLocal with it.
func (c *Coordinator) Mark() uint64 {
	return c.pending.mark()
}

// KeepLocal merges a shelf fetched from the remote with the cached copy of
// the same owner's shelf. Parts this coordinator wrote after since, or is
// still writing, may be missing from the fetched row and are taken from
// cached: slots, theme and skin for shelf writes, the status flags for
// moderation, and the counts for the current user's reaction.
func (c *Coordinator) KeepLocal(since uint64, fetched, cached domain.Shelf) domain.Shelf {
	out := fetched
	if c.pending.touched("shelf:"+fetched.OwnerID, since) {
		out.Slots = cached.Clone().Slots
		out.ThemeID = cached.ThemeID
		out.SkinID = cached.SkinID
	}
	if c.pending.touched("moderation:"+fetched.ID, since) {
		out.IsFeatured = cached.IsFeatured
		out.IsHidden = cached.IsHidden
	}
	if user, err := c.principal(); err == nil &&
		c.pending.touched("reaction:"+domain.ReactionKey(fetched.ID, user.ID), since) {
		out.Reactions = cached.Reactions.Clone()
		out.TotalReactions = cached.TotalReactions
	}
	return out
}
