package cache

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Keyed is an entity stored in a collection.
type Keyed interface {
	Key() string
}

// Collection is one independently refreshable entity list.
//
// Readers load an immutable snapshot without locking. Writers are
// serialized and always publish a new slice, so a reader sees either the
// old or the new list, never a mix. Values handed to a writer must not be
// modified afterwards; values returned by readers must not be modified.
type Collection[T Keyed] struct {
	name  Name
	owner *Cache

	mu    sync.Mutex
	items atomic.Pointer[[]T]
}

func newCollection[T Keyed](owner *Cache, name Name) *Collection[T] {
	c := &Collection[T]{name: name, owner: owner}
	empty := []T{}
	c.items.Store(&empty)
	return c
}

// Name returns the collection name.
func (c *Collection[T]) Name() Name { return c.name }

// All returns the current snapshot.
func (c *Collection[T]) All() []T {
	return *c.items.Load()
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	return len(c.All())
}

// Get returns the item with key.
func (c *Collection[T]) Get(key string) (T, bool) {
	for _, it := range c.All() {
		if it.Key() == key {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Replace swaps the whole collection. It reports false when the cache is
// closed and nothing was stored.
func (c *Collection[T]) Replace(items []T) bool {
	next := slices.Clone(items)
	if next == nil {
		next = []T{}
	}
	return c.write(func([]T) ([]T, bool) { return next, true })
}

// Upsert merges item by key, appending it when absent.
func (c *Collection[T]) Upsert(item T) bool {
	return c.write(func(cur []T) ([]T, bool) {
		return upsert(cur, item), true
	})
}

// Remove deletes the item with key. Removing a missing key still counts as
// applied.
func (c *Collection[T]) Remove(key string) bool {
	return c.write(func(cur []T) ([]T, bool) {
		i := indexOf(cur, key)
		if i < 0 {
			return cur, false
		}
		return slices.Delete(slices.Clone(cur), i, i+1), true
	})
}

// Update computes the next value of key from the current one under the
// writer lock. fn receives the current item and whether it exists; it
// returns the item to store, or ok=false to leave the collection unchanged.
// Update returns the stored item and whether it was applied.
func (c *Collection[T]) Update(key string, fn func(cur T, exists bool) (next T, ok bool)) (T, bool) {
	var (
		stored T
		did    bool
	)
	alive := c.write(func(cur []T) ([]T, bool) {
		var existing T
		i := indexOf(cur, key)
		if i >= 0 {
			existing = cur[i]
		}
		next, ok := fn(existing, i >= 0)
		if !ok {
			return cur, false
		}
		stored, did = next, true
		return upsert(cur, next), true
	})
	if !alive || !did {
		var zero T
		return zero, false
	}
	return stored, true
}

// Rekey moves the item stored under oldKey to the key of the item fn
// returns. fn receives the current item and whether it exists; returning
// ok=false leaves the collection unchanged. Any other item already stored
// under the new key is dropped, and the item keeps the old position.
func (c *Collection[T]) Rekey(oldKey string, fn func(cur T, exists bool) (next T, ok bool)) bool {
	return c.write(func(cur []T) ([]T, bool) {
		var existing T
		i := indexOf(cur, oldKey)
		if i >= 0 {
			existing = cur[i]
		}
		item, ok := fn(existing, i >= 0)
		if !ok {
			return cur, false
		}
		next := make([]T, 0, len(cur)+1)
		placed := false
		for _, it := range cur {
			switch it.Key() {
			case oldKey:
				next = append(next, item)
				placed = true
			case item.Key():
				// Superseded by the re-keyed item.
			default:
				next = append(next, it)
			}
		}
		if !placed {
			next = append(next, item)
		}
		return next, true
	})
}

// write runs fn under the writer lock and publishes its result. Nothing is
// stored once the owning cache is closed.
func (c *Collection[T]) write(fn func(cur []T) ([]T, bool)) bool {
	c.mu.Lock()
	if !c.owner.Alive() {
		c.mu.Unlock()
		return false
	}
	next, changed := fn(c.All())
	if changed {
		c.items.Store(&next)
	}
	c.mu.Unlock()

	if changed {
		c.owner.notify(c.name)
	}
	return true
}

// barrier waits for an in-progress write to finish.
func (c *Collection[T]) barrier() {
	c.mu.Lock()
	defer c.mu.Unlock()
}

func indexOf[T Keyed](items []T, key string) int {
	for i, it := range items {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func upsert[T Keyed](cur []T, item T) []T {
	i := indexOf(cur, item.Key())
	if i < 0 {
		next := make([]T, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, item)
	}
	next := slices.Clone(cur)
	next[i] = item
	return next
}
