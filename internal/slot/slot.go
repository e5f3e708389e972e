// Package slot implements the shelf grid rules: placing and clearing items,
// the single photo-frame constraint, randomization, and row layout.
//
// Every function takes a slot slice and returns a new one; inputs are never
// modified, so callers can hand the result straight to the cache.
package slot

import (
	"math/rand/v2"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	"github.com/cryptoshelf/shelfsync/internal/errors"
)

// Shelf capacities.
const (
	CapacitySimple   = 8
	CapacityExtended = 15
)

// DefaultEmptyProbability is the chance Randomize leaves a slot empty.
const DefaultEmptyProbability = 0.3

// Lookup resolves an item id to its accessory.
type Lookup func(itemID string) (domain.Accessory, bool)

// CatalogLookup returns a Lookup over a fixed accessory list.
func CatalogLookup(items []domain.Accessory) Lookup {
	byID := make(map[string]domain.Accessory, len(items))
	for _, a := range items {
		byID[a.ID] = a
	}
	return func(itemID string) (domain.Accessory, bool) {
		a, ok := byID[itemID]
		return a, ok
	}
}

// Empty returns n empty slots indexed 0..n-1.
func Empty(n int) []domain.Slot {
	slots := make([]domain.Slot, n)
	for i := range slots {
		slots[i].Index = i
	}
	return slots
}

// FromItems builds n slots from sparse stored rows. Rows outside [0,n) are
// dropped.
func FromItems(n int, items map[int]string) []domain.Slot {
	slots := Empty(n)
	for idx, itemID := range items {
		if idx >= 0 && idx < n {
			slots[idx].ItemID = itemID
		}
	}
	return slots
}

// Set places itemID at index and returns the new slots. An empty itemID
// clears the slot. Placing a photo frame while another slot holds one fails
// with a constraint violation and leaves slots untouched.
func Set(slots []domain.Slot, index int, itemID string, lookup Lookup) ([]domain.Slot, error) {
	if index < 0 || index >= len(slots) {
		return nil, errors.Validationf("slot index %d out of range [0,%d)", index, len(slots))
	}

	if itemID != "" && isPhotoFrame(lookup, itemID) {
		for i, s := range slots {
			if i != index && !s.Empty() && isPhotoFrame(lookup, s.ItemID) {
				return nil, errors.ConstraintViolation("only one photo frame allowed per shelf").
					WithDetails(map[string]int{"occupied_index": i})
			}
		}
	}

	next := make([]domain.Slot, len(slots))
	copy(next, slots)
	next[index] = domain.Slot{Index: index, ItemID: itemID}
	return next, nil
}

// Clear empties the slot at index.
func Clear(slots []domain.Slot, index int) ([]domain.Slot, error) {
	return Set(slots, index, "", nil)
}

// Randomize fills every slot independently: empty with probability pEmpty,
// otherwise a uniformly chosen active accessory that is not a photo frame.
// An empty pool yields all-empty slots.
func Randomize(n int, catalog []domain.Accessory, rng *rand.Rand, pEmpty float64) []domain.Slot {
	pool := make([]string, 0, len(catalog))
	for _, a := range catalog {
		if a.Placeable() {
			pool = append(pool, a.ID)
		}
	}

	slots := Empty(n)
	if len(pool) == 0 {
		return slots
	}
	for i := range slots {
		if rng.Float64() < pEmpty {
			continue
		}
		slots[i].ItemID = pool[rng.IntN(len(pool))]
	}
	return slots
}

// PhotoFrames counts slots holding a photo frame.
func PhotoFrames(slots []domain.Slot, lookup Lookup) int {
	n := 0
	for _, s := range slots {
		if !s.Empty() && isPhotoFrame(lookup, s.ItemID) {
			n++
		}
	}
	return n
}

// Diff returns the indexes whose item differs between a and b. Both must
// have the same length.
func Diff(a, b []domain.Slot) []int {
	var changed []int
	for i := range min(len(a), len(b)) {
		if a[i].ItemID != b[i].ItemID {
			changed = append(changed, i)
		}
	}
	return changed
}

func isPhotoFrame(lookup Lookup, itemID string) bool {
	if lookup == nil {
		return false
	}
	a, ok := lookup(itemID)
	return ok && a.IsPhotoFrame
}
