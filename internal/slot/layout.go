package slot

import (
	"github.com/cryptoshelf/shelfsync/internal/domain"
	"github.com/cryptoshelf/shelfsync/internal/errors"
)

// Layout is a sequence of row lengths over the flat slot index space.
// It only affects presentation.
type Layout []int

// Standard layouts.
var (
	LayoutSimple   = Layout{4, 4}
	LayoutExtended = Layout{3, 4, 4, 4}
)

// LayoutFor returns the standard layout for a capacity, or a single row.
func LayoutFor(capacity int) Layout {
	switch capacity {
	case CapacitySimple:
		return LayoutSimple
	case CapacityExtended:
		return LayoutExtended
	default:
		return Layout{capacity}
	}
}

// Capacity is the number of slots the layout covers.
func (l Layout) Capacity() int {
	n := 0
	for _, r := range l {
		n += r
	}
	return n
}

// Validate checks that every row is positive and the rows cover capacity.
func (l Layout) Validate(capacity int) error {
	for i, r := range l {
		if r <= 0 {
			return errors.Validationf("layout row %d has length %d", i, r)
		}
	}
	if l.Capacity() != capacity {
		return errors.Validationf("layout covers %d slots, capacity is %d", l.Capacity(), capacity)
	}
	return nil
}

// Rows splits slots into rows. Slots beyond the layout are dropped and short
// input yields short rows.
func (l Layout) Rows(slots []domain.Slot) [][]domain.Slot {
	rows := make([][]domain.Slot, 0, len(l))
	start := 0
	for _, n := range l {
		if start >= len(slots) {
			break
		}
		end := min(start+n, len(slots))
		rows = append(rows, slots[start:end:end])
		start = end
	}
	return rows
}
