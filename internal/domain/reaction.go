package domain

import (
	"maps"
	"time"
)

// ReactionType is one of the fixed emoji reactions.
type ReactionType string

const (
	ReactionFire    ReactionType = "FIRE"
	ReactionDiamond ReactionType = "DIAMOND"
	ReactionFunny   ReactionType = "FUNNY"
	ReactionEyes    ReactionType = "EYES"
	ReactionBrain   ReactionType = "BRAIN"
)

// ReactionTypes lists every reaction type in display order.
var ReactionTypes = []ReactionType{ReactionFire, ReactionDiamond, ReactionFunny, ReactionEyes, ReactionBrain}

// Valid reports whether r is a known reaction type.
func (r ReactionType) Valid() bool {
	switch r {
	case ReactionFire, ReactionDiamond, ReactionFunny, ReactionEyes, ReactionBrain:
		return true
	}
	return false
}

// Reaction is a single user's reaction to a shelf. There is at most one per
// (ShelfID, UserID).
type Reaction struct {
	CreatedAt time.Time    `json:"created_at"`
	ID        string       `json:"id,omitempty"`
	ShelfID   string       `json:"shelf_id"`
	UserID    string       `json:"user_id"`
	Type      ReactionType `json:"type"`
}

// Key identifies the reaction by its uniqueness pair.
func (r Reaction) Key() string { return ReactionKey(r.ShelfID, r.UserID) }

// ReactionKey builds the cache key for a (shelf, user) pair.
func ReactionKey(shelfID, userID string) string {
	return shelfID + ":" + userID
}

// ReactionCounts holds the number of reactions per type.
type ReactionCounts map[ReactionType]int

// Clone returns an independent copy.
func (c ReactionCounts) Clone() ReactionCounts {
	if c == nil {
		return ReactionCounts{}
	}
	return maps.Clone(c)
}

// Total sums all counts.
func (c ReactionCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// CountReactions tallies rows by type.
func CountReactions(rows []Reaction) ReactionCounts {
	counts := ReactionCounts{}
	for _, r := range rows {
		counts[r.Type]++
	}
	return counts
}

// ToggleResult is what a reaction toggle did to the user's reaction row.
type ToggleResult int

const (
	// ToggleAdded inserted a reaction where there was none.
	ToggleAdded ToggleResult = iota
	// ToggleReplaced changed the type of an existing reaction.
	ToggleReplaced
	// ToggleRemoved cleared the reaction because the same type was chosen again.
	ToggleRemoved
)

// Toggle applies the reaction rule to the user's current reaction (empty for
// none) and returns the new reaction (empty when cleared).
func Toggle(current, chosen ReactionType) (ReactionType, ToggleResult) {
	switch current {
	case chosen:
		return "", ToggleRemoved
	case "":
		return chosen, ToggleAdded
	default:
		return chosen, ToggleReplaced
	}
}

// ApplyToggle adjusts counts for a user moving from before to after.
func (c ReactionCounts) ApplyToggle(before, after ReactionType) ReactionCounts {
	next := c.Clone()
	if before != "" && next[before] > 0 {
		next[before]--
	}
	if after != "" {
		next[after]++
	}
	return next
}
