package domain

import (
	"slices"
	"time"
)

// Slot is one position in a shelf grid. An empty ItemID means the slot holds nothing.
type Slot struct {
	Index  int    `json:"index"`
	ItemID string `json:"item_id,omitempty"`
}

// Empty reports whether the slot holds no item.
func (s Slot) Empty() bool { return s.ItemID == "" }

// Owner is the profile summary joined onto a shelf for listings.
type Owner struct {
	ID            string `json:"id"`
	Handle        string `json:"handle"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	// AvatarColor is the placeholder shown when AvatarURL is empty.
	AvatarColor   string `json:"avatar_color,omitempty"`
	TwitterHandle string `json:"twitter_handle,omitempty"`
	IsVerified    bool   `json:"is_verified"`
	IsHidden      bool   `json:"is_hidden"`
}

// Shelf is one user's grid of accessories plus its theme and skin.
// Slots has a fixed length equal to the configured capacity.
type Shelf struct {
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	ThemeID        string         `json:"theme_id"`
	SkinID         string         `json:"skin_id"`
	Slots          []Slot         `json:"slots"`
	Reactions      ReactionCounts `json:"reactions"`
	Owner          Owner          `json:"owner"`
	TotalReactions int            `json:"total_reactions"`
	IsFeatured     bool           `json:"is_featured"`
	IsHidden       bool           `json:"is_hidden"`
}

// Key identifies the shelf in the cache.
func (s Shelf) Key() string { return s.ID }

// Clone returns a copy that shares no slices or maps with s.
func (s Shelf) Clone() Shelf {
	c := s
	c.Slots = slices.Clone(s.Slots)
	c.Reactions = s.Reactions.Clone()
	return c
}

// ItemIDs returns the non-empty item ids in slot order.
func (s Shelf) ItemIDs() []string {
	ids := make([]string, 0, len(s.Slots))
	for _, sl := range s.Slots {
		if !sl.Empty() {
			ids = append(ids, sl.ItemID)
		}
	}
	return ids
}

// Listed reports whether the shelf may appear in aggregate listings.
func (s Shelf) Listed() bool {
	return !s.IsHidden && !s.Owner.IsHidden
}

// NewShelf returns an empty shelf for owner with default theme and skin.
func NewShelf(shelfID, ownerID string, capacity int) Shelf {
	slots := make([]Slot, capacity)
	for i := range slots {
		slots[i].Index = i
	}
	return Shelf{
		ID:        shelfID,
		OwnerID:   ownerID,
		ThemeID:   DefaultThemeID,
		SkinID:    DefaultSkinID,
		Slots:     slots,
		Reactions: ReactionCounts{},
	}
}
