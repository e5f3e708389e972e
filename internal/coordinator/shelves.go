package coordinator

import (
	"context"
	"strings"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/normalize"
	"github.com/cryptoshelf/shelfsync/internal/slot"
)

// shelfEdit computes the next shelf from the cached one. Returning an error
// rejects the command.
type shelfEdit func(cur domain.Shelf) (domain.Shelf, error)

// editShelf applies edit to the cached shelf under the collection lock, so
// the edit sees the result of every earlier command.
func (c *Coordinator) editShelf(shelfID string, edit shelfEdit) (domain.Shelf, error) {
	p, err := c.principal()
	if err != nil {
		return domain.Shelf{}, err
	}

	shelfID = c.ids.resolve(shelfID)
	var cause error
	next, ok := c.cache.Shelves.Update(shelfID, func(cur domain.Shelf, exists bool) (domain.Shelf, bool) {
		if !exists {
			cause = domainerrors.NotFoundf("shelf %s not found", shelfID)
			return cur, false
		}
		if cur.OwnerID != p.ID && !p.IsAdmin() {
			cause = domainerrors.Forbidden("shelf belongs to another user")
			return cur, false
		}
		next, err := edit(cur.Clone())
		if err != nil {
			cause = err
			return cur, false
		}
		return next, true
	})
	if !ok {
		return domain.Shelf{}, cause
	}
	return next, nil
}

// writeShelf queues a shelf write under the owner's key. A shelf the remote
// has not seen yet is written in full and re-keyed; otherwise write runs
// with the authoritative shelf id.
func (c *Coordinator) writeShelf(ctx context.Context, op string, s domain.Shelf, write func(ctx context.Context, shelfID string) error) *Pending {
	return c.submit(ctx, "shelf:"+s.OwnerID, op, func(ctx context.Context) (string, error) {
		shelfID := c.ids.resolve(s.ID)
		if !id.IsTemp(shelfID) {
			return shelfID, write(ctx, shelfID)
		}
		realID, err := c.remote.SaveShelf(ctx, s)
		if realID != "" {
			c.adoptShelf(s.ID, realID)
		}
		return realID, err
	})
}

// saveWhole writes every slot of s.
func (c *Coordinator) saveWhole(s domain.Shelf) func(ctx context.Context, shelfID string) error {
	return func(ctx context.Context, shelfID string) error {
		full := s.Clone()
		full.ID = shelfID
		_, err := c.remote.SaveShelf(ctx, full)
		return err
	}
}

// saveHeader writes the theme and skin of s.
func (c *Coordinator) saveHeader(s domain.Shelf) func(ctx context.Context, shelfID string) error {
	return func(ctx context.Context, shelfID string) error {
		h := s
		h.ID = shelfID
		_, err := c.remote.SaveShelfHeader(ctx, h)
		return err
	}
}

func (c *Coordinator) adoptShelf(tempID, realID string) {
	c.ids.set(tempID, realID)
	c.cache.Shelves.Rekey(tempID, func(cur domain.Shelf, exists bool) (domain.Shelf, bool) {
		if !exists {
			return cur, false
		}
		next := cur.Clone()
		next.ID = realID
		return next, true
	})
	c.logger.Debug("shelf re-keyed", "temp_id", tempID, "shelf_id", realID)
}

// SetSlot places itemID at index on the shelf. An empty itemID clears the
// slot. Placing a second photo frame is rejected.
func (c *Coordinator) SetSlot(ctx context.Context, shelfID string, index int, itemID string) *Pending {
	itemID = strings.TrimSpace(itemID)
	lookup := slot.CatalogLookup(c.cache.Accessories.All())

	next, err := c.editShelf(shelfID, func(cur domain.Shelf) (domain.Shelf, error) {
		if itemID != "" {
			if _, known := lookup(itemID); !known {
				return cur, domainerrors.Validationf("unknown accessory %q", itemID)
			}
		}
		slots, err := slot.Set(cur.Slots, index, itemID, lookup)
		if err != nil {
			return cur, err
		}
		cur.Slots = slots
		return cur, nil
	})
	if err != nil {
		return c.reject("set_slot", err)
	}

	sl := next.Slots[index]
	return c.writeShelf(ctx, "set_slot", next, func(ctx context.Context, shelfID string) error {
		return c.remote.SaveSlot(ctx, shelfID, sl)
	})
}

// ClearSlot empties the slot at index.
func (c *Coordinator) ClearSlot(ctx context.Context, shelfID string, index int) *Pending {
	return c.SetSlot(ctx, shelfID, index, "")
}

// Randomize refills every slot from the active accessory pool.
func (c *Coordinator) Randomize(ctx context.Context, shelfID string) *Pending {
	catalog := c.cache.Accessories.All()
	next, err := c.editShelf(shelfID, func(cur domain.Shelf) (domain.Shelf, error) {
		c.rngMu.Lock()
		cur.Slots = slot.Randomize(len(cur.Slots), catalog, c.rng, c.pEmpty)
		c.rngMu.Unlock()
		return cur, nil
	})
	if err != nil {
		return c.reject("randomize", err)
	}
	return c.writeShelf(ctx, "randomize", next, c.saveWhole(next))
}

// SetTheme selects the shelf's theme. The id is a weak reference: an id the
// catalog does not know resolves to the default theme on read.
func (c *Coordinator) SetTheme(ctx context.Context, shelfID, themeID string) *Pending {
	themeID = strings.TrimSpace(themeID)
	if themeID == "" {
		return c.reject("set_theme", domainerrors.Validation("theme id is required"))
	}
	next, err := c.editShelf(shelfID, func(cur domain.Shelf) (domain.Shelf, error) {
		cur.ThemeID = themeID
		return cur, nil
	})
	if err != nil {
		return c.reject("set_theme", err)
	}
	return c.writeShelf(ctx, "set_theme", next, c.saveHeader(next))
}

// SetSkin selects the shelf's skin. Legacy skin ids are canonicalized.
func (c *Coordinator) SetSkin(ctx context.Context, shelfID, skinID string) *Pending {
	skinID = normalize.SkinID(skinID, "")
	if skinID == "" {
		return c.reject("set_skin", domainerrors.Validation("skin id is required"))
	}
	next, err := c.editShelf(shelfID, func(cur domain.Shelf) (domain.Shelf, error) {
		cur.SkinID = skinID
		return cur, nil
	})
	if err != nil {
		return c.reject("set_skin", err)
	}
	return c.writeShelf(ctx, "set_skin", next, c.saveHeader(next))
}

// SaveShelf writes the cached shelf in full: header and every slot.
func (c *Coordinator) SaveShelf(ctx context.Context, shelfID string) *Pending {
	cur, err := c.editShelf(shelfID, func(cur domain.Shelf) (domain.Shelf, error) {
		return cur, nil
	})
	if err != nil {
		return c.reject("save_shelf", err)
	}
	return c.writeShelf(ctx, "save_shelf", cur, c.saveWhole(cur))
}

// SetFeatured flags a shelf for the featured listing. Admin only.
func (c *Coordinator) SetFeatured(ctx context.Context, shelfID string, featured bool) *Pending {
	return c.moderate(ctx, "set_featured", shelfID, func(s *domain.Shelf) { s.IsFeatured = featured },
		func(ctx context.Context, shelfID string) error {
			return c.remote.SetFeatured(ctx, shelfID, featured)
		})
}

// SetHidden removes a shelf from aggregate listings, or restores it. Admin
// only.
func (c *Coordinator) SetHidden(ctx context.Context, shelfID string, hidden bool) *Pending {
	return c.moderate(ctx, "set_hidden", shelfID, func(s *domain.Shelf) { s.IsHidden = hidden },
		func(ctx context.Context, shelfID string) error {
			return c.remote.SetHidden(ctx, shelfID, hidden)
		})
}

// moderate flips a status flag. Hidden shelves may be missing from the
// cache, so a cache miss still issues the remote update. Flag updates touch
// only their own column and are sequenced per shelf id.
func (c *Coordinator) moderate(ctx context.Context, op, shelfID string, apply func(*domain.Shelf), write func(ctx context.Context, shelfID string) error) *Pending {
	if err := c.requireAdmin(); err != nil {
		return c.reject(op, err)
	}
	shelfID = c.ids.resolve(shelfID)
	if shelfID == "" {
		return c.reject(op, domainerrors.Validation("shelf id is required"))
	}
	if id.IsTemp(shelfID) {
		return c.reject(op, domainerrors.Validation("shelf has not been saved yet"))
	}
	_, err := c.editShelf(shelfID, func(cur domain.Shelf) (domain.Shelf, error) {
		apply(&cur)
		return cur, nil
	})
	if err != nil && !domainerrors.Is(err, domainerrors.ErrNotFound) {
		return c.reject(op, err)
	}
	if !c.cache.Alive() {
		return c.reject(op, nil)
	}
	return c.submit(ctx, "moderation:"+shelfID, op, func(ctx context.Context) (string, error) {
		return shelfID, write(ctx, shelfID)
	})
}
