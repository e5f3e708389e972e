package coordinator

import (
	"context"
	"strings"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/id"
)

// catalogWrite describes one catalog entity kind for the shared save and
// delete paths.
type catalogWrite[T cache.Keyed] struct {
	kind   string
	col    *cache.Collection[T]
	withID func(T, string) T
	save   func(ctx context.Context, item T) (T, error)
	delete func(ctx context.Context, entityID string) error
}

// saveCatalog stores item locally (or drops it when inactive, matching what
// a fetch would return) and queues the remote save. A temporary id is
// re-keyed to the id the remote assigns.
func saveCatalog[T cache.Keyed](ctx context.Context, c *Coordinator, w catalogWrite[T], item T, active bool) *Pending {
	op := "save_" + w.kind
	localID := item.Key()

	var applied bool
	if active {
		applied = w.col.Upsert(item)
	} else {
		applied = w.col.Remove(localID)
	}
	if !applied {
		return c.reject(op, nil)
	}

	return c.submit(ctx, w.kind+":"+c.ids.key(localID), op, func(ctx context.Context) (string, error) {
		saved, err := w.save(ctx, w.withID(item, c.ids.resolve(localID)))
		if err != nil {
			return "", err
		}
		savedID := saved.Key()
		if savedID != localID {
			c.ids.set(localID, savedID)
			w.col.Rekey(localID, func(cur T, exists bool) (T, bool) {
				if !exists {
					return cur, false
				}
				return w.withID(cur, savedID), true
			})
		}
		return savedID, nil
	})
}

// deleteCatalog removes the entity locally and queues the remote delete.
func deleteCatalog[T cache.Keyed](ctx context.Context, c *Coordinator, w catalogWrite[T], entityID string) *Pending {
	op := "delete_" + w.kind
	if err := c.requireAdmin(); err != nil {
		return c.reject(op, err)
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return c.reject(op, domainerrors.Validationf("%s id is required", w.kind))
	}
	current := c.ids.resolve(entityID)
	if !w.col.Remove(current) {
		return c.reject(op, nil)
	}
	return c.submit(ctx, w.kind+":"+c.ids.key(current), op, func(ctx context.Context) (string, error) {
		target := c.ids.resolve(current)
		return target, w.delete(ctx, target)
	})
}

func (c *Coordinator) accessories() catalogWrite[domain.Accessory] {
	return catalogWrite[domain.Accessory]{
		kind:   "accessory",
		col:    c.cache.Accessories,
		withID: func(a domain.Accessory, v string) domain.Accessory { a.ID = v; return a },
		save:   c.remote.SaveAccessory,
		delete: c.remote.DeleteAccessory,
	}
}

func (c *Coordinator) themes() catalogWrite[domain.Theme] {
	return catalogWrite[domain.Theme]{
		kind:   "theme",
		col:    c.cache.Themes,
		withID: func(t domain.Theme, v string) domain.Theme { t.ID = v; return t },
		save:   c.remote.SaveTheme,
		delete: c.remote.DeleteTheme,
	}
}

func (c *Coordinator) skins() catalogWrite[domain.Skin] {
	return catalogWrite[domain.Skin]{
		kind:   "skin",
		col:    c.cache.Skins,
		withID: func(s domain.Skin, v string) domain.Skin { s.ID = v; return s },
		save:   c.remote.SaveSkin,
		delete: c.remote.DeleteSkin,
	}
}

// SaveAccessory creates or edits an accessory. Admin only. A new accessory
// gets a temporary id until the remote assigns one.
func (c *Coordinator) SaveAccessory(ctx context.Context, a domain.Accessory) *Pending {
	if err := c.requireAdmin(); err != nil {
		return c.reject("save_accessory", err)
	}
	a.Name = strings.TrimSpace(a.Name)
	if a.ID == "" {
		a.ID = id.Temp("accessory")
	} else {
		a.ID = c.ids.resolve(a.ID)
	}
	if a.Category == domain.CategoryPhotoFrame {
		a.IsPhotoFrame = true
	}
	if err := c.validator.Validate(a); err != nil {
		return c.reject("save_accessory", err)
	}
	return saveCatalog(ctx, c, c.accessories(), a, a.IsActive)
}

// DeleteAccessory removes an accessory. Admin only. Shelves holding it keep
// the dangling id.
func (c *Coordinator) DeleteAccessory(ctx context.Context, accessoryID string) *Pending {
	return deleteCatalog(ctx, c, c.accessories(), accessoryID)
}

// SaveTheme creates or edits a theme. Admin only. A new theme is matched by
// name remotely, so saving a name that already exists edits that theme.
func (c *Coordinator) SaveTheme(ctx context.Context, t domain.Theme) *Pending {
	if err := c.requireAdmin(); err != nil {
		return c.reject("save_theme", err)
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.ID == "" {
		t.ID = id.Temp("theme")
	} else {
		t.ID = c.ids.resolve(t.ID)
	}
	if t.PageBackground == "" {
		t.PageBackground = domain.DefaultPageBackground
	}
	if err := c.validator.Validate(t); err != nil {
		return c.reject("save_theme", err)
	}
	return saveCatalog(ctx, c, c.themes(), t, t.IsActive)
}

// DeleteTheme removes a theme. Admin only. Shelves using it fall back to the
// default theme.
func (c *Coordinator) DeleteTheme(ctx context.Context, themeID string) *Pending {
	return deleteCatalog(ctx, c, c.themes(), themeID)
}

// SaveSkin creates or edits a skin. Admin only. A skin without an id takes
// one derived from its name, so it never needs re-keying.
func (c *Coordinator) SaveSkin(ctx context.Context, s domain.Skin) *Pending {
	if err := c.requireAdmin(); err != nil {
		return c.reject("save_skin", err)
	}
	s.Name = strings.TrimSpace(s.Name)
	if s.ID == "" || id.IsTemp(s.ID) {
		s.ID = domain.SkinIDFromName(s.Name)
	}
	if s.FrameColor == "" {
		s.FrameColor = domain.DefaultFrameColor
	}
	if err := c.validator.Validate(s); err != nil {
		return c.reject("save_skin", err)
	}
	return saveCatalog(ctx, c, c.skins(), s, s.IsActive)
}

// DeleteSkin removes a skin. Admin only.
func (c *Coordinator) DeleteSkin(ctx context.Context, skinID string) *Pending {
	return deleteCatalog(ctx, c, c.skins(), skinID)
}
