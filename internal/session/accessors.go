package session

import (
	"context"

	"github.com/cryptoshelf/shelfsync/internal/cache"
	"github.com/cryptoshelf/shelfsync/internal/coordinator"
	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/views"
)

// Commands returns the mutation coordinator.
func (s *Session) Commands() *coordinator.Coordinator { return s.commands }

// Watch streams collection change notifications until ctx ends or the
// session closes.
func (s *Session) Watch(ctx context.Context) <-chan cache.Name { return s.cache.Watch(ctx) }

// CurrentUser returns the principal, if any.
func (s *Session) CurrentUser() (domain.Principal, bool) { return s.cache.CurrentUser() }

// Live reports whether the change feed is connected.
func (s *Session) Live() bool { return s.listener.Connected() }

func (s *Session) Accessories() []domain.Accessory { return s.cache.Accessories.All() }

func (s *Session) Themes() []domain.Theme { return s.cache.Themes.All() }

func (s *Session) Skins() []domain.Skin { return s.cache.Skins.All() }

// Shelves returns every cached shelf, including the user's unsaved one.
func (s *Session) Shelves() []domain.Shelf { return s.cache.Shelves.All() }

// Explore lists shelves for the explore page.
func (s *Session) Explore(f views.Filter) []domain.Shelf {
	return views.Explore(s.cache.Shelves.All(), f)
}

// Rankings ranks the listed shelves by total reactions.
func (s *Session) Rankings() []views.Ranked {
	return views.Rankings(s.cache.Shelves.All())
}

// Palette returns the accessories a user may place, in catalog order.
func (s *Session) Palette() []domain.Accessory {
	all := s.cache.Accessories.All()
	out := make([]domain.Accessory, 0, len(all))
	for _, a := range all {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

// MyShelf returns the current user's shelf. A user without a shelf gets an
// empty one with a temporary id, held only in the cache until the first
// edit saves it. It fails when there is no user, or when the remote cannot
// confirm whether a shelf already exists.
func (s *Session) MyShelf(ctx context.Context) (domain.Shelf, error) {
	p, ok := s.cache.CurrentUser()
	if !ok {
		return domain.Shelf{}, domainerrors.Validation("no current user")
	}
	s.mineMu.Lock()
	defer s.mineMu.Unlock()
	if sh, ok := s.ownShelf(p.ID); ok {
		return sh, nil
	}

	// Hidden shelves are not in the listing; ask for it directly.
	remote, known := s.gateway.ShelfForOwner(ctx, p.ID)
	if !known {
		return domain.Shelf{}, domainerrors.Unavailablef("fetch shelf for %s", p.ID)
	}

	var sh domain.Shelf
	if remote != nil {
		sh = *remote
	} else {
		sh = domain.NewShelf(id.Temp("shelf"), p.ID, s.gateway.Capacity())
		sh.Owner = domain.Owner{ID: p.ID, Handle: p.Handle}
	}
	s.cache.Shelves.Update(sh.ID, func(cur domain.Shelf, exists bool) (domain.Shelf, bool) {
		if exists {
			return cur, false
		}
		return sh, true
	})
	if mine, ok := s.ownShelf(p.ID); ok {
		return mine, nil
	}
	return domain.Shelf{}, domainerrors.ErrClosed
}

func (s *Session) ownShelf(userID string) (domain.Shelf, bool) {
	for _, sh := range s.cache.Shelves.All() {
		if sh.OwnerID == userID {
			return sh, true
		}
	}
	return domain.Shelf{}, false
}

// ShelfDetail loads one shelf from the remote, hidden or not. When the
// remote is unreachable the cached copy is returned if there is one.
func (s *Session) ShelfDetail(ctx context.Context, shelfID string) (domain.Shelf, error) {
	shelfID = s.commands.ResolveID(shelfID)
	if id.IsTemp(shelfID) {
		if sh, ok := s.cache.Shelves.Get(shelfID); ok {
			return sh, nil
		}
		return domain.Shelf{}, domainerrors.NotFoundf("shelf %s not found", shelfID)
	}

	sh, known := s.gateway.ShelfByID(ctx, shelfID)
	switch {
	case known && sh == nil:
		return domain.Shelf{}, domainerrors.NotFoundf("shelf %s not found", shelfID)
	case known:
		return *sh, nil
	}
	if cached, ok := s.cache.Shelves.Get(shelfID); ok {
		return cached, nil
	}
	return domain.Shelf{}, domainerrors.Unavailablef("fetch shelf %s", shelfID)
}

// Appearance is the resolved look of a shelf.
type Appearance struct {
	Theme          domain.Theme
	Skin           domain.Skin
	PageBackground string
}

// Appearance resolves the shelf's theme and skin against the cached
// catalogs. Dangling references fall back to the defaults.
func (s *Session) Appearance(sh domain.Shelf) Appearance {
	theme := domain.ResolveTheme(s.cache.Themes.All(), sh.ThemeID)
	return Appearance{
		Theme:          theme,
		Skin:           domain.ResolveSkin(s.cache.Skins.All(), sh.SkinID),
		PageBackground: theme.PageBackground,
	}
}

// ReactionCounts returns the cached counts for a shelf and their total.
func (s *Session) ReactionCounts(shelfID string) (domain.ReactionCounts, int) {
	sh, ok := s.cache.Shelves.Get(s.commands.ResolveID(shelfID))
	if !ok {
		return domain.ReactionCounts{}, 0
	}
	return sh.Reactions.Clone(), sh.TotalReactions
}

// MyReaction returns the user's reaction on a shelf, or "".
func (s *Session) MyReaction(shelfID string) domain.ReactionType {
	return s.commands.MyReaction(shelfID)
}
