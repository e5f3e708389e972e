package coordinator

import (
	"context"
	"time"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/id"
)

// React toggles the current user's reaction on a shelf: a new type replaces
// the held one, the same type clears it. The user's reaction and the
// shelf's counts are updated locally at once. The remote write carries the
// resulting reaction, not the toggle, so the remote row always ends up as
// the cache shows it; the next shelf refetch settles the counts.
func (c *Coordinator) React(ctx context.Context, shelfID string, chosen domain.ReactionType) *Pending {
	user, err := c.principal()
	if err != nil {
		return c.reject("react", err)
	}
	if !chosen.Valid() {
		return c.reject("react", domainerrors.Validationf("unknown reaction type %q", chosen))
	}
	shelfID = c.ids.resolve(shelfID)
	if shelfID == "" {
		return c.reject("react", domainerrors.Validation("shelf id is required"))
	}
	if id.IsTemp(shelfID) {
		return c.reject("react", domainerrors.Validation("shelf has not been saved yet"))
	}

	key := domain.ReactionKey(shelfID, user.ID)

	c.reactMu.Lock()
	held, _ := c.cache.Reactions.Get(key)
	after, _ := domain.Toggle(held.Type, chosen)

	var applied bool
	if after == "" {
		applied = c.cache.Reactions.Remove(key)
	} else {
		applied = c.cache.Reactions.Upsert(domain.Reaction{
			CreatedAt: time.Now().UTC(),
			ShelfID:   shelfID,
			UserID:    user.ID,
			Type:      after,
		})
	}
	if applied {
		c.cache.Shelves.Update(shelfID, func(cur domain.Shelf, exists bool) (domain.Shelf, bool) {
			if !exists {
				return cur, false
			}
			next := cur.Clone()
			next.Reactions = next.Reactions.ApplyToggle(held.Type, after)
			next.TotalReactions = next.Reactions.Total()
			return next, true
		})
	}
	c.reactMu.Unlock()

	if !applied {
		return c.reject("react", nil)
	}

	return c.submit(ctx, "reaction:"+key, "react", func(ctx context.Context) (string, error) {
		return "", c.remote.SetReaction(ctx, shelfID, user.ID, after)
	})
}

// MyReaction returns the reaction type the current user holds on a shelf,
// or "" for none.
func (c *Coordinator) MyReaction(shelfID string) domain.ReactionType {
	user, err := c.principal()
	if err != nil {
		return ""
	}
	r, ok := c.cache.Reactions.Get(domain.ReactionKey(c.ids.resolve(shelfID), user.ID))
	if !ok {
		return ""
	}
	return r.Type
}
