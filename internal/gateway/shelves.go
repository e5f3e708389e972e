package gateway

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/normalize"
	"github.com/cryptoshelf/shelfsync/internal/slot"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Shelves returns every listed shelf, newest first, joined with its owner
// profile, slot contents and reaction counts. Shelves that are hidden or
// whose owner is hidden are left out.
func (g *Gateway) Shelves(ctx context.Context) ([]domain.Shelf, bool) {
	ctx, span := g.start(ctx, "shelves")
	var (
		shelfRows, profileRows, itemRows, reactionRows []store.Row
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		shelfRows, err = g.fetchAll(egCtx, store.TableShelves, store.Query{OrderBy: "created_at", Desc: true})
		return err
	})
	eg.Go(func() (err error) {
		profileRows, err = g.fetchAll(egCtx, store.TableProfiles, store.Query{})
		return err
	})
	eg.Go(func() (err error) {
		itemRows, err = g.fetchAll(egCtx, store.TableShelfItems, store.Query{})
		return err
	})
	eg.Go(func() (err error) {
		reactionRows, err = g.fetchAll(egCtx, store.TableReactions, store.Query{})
		return err
	})
	err := eg.Wait()
	end(span, err)
	if err != nil {
		g.readFailed(ctx, "fetch shelves", err)
		return nil, false
	}

	owners := make(map[string]domain.Owner, len(profileRows))
	for _, r := range profileRows {
		if p, ok := normalize.Profile(r); ok {
			owners[p.ID] = p.Owner()
		}
	}
	items := groupItems(itemRows)
	counts := groupReactions(reactionRows)

	out := make([]domain.Shelf, 0, len(shelfRows))
	for _, r := range shelfRows {
		s, ok := normalize.Shelf(r, g.capacity)
		if !ok {
			continue
		}
		g.join(&s, owners, items[s.ID], counts[s.ID])
		if !s.Listed() {
			continue
		}
		out = append(out, s)
	}
	return out, true
}

// ShelfByID returns one shelf regardless of hidden flags. A confirmed miss
// returns (nil, true).
func (g *Gateway) ShelfByID(ctx context.Context, shelfID string) (*domain.Shelf, bool) {
	return g.shelfWhere(ctx, "shelf_by_id", store.Filter{"id": shelfID})
}

// ShelfForOwner returns the shelf owned by ownerID. A confirmed miss returns
// (nil, true).
func (g *Gateway) ShelfForOwner(ctx context.Context, ownerID string) (*domain.Shelf, bool) {
	return g.shelfWhere(ctx, "shelf_for_owner", store.Filter{"user_id": ownerID})
}

func (g *Gateway) shelfWhere(ctx context.Context, op string, filter store.Filter) (*domain.Shelf, bool) {
	ctx, span := g.start(ctx, op)
	row, err := g.store.FetchOne(ctx, store.TableShelves, filter)
	if errors.Is(err, store.ErrNotFound) {
		end(span, nil)
		return nil, true
	}
	if err != nil {
		end(span, err)
		g.readFailed(ctx, op, err)
		return nil, false
	}
	s, ok := normalize.Shelf(row, g.capacity)
	if !ok {
		end(span, nil)
		return nil, true
	}
	span.SetAttributes(attribute.String("shelf_id", s.ID))

	var (
		profile                *store.Row
		itemRows, reactionRows []store.Row
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		p, err := g.store.FetchOne(egCtx, store.TableProfiles, store.Filter{"id": s.OwnerID})
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		profile = &p
		return nil
	})
	eg.Go(func() (err error) {
		itemRows, err = g.fetchAll(egCtx, store.TableShelfItems, store.Query{Filter: store.Filter{"shelf_id": s.ID}, OrderBy: "slot_index"})
		return err
	})
	eg.Go(func() (err error) {
		reactionRows, err = g.fetchAll(egCtx, store.TableReactions, store.Query{Filter: store.Filter{"shelf_id": s.ID}})
		return err
	})
	err = eg.Wait()
	end(span, err)
	if err != nil {
		g.readFailed(ctx, op, err, "shelf_id", s.ID)
		return nil, false
	}

	owners := map[string]domain.Owner{}
	if profile != nil {
		if p, ok := normalize.Profile(*profile); ok {
			owners[p.ID] = p.Owner()
		}
	}
	g.join(&s, owners, groupItems(itemRows)[s.ID], groupReactions(reactionRows)[s.ID])
	return &s, true
}

// join fills the read-model fields of s.
func (g *Gateway) join(s *domain.Shelf, owners map[string]domain.Owner, items map[int]string, counts domain.ReactionCounts) {
	if o, ok := owners[s.OwnerID]; ok {
		s.Owner = o
	}
	s.Slots = slot.FromItems(g.capacity, items)
	s.Reactions = counts.Clone()
	s.TotalReactions = s.Reactions.Total()
}

func groupItems(rows []store.Row) map[string]map[int]string {
	out := make(map[string]map[int]string)
	for _, r := range rows {
		item, ok := normalize.Slot(r)
		if !ok || item.ItemID == "" {
			continue
		}
		if out[item.ShelfID] == nil {
			out[item.ShelfID] = make(map[int]string)
		}
		out[item.ShelfID][item.Index] = item.ItemID
	}
	return out
}

func groupReactions(rows []store.Row) map[string]domain.ReactionCounts {
	out := make(map[string]domain.ReactionCounts)
	for _, r := range rows {
		rx, ok := normalize.Reaction(r)
		if !ok {
			continue
		}
		if out[rx.ShelfID] == nil {
			out[rx.ShelfID] = domain.ReactionCounts{}
		}
		out[rx.ShelfID][rx.Type]++
	}
	return out
}

// SaveShelfHeader upserts the shelf header keyed by owner and returns the
// stored shelf id.
func (g *Gateway) SaveShelfHeader(ctx context.Context, s domain.Shelf) (string, error) {
	if s.OwnerID == "" {
		return "", domainerrors.Validation("shelf owner is required")
	}
	ctx, span := g.start(ctx, "save_shelf_header", attribute.String("owner_id", s.OwnerID))
	change, err := g.store.Upsert(ctx, store.TableShelves, normalize.ShelfRow(s), []string{"user_id"})
	end(span, err)
	if err != nil {
		return "", g.writeFailed(ctx, "save shelf", err, "owner_id", s.OwnerID)
	}
	saved, ok := normalize.Shelf(change.Row, g.capacity)
	if !ok {
		return "", domainerrors.Internal("store returned shelf without id")
	}
	return saved.ID, nil
}

// SaveShelf upserts the header and then every slot row, each carrying its
// full intended value. It returns the stored shelf id.
func (g *Gateway) SaveShelf(ctx context.Context, s domain.Shelf) (string, error) {
	shelfID, err := g.SaveShelfHeader(ctx, s)
	if err != nil {
		return "", err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, sl := range s.Slots {
		eg.Go(func() error {
			return g.SaveSlot(egCtx, shelfID, sl)
		})
	}
	if err := eg.Wait(); err != nil {
		return shelfID, err
	}
	return shelfID, nil
}

// SaveSlot upserts one slot row keyed by (shelf, index).
func (g *Gateway) SaveSlot(ctx context.Context, shelfID string, sl domain.Slot) error {
	ctx, span := g.start(ctx, "save_slot",
		attribute.String("shelf_id", shelfID),
		attribute.Int("slot_index", sl.Index),
	)
	_, err := g.store.Upsert(ctx, store.TableShelfItems, normalize.SlotRow(shelfID, sl), []string{"shelf_id", "slot_index"})
	end(span, err)
	if err != nil {
		return g.writeFailed(ctx, "save slot", err, "shelf_id", shelfID, "slot_index", sl.Index)
	}
	return nil
}

// SetFeatured flags or unflags a shelf for the featured listing.
func (g *Gateway) SetFeatured(ctx context.Context, shelfID string, featured bool) error {
	return g.setShelfFlag(ctx, shelfID, "is_featured", featured)
}

// SetHidden hides or restores a shelf in aggregate listings.
func (g *Gateway) SetHidden(ctx context.Context, shelfID string, hidden bool) error {
	return g.setShelfFlag(ctx, shelfID, "is_hidden", hidden)
}

func (g *Gateway) setShelfFlag(ctx context.Context, shelfID, column string, value bool) error {
	ctx, span := g.start(ctx, "set_shelf_flag",
		attribute.String("shelf_id", shelfID),
		attribute.String("column", column),
		attribute.Bool("value", value),
	)
	rows, err := g.store.Update(ctx, store.TableShelves, store.Filter{"id": shelfID}, store.Row{column: value})
	if err == nil && len(rows) == 0 {
		err = domainerrors.NotFoundf("shelf %s not found", shelfID)
	}
	end(span, err)
	if err != nil {
		return g.writeFailed(ctx, "update shelf status", err, "shelf_id", shelfID, "column", column)
	}
	return nil
}
