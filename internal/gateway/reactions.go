package gateway

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/normalize"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// ReactionsForShelf returns every reaction row on a shelf.
func (g *Gateway) ReactionsForShelf(ctx context.Context, shelfID string) ([]domain.Reaction, bool) {
	return g.reactions(ctx, store.Filter{"shelf_id": shelfID})
}

// UserReactions returns the reactions userID holds across all shelves.
func (g *Gateway) UserReactions(ctx context.Context, userID string) ([]domain.Reaction, bool) {
	return g.reactions(ctx, store.Filter{"user_id": userID})
}

func (g *Gateway) reactions(ctx context.Context, filter store.Filter) ([]domain.Reaction, bool) {
	rows, err := g.fetchAll(ctx, store.TableReactions, store.Query{Filter: filter})
	if err != nil {
		g.readFailed(ctx, "fetch reactions", err, "filter", map[string]any(filter))
		return nil, false
	}
	out := make([]domain.Reaction, 0, len(rows))
	for _, r := range rows {
		if rx, ok := normalize.Reaction(r); ok {
			out = append(out, rx)
		}
	}
	return out, true
}

// ReactOutcome is what a React call did to the user's reaction row.
type ReactOutcome struct {
	Result domain.ToggleResult
	// Type is the reaction now held; empty after ToggleRemoved.
	Type domain.ReactionType
}

// React toggles userID's reaction on shelfID.
//
// The store's (shelf_id, user_id) unique key is the only authority: a
// conditional delete removes the row if it already holds chosen, and
// otherwise a single upsert on that key inserts or replaces it. There is no
// separate read, so concurrent reactors cannot both insert.
func (g *Gateway) React(ctx context.Context, shelfID, userID string, chosen domain.ReactionType) (ReactOutcome, error) {
	if shelfID == "" || userID == "" {
		return ReactOutcome{}, domainerrors.Validation("shelf and user are required")
	}
	if !chosen.Valid() {
		return ReactOutcome{}, domainerrors.Validationf("unknown reaction type %q", chosen)
	}

	ctx, span := g.start(ctx, "react",
		attribute.String("shelf_id", shelfID),
		attribute.String("user_id", userID),
		attribute.String("type", string(chosen)),
	)

	deleted, err := g.store.Delete(ctx, store.TableReactions, store.Filter{
		"shelf_id": shelfID,
		"user_id":  userID,
		"type":     string(chosen),
	})
	if err != nil {
		end(span, err)
		return ReactOutcome{}, g.writeFailed(ctx, "clear reaction", err, "shelf_id", shelfID, "user_id", userID)
	}
	if len(deleted) > 0 {
		span.SetAttributes(attribute.String("result", "removed"))
		end(span, nil)
		return ReactOutcome{Result: domain.ToggleRemoved}, nil
	}

	change, err := g.store.Upsert(ctx, store.TableReactions, normalize.ReactionRow(domain.Reaction{
		ShelfID: shelfID,
		UserID:  userID,
		Type:    chosen,
	}), []string{"shelf_id", "user_id"})
	end(span, err)
	if err != nil {
		return ReactOutcome{}, g.writeFailed(ctx, "save reaction", err, "shelf_id", shelfID, "user_id", userID)
	}

	out := ReactOutcome{Result: domain.ToggleAdded, Type: chosen}
	if change.Op == store.OpUpdate {
		out.Result = domain.ToggleReplaced
	}
	return out, nil
}

// SetReaction makes held the reaction userID has on shelfID; "" removes it.
// The row ends up as held whatever the remote had before.
func (g *Gateway) SetReaction(ctx context.Context, shelfID, userID string, held domain.ReactionType) error {
	if shelfID == "" || userID == "" {
		return domainerrors.Validation("shelf and user are required")
	}
	if held != "" && !held.Valid() {
		return domainerrors.Validationf("unknown reaction type %q", held)
	}

	ctx, span := g.start(ctx, "set_reaction",
		attribute.String("shelf_id", shelfID),
		attribute.String("user_id", userID),
		attribute.String("type", string(held)),
	)

	if held == "" {
		_, err := g.store.Delete(ctx, store.TableReactions, store.Filter{
			"shelf_id": shelfID,
			"user_id":  userID,
		})
		end(span, err)
		if err != nil {
			return g.writeFailed(ctx, "clear reaction", err, "shelf_id", shelfID, "user_id", userID)
		}
		return nil
	}

	_, err := g.store.Upsert(ctx, store.TableReactions, normalize.ReactionRow(domain.Reaction{
		ShelfID: shelfID,
		UserID:  userID,
		Type:    held,
	}), []string{"shelf_id", "user_id"})
	end(span, err)
	if err != nil {
		return g.writeFailed(ctx, "save reaction", err, "shelf_id", shelfID, "user_id", userID)
	}
	return nil
}
