package gateway

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/normalize"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Accessories returns the active accessory catalog ordered by category.
func (g *Gateway) Accessories(ctx context.Context) ([]domain.Accessory, bool) {
	rows, err := g.fetchAll(ctx, store.TableAccessories, store.Query{OrderBy: "category"})
	if err != nil {
		g.readFailed(ctx, "fetch accessories", err)
		return nil, false
	}
	out := make([]domain.Accessory, 0, len(rows))
	for _, r := range rows {
		a, ok := normalize.Accessory(r, g.images)
		if !ok || !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	return out, true
}

// Themes returns the active themes.
func (g *Gateway) Themes(ctx context.Context) ([]domain.Theme, bool) {
	rows, err := g.fetchAll(ctx, store.TableThemes, store.Query{OrderBy: "name"})
	if err != nil {
		g.readFailed(ctx, "fetch themes", err)
		return nil, false
	}
	out := make([]domain.Theme, 0, len(rows))
	for _, r := range rows {
		t, ok := normalize.Theme(r, g.images)
		if !ok || !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, true
}

// Skins returns the active skins.
func (g *Gateway) Skins(ctx context.Context) ([]domain.Skin, bool) {
	rows, err := g.fetchAll(ctx, store.TableSkins, store.Query{OrderBy: "name"})
	if err != nil {
		g.readFailed(ctx, "fetch skins", err)
		return nil, false
	}
	out := make([]domain.Skin, 0, len(rows))
	for _, r := range rows {
		s, ok := normalize.Skin(r, g.images)
		if !ok || !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	return out, true
}

// SaveAccessory upserts an accessory by id and returns the stored value. A
// local id is replaced by one assigned by the store.
func (g *Gateway) SaveAccessory(ctx context.Context, a domain.Accessory) (domain.Accessory, error) {
	ctx, span := g.start(ctx, "save_accessory", attribute.String("accessory_id", a.ID))
	change, err := g.store.Upsert(ctx, store.TableAccessories, normalize.AccessoryRow(a), nil)
	end(span, err)
	if err != nil {
		return domain.Accessory{}, g.writeFailed(ctx, "save accessory", err, "accessory_id", a.ID)
	}
	saved, ok := normalize.Accessory(change.Row, g.images)
	if !ok {
		return domain.Accessory{}, domainerrors.Internal("store returned accessory without id")
	}
	return saved, nil
}

// DeleteAccessory removes an accessory. Shelves still holding it keep the
// dangling id.
func (g *Gateway) DeleteAccessory(ctx context.Context, accessoryID string) error {
	return g.deleteByID(ctx, store.TableAccessories, accessoryID)
}

// SaveTheme upserts a theme. Themes without a stored id are matched by
// name.
func (g *Gateway) SaveTheme(ctx context.Context, t domain.Theme) (domain.Theme, error) {
	ctx, span := g.start(ctx, "save_theme", attribute.String("theme_id", t.ID))
	var conflict []string
	if t.ID == "" || id.IsTemp(t.ID) {
		conflict = []string{"name"}
	}
	change, err := g.store.Upsert(ctx, store.TableThemes, normalize.ThemeRow(t), conflict)
	end(span, err)
	if err != nil {
		return domain.Theme{}, g.writeFailed(ctx, "save theme", err, "theme_id", t.ID, "name", t.Name)
	}
	saved, ok := normalize.Theme(change.Row, g.images)
	if !ok {
		return domain.Theme{}, domainerrors.Internal("store returned theme without id")
	}
	return saved, nil
}

// DeleteTheme removes a theme. Shelves referencing it fall back to the
// default theme on read.
func (g *Gateway) DeleteTheme(ctx context.Context, themeID string) error {
	return g.deleteByID(ctx, store.TableThemes, themeID)
}

// SaveSkin upserts a skin by id, deriving the id from the name when unset.
func (g *Gateway) SaveSkin(ctx context.Context, s domain.Skin) (domain.Skin, error) {
	row := normalize.SkinRow(s)
	ctx, span := g.start(ctx, "save_skin", attribute.String("skin_id", fmt.Sprint(row["id"])))
	change, err := g.store.Upsert(ctx, store.TableSkins, row, nil)
	end(span, err)
	if err != nil {
		return domain.Skin{}, g.writeFailed(ctx, "save skin", err, "skin_id", row["id"])
	}
	saved, ok := normalize.Skin(change.Row, g.images)
	if !ok {
		return domain.Skin{}, domainerrors.Internal("store returned skin without id")
	}
	return saved, nil
}

// DeleteSkin removes a skin.
func (g *Gateway) DeleteSkin(ctx context.Context, skinID string) error {
	return g.deleteByID(ctx, store.TableSkins, skinID)
}

// deleteByID removes the row with id. Deleting a missing row is not an
// error; the caller already holds the desired state.
func (g *Gateway) deleteByID(ctx context.Context, table store.Table, rowID string) error {
	if rowID == "" {
		return domainerrors.Validationf("%s: id is required", table)
	}
	if id.IsTemp(rowID) {
		return nil
	}
	ctx, span := g.start(ctx, "delete",
		attribute.String("table", string(table)),
		attribute.String("id", rowID),
	)
	deleted, err := g.store.Delete(ctx, table, store.Filter{"id": rowID})
	span.SetAttributes(attribute.Int("rows", len(deleted)))
	end(span, err)
	if err != nil {
		return g.writeFailed(ctx, "delete", err, "table", table, "id", rowID)
	}
	return nil
}
