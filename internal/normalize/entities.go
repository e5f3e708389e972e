package normalize

import (
	"github.com/cryptoshelf/shelfsync/internal/domain"
	"github.com/cryptoshelf/shelfsync/internal/id"
	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Accessory decodes an accessories row. ok is false for rows without an id.
func Accessory(raw store.Row, img ImageResolver) (domain.Accessory, bool) {
	c := Canonical(store.TableAccessories, raw)
	a := domain.Accessory{
		ID:           String(c[FieldID]),
		Name:         String(c[FieldName]),
		Category:     Category(c[FieldCategory]),
		Rarity:       Rarity(c[FieldRarity]),
		ImageRef:     img.Resolve(Values(store.TableAccessories, raw, FieldImageRef)...),
		IsActive:     BoolOr(c[FieldIsActive], true),
		IsPhotoFrame: BoolOr(c[FieldIsPhotoFrame], false),
	}
	return a, a.ID != ""
}

// Theme decodes a themes row, filling the default page background.
func Theme(raw store.Row, img ImageResolver) (domain.Theme, bool) {
	c := Canonical(store.TableThemes, raw)
	t := domain.Theme{
		ID:             String(c[FieldID]),
		Name:           String(c[FieldName]),
		Kind:           ThemeKind(c[FieldKind]),
		Value:          String(c[FieldValue]),
		PageBackground: String(c[FieldPageBg]),
		ImageRef:       img.Resolve(Values(store.TableThemes, raw, FieldImageRef)...),
		IsActive:       BoolOr(c[FieldIsActive], true),
	}
	if t.PageBackground == "" {
		t.PageBackground = domain.DefaultPageBackground
	}
	return t, t.ID != ""
}

// Skin decodes a skins row. Renamed ids are mapped to their current name
// and a missing frame color takes the default.
func Skin(raw store.Row, img ImageResolver) (domain.Skin, bool) {
	c := Canonical(store.TableSkins, raw)
	s := domain.Skin{
		ID:         SkinID(String(c[FieldID]), ""),
		Name:       String(c[FieldName]),
		ImageRef:   img.Resolve(Values(store.TableSkins, raw, FieldImageRef)...),
		FrameColor: String(c[FieldFrameColor]),
		IsActive:   BoolOr(c[FieldIsActive], true),
	}
	if s.FrameColor == "" {
		s.FrameColor = domain.DefaultFrameColor
	}
	return s, s.ID != ""
}

// Shelf decodes a shelves row into a shelf with capacity empty slots. Slot
// contents, owner and reaction counts are joined by the caller.
func Shelf(raw store.Row, capacity int) (domain.Shelf, bool) {
	c := Canonical(store.TableShelves, raw)
	s := domain.NewShelf(String(c[FieldID]), String(c[FieldOwnerID]), capacity)
	s.ThemeID = String(c[FieldThemeID])
	if s.ThemeID == "" {
		s.ThemeID = domain.DefaultThemeID
	}
	s.SkinID = SkinID(String(c[FieldSkinID]), domain.DefaultSkinID)
	s.IsFeatured = BoolOr(c[FieldIsFeatured], false)
	s.IsHidden = BoolOr(c[FieldIsHidden], false)
	s.CreatedAt = Time(c[FieldCreatedAt])
	s.UpdatedAt = Time(c[FieldUpdatedAt])
	s.Owner = domain.Owner{ID: s.OwnerID, Handle: domain.DefaultHandle}
	return s, s.ID != ""
}

// SlotItem is a decoded shelf_items row.
type SlotItem struct {
	ShelfID string
	Index   int
	ItemID  string
}

// Slot decodes a shelf_items row. ok is false when the shelf or index is
// missing.
func Slot(raw store.Row) (SlotItem, bool) {
	c := Canonical(store.TableShelfItems, raw)
	idx, ok := Int(c[FieldSlotIndex])
	item := SlotItem{
		ShelfID: String(c[FieldShelfID]),
		Index:   idx,
		ItemID:  String(c[FieldItemID]),
	}
	return item, ok && item.ShelfID != ""
}

// Reaction decodes a reactions row. Rows with an unknown type are rejected.
func Reaction(raw store.Row) (domain.Reaction, bool) {
	c := Canonical(store.TableReactions, raw)
	r := domain.Reaction{
		ID:        String(c[FieldID]),
		ShelfID:   String(c[FieldShelfID]),
		UserID:    String(c[FieldUserID]),
		Type:      domain.ReactionType(String(c[FieldType])),
		CreatedAt: Time(c[FieldCreatedAt]),
	}
	return r, r.ShelfID != "" && r.UserID != "" && r.Type.Valid()
}

// Profile decodes a profiles row.
func Profile(raw store.Row) (domain.Profile, bool) {
	c := Canonical(store.TableProfiles, raw)
	p := domain.Profile{
		ID:            String(c[FieldID]),
		Handle:        String(c[FieldHandle]),
		AvatarURL:     String(c[FieldAvatarURL]),
		TwitterHandle: String(c[FieldTwitterHandle]),
		Role:          domain.Role(String(c[FieldRole])),
		IsVerified:    BoolOr(c[FieldIsVerified], false),
		IsHidden:      BoolOr(c[FieldIsHidden], false),
		CreatedAt:     Time(c[FieldCreatedAt]),
		UpdatedAt:     Time(c[FieldUpdatedAt]),
	}
	return p, p.ID != ""
}

// AccessoryRow encodes an accessory for the accessories table. The
// reference is written to the legacy image column and to image_url or
// image_path depending on its form. Local ids are left for the store to
// assign.
func AccessoryRow(a domain.Accessory) store.Row {
	row := store.Row{
		"name":           a.Name,
		"category":       string(a.Category),
		"rarity":         string(a.Rarity),
		"image":          a.ImageRef,
		"is_active":      a.IsActive,
		"is_photo_frame": a.IsPhotoFrame,
	}
	putID(row, a.ID)
	putImage(row, a.ImageRef)
	return row
}

// ThemeRow encodes a theme for the themes table.
func ThemeRow(t domain.Theme) store.Row {
	row := store.Row{
		"name":            t.Name,
		"type":            string(t.Kind),
		"value":           t.Value,
		"page_background": t.PageBackground,
		"is_active":       t.IsActive,
	}
	putID(row, t.ID)
	putImage(row, t.ImageRef)
	return row
}

// SkinRow encodes a skin for the skins table. Skins saved without an id get
// one derived from the name.
func SkinRow(s domain.Skin) store.Row {
	skinID := s.ID
	if skinID == "" || id.IsTemp(skinID) {
		skinID = domain.SkinIDFromName(s.Name)
	}
	row := store.Row{
		"id":          skinID,
		"name":        s.Name,
		"frame_color": s.FrameColor,
		"is_active":   s.IsActive,
	}
	putImage(row, s.ImageRef)
	return row
}

// ShelfRow encodes the owner-editable shelf header. Moderation flags are
// written separately.
func ShelfRow(s domain.Shelf) store.Row {
	row := store.Row{
		"user_id":  s.OwnerID,
		"theme_id": s.ThemeID,
		"skin_id":  s.SkinID,
	}
	putID(row, s.ID)
	return row
}

// SlotRow encodes one slot. Empty slots are stored with a NULL item so a
// cleared slot overwrites the previous item.
func SlotRow(shelfID string, s domain.Slot) store.Row {
	var item any
	if !s.Empty() {
		item = s.ItemID
	}
	return store.Row{
		"shelf_id":   shelfID,
		"slot_index": s.Index,
		"item_key":   item,
	}
}

// ReactionRow encodes a reaction.
func ReactionRow(r domain.Reaction) store.Row {
	return store.Row{
		"shelf_id": r.ShelfID,
		"user_id":  r.UserID,
		"type":     string(r.Type),
	}
}

// ProfileRow encodes a profile. Optional text columns are NULL when empty.
func ProfileRow(p domain.Profile) store.Row {
	return store.Row{
		"id":             p.ID,
		"handle":         p.Handle,
		"avatar_url":     nullable(p.AvatarURL),
		"twitter_handle": nullable(p.TwitterHandle),
		"role":           string(p.Principal().Role),
		"is_verified":    p.IsVerified,
		"is_hidden":      p.IsHidden,
	}
}

func putID(row store.Row, entityID string) {
	if entityID != "" && !id.IsTemp(entityID) {
		row["id"] = entityID
	}
}

func putImage(row store.Row, ref string) {
	if ref == "" {
		return
	}
	if IsAbsolute(ref) {
		row["image_url"] = ref
	} else {
		row["image_path"] = ref
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
