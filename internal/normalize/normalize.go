// Package normalize maps the loosely shaped rows the remote store returns
// onto one canonical field set per table.
//
// Rows written by older clients carry the same logical field under several
// names (snake_case columns, camelCase keys, historical column names). The
// alias table below is the single place those names are known; every read
// path goes through Canonical before decoding into domain types.
package normalize

import (
	"strings"

	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Field is one canonical field and the keys it may arrive under, in
// precedence order. The first key holding a non-empty value wins.
type Field struct {
	Name string
	Keys []string
}

// Canonical field names shared across tables.
const (
	FieldID            = "id"
	FieldName          = "name"
	FieldImageRef      = "image_ref"
	FieldIsActive      = "is_active"
	FieldCreatedAt     = "created_at"
	FieldUpdatedAt     = "updated_at"
	FieldCategory      = "category"
	FieldRarity        = "rarity"
	FieldIsPhotoFrame  = "is_photo_frame"
	FieldKind          = "kind"
	FieldValue         = "value"
	FieldPageBg        = "page_background"
	FieldFrameColor    = "frame_color"
	FieldOwnerID       = "owner_id"
	FieldThemeID       = "theme_id"
	FieldSkinID        = "skin_id"
	FieldIsFeatured    = "is_featured"
	FieldIsHidden      = "is_hidden"
	FieldShelfID       = "shelf_id"
	FieldSlotIndex     = "slot_index"
	FieldItemID        = "item_id"
	FieldUserID        = "user_id"
	FieldType          = "type"
	FieldHandle        = "handle"
	FieldAvatarURL     = "avatar_url"
	FieldTwitterHandle = "twitter_handle"
	FieldRole          = "role"
	FieldIsVerified    = "is_verified"
)

// Alias table: canonical field -> accepted keys, per table.
//
//nolint:gochecknoglobals // Static lookup table for row normalization
var aliases = map[store.Table][]Field{
	store.TableAccessories: {
		{FieldID, []string{"id"}},
		{FieldName, []string{"name"}},
		{FieldCategory, []string{"category"}},
		{FieldRarity, []string{"rarity"}},
		{FieldImageRef, []string{"image", "image_url", "imageUrl", "image_path", "imagePath"}},
		{FieldIsActive, []string{"is_active", "isActive"}},
		{FieldIsPhotoFrame, []string{"is_photo_frame", "isPhotoFrame"}},
		{FieldCreatedAt, []string{"created_at", "createdAt"}},
		{FieldUpdatedAt, []string{"updated_at", "updatedAt"}},
	},
	store.TableThemes: {
		{FieldID, []string{"id"}},
		{FieldName, []string{"name"}},
		{FieldKind, []string{"type", "kind"}},
		{FieldValue, []string{"value"}},
		{FieldPageBg, []string{"page_background", "pageBackground"}},
		{FieldImageRef, []string{"image_url", "imageUrl", "image_path", "imagePath"}},
		{FieldIsActive, []string{"is_active", "isActive"}},
		{FieldCreatedAt, []string{"created_at", "createdAt"}},
		{FieldUpdatedAt, []string{"updated_at", "updatedAt"}},
	},
	store.TableSkins: {
		{FieldID, []string{"id"}},
		{FieldName, []string{"name"}},
		{FieldImageRef, []string{"image_url", "imageUrl", "image_path", "imagePath"}},
		{FieldFrameColor, []string{"frame_color", "frameColor"}},
		{FieldIsActive, []string{"is_active", "isActive"}},
		{FieldCreatedAt, []string{"created_at", "createdAt"}},
		{FieldUpdatedAt, []string{"updated_at", "updatedAt"}},
	},
	store.TableShelves: {
		{FieldID, []string{"id"}},
		{FieldOwnerID, []string{"user_id", "userId", "owner_id", "ownerId"}},
		{FieldThemeID, []string{"theme_id", "themeId"}},
		{FieldSkinID, []string{"skin_id", "skinId"}},
		{FieldIsFeatured, []string{"is_featured", "isFeatured"}},
		{FieldIsHidden, []string{"is_hidden", "isHidden"}},
		{FieldCreatedAt, []string{"created_at", "createdAt"}},
		{FieldUpdatedAt, []string{"updated_at", "updatedAt"}},
	},
	store.TableShelfItems: {
		{FieldShelfID, []string{"shelf_id", "shelfId"}},
		{FieldSlotIndex, []string{"slot_index", "slotIndex", "index"}},
		{FieldItemID, []string{"item_key", "itemKey", "item_id", "itemId"}},
	},
	store.TableReactions: {
		{FieldID, []string{"id"}},
		{FieldShelfID, []string{"shelf_id", "shelfId"}},
		{FieldUserID, []string{"user_id", "userId"}},
		{FieldType, []string{"type"}},
		{FieldCreatedAt, []string{"created_at", "createdAt"}},
	},
	store.TableProfiles: {
		{FieldID, []string{"id"}},
		{FieldHandle, []string{"handle"}},
		{FieldAvatarURL, []string{"avatar_url", "avatarUrl", "avatar"}},
		{FieldTwitterHandle, []string{"twitter_handle", "twitterHandle"}},
		{FieldRole, []string{"role"}},
		{FieldIsVerified, []string{"is_verified", "isVerified"}},
		{FieldIsHidden, []string{"is_hidden", "isHidden"}},
		{FieldCreatedAt, []string{"created_at", "createdAt"}},
		{FieldUpdatedAt, []string{"updated_at", "updatedAt"}},
	},
}

// Value aliases for stored ids that were renamed.
//
//nolint:gochecknoglobals // Static lookup table for id normalization
var skinIDAliases = map[string]string{
	"classic_wood": "classic",
}

// Fields returns the alias table entries for table.
func Fields(table store.Table) []Field {
	return aliases[table]
}

// CanonicalKey returns the canonical field a raw key maps to.
func CanonicalKey(table store.Table, key string) (string, bool) {
	for _, f := range aliases[table] {
		for _, k := range f.Keys {
			if k == key {
				return f.Name, true
			}
		}
	}
	return "", false
}

// Canonical folds raw onto the canonical fields of table. For each field the
// first alias holding a non-empty value wins; keys outside the table are
// dropped. raw is not modified.
func Canonical(table store.Table, raw map[string]any) map[string]any {
	fields := aliases[table]
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		for _, k := range f.Keys {
			v, ok := raw[k]
			if !ok || isBlank(v) {
				continue
			}
			out[f.Name] = v
			break
		}
	}
	return out
}

// Values returns every non-empty value stored under any alias of field, in
// precedence order. Image resolution uses it to pick the best reference.
func Values(table store.Table, raw map[string]any, field string) []string {
	var out []string
	for _, f := range aliases[table] {
		if f.Name != field {
			continue
		}
		for _, k := range f.Keys {
			if s := String(raw[k]); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// SkinID maps a stored skin id onto its current name. Empty ids resolve to
// def.
func SkinID(id, def string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return def
	}
	if to, ok := skinIDAliases[id]; ok {
		return to
	}
	return id
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}
