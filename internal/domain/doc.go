// Package domain holds the entity types shared by the sync layer: the
// accessory, theme and skin catalogs, shelves and their slots, reactions and
// profiles, plus the built-in defaults that weak references fall back to.
package domain
