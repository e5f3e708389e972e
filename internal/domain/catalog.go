package domain

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Category groups accessories in the picker.
type Category string

const (
	CategoryCrypto     Category = "CRYPTO"
	CategoryMeme       Category = "MEME"
	CategoryToy        Category = "TOY"
	CategoryPhotoFrame Category = "PHOTO_FRAME"
)

// Categories lists every accessory category in picker order.
var Categories = []Category{CategoryCrypto, CategoryMeme, CategoryToy, CategoryPhotoFrame}

// Rarity is a cosmetic tier shown on accessory cards.
type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityRare      Rarity = "Rare"
	RarityLegendary Rarity = "Legendary"
)

// ThemeKind says how a theme's Value is interpreted.
type ThemeKind string

const (
	// ThemeGradient themes carry a CSS gradient or variable in Value.
	ThemeGradient ThemeKind = "GRADIENT"
	// ThemeImage themes carry an image reference in ImageRef.
	ThemeImage ThemeKind = "IMAGE"
)

// Accessory is a placeable collectible item.
type Accessory struct {
	ID           string   `json:"id" validate:"required,max=64"`
	Name         string   `json:"name" validate:"required,max=80"`
	Category     Category `json:"category" validate:"required,oneof=CRYPTO MEME TOY PHOTO_FRAME"`
	Rarity       Rarity   `json:"rarity" validate:"required,oneof=Common Rare Legendary"`
	ImageRef     string   `json:"image_ref,omitempty"`
	IsActive     bool     `json:"is_active"`
	IsPhotoFrame bool     `json:"is_photo_frame"`
}

// Key identifies the accessory in the cache.
func (a Accessory) Key() string { return a.ID }

// Placeable reports whether the accessory may be offered by randomization.
func (a Accessory) Placeable() bool {
	return a.IsActive && !a.IsPhotoFrame
}

// Theme styles the shelf backdrop and the surrounding page.
type Theme struct {
	ID             string    `json:"id" validate:"required,max=64"`
	Name           string    `json:"name" validate:"required,max=80"`
	Kind           ThemeKind `json:"kind" validate:"required,oneof=GRADIENT IMAGE"`
	Value          string    `json:"value"`
	PageBackground string    `json:"page_background"`
	ImageRef       string    `json:"image_ref,omitempty"`
	IsActive       bool      `json:"is_active"`
}

// Key identifies the theme in the cache.
func (t Theme) Key() string { return t.ID }

// Skin styles the shelf frame.
type Skin struct {
	ID         string `json:"id" validate:"required,max=64"`
	Name       string `json:"name" validate:"required,max=80"`
	ImageRef   string `json:"image_ref,omitempty"`
	FrameColor string `json:"frame_color" validate:"omitempty,hexcolor"`
	IsActive   bool   `json:"is_active"`
}

// Key identifies the skin in the cache.
func (s Skin) Key() string { return s.ID }

var nonWordRun = regexp.MustCompile(`[^a-z0-9]+`)

// SkinIDFromName derives the id for a skin saved without one.
// "Rose Gold" -> "rose_gold", "Crème Brûlée" -> "creme_brulee".
func SkinIDFromName(name string) string {
	s := norm.NFKD.String(name)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = strings.ToLower(s)
	s = nonWordRun.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// FindAccessory returns the accessory with id from items.
func FindAccessory(items []Accessory, id string) (Accessory, bool) {
	for _, a := range items {
		if a.ID == id {
			return a, true
		}
	}
	return Accessory{}, false
}
