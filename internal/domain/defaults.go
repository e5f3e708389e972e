package domain

// Fallback values applied when a stored row or reference is missing.
const (
	DefaultThemeID        = "dawn"
	DefaultSkinID         = "classic"
	DefaultFrameColor     = "#8B5E3C"
	DefaultPageBackground = "#f5f5f5"
	// FallbackBackground is used when the default theme itself is unavailable.
	FallbackBackground = "#FFF5EC"
	DefaultHandle      = "Unknown"
)

// DefaultAccessories returns the built-in accessory catalog used until the
// remote catalog is known.
func DefaultAccessories() []Accessory {
	return []Accessory{
		{ID: "btc", Name: "Golden BTC", Category: CategoryCrypto, Rarity: RarityLegendary, ImageRef: "https://cdn-icons-png.flaticon.com/512/5968/5968260.png", IsActive: true},
		{ID: "eth", Name: "Crystal ETH", Category: CategoryCrypto, Rarity: RarityRare, ImageRef: "https://cdn-icons-png.flaticon.com/512/7016/7016531.png", IsActive: true},
		{ID: "sol", Name: "Fast SOL", Category: CategoryCrypto, Rarity: RarityCommon, ImageRef: "https://cryptologos.cc/logos/solana-sol-logo.png", IsActive: true},
		{ID: "ledger", Name: "Secure Vault", Category: CategoryCrypto, Rarity: RarityRare, ImageRef: "https://cdn-icons-png.flaticon.com/512/2091/2091665.png", IsActive: true},
		{ID: "usdc", Name: "USD Stable", Category: CategoryCrypto, Rarity: RarityCommon, ImageRef: "https://cryptologos.cc/logos/usd-coin-usdc-logo.png", IsActive: true},
		{ID: "bnb", Name: "Smart BNB", Category: CategoryCrypto, Rarity: RarityRare, ImageRef: "https://cryptologos.cc/logos/binance-coin-bnb-logo.png", IsActive: true},
		{ID: "pepe", Name: "Green Froggy", Category: CategoryMeme, Rarity: RarityRare, ImageRef: "https://cdn-icons-png.flaticon.com/512/3595/3595455.png", IsActive: true},
		{ID: "doge", Name: "Shiba Toy", Category: CategoryMeme, Rarity: RarityCommon, ImageRef: "https://cdn-icons-png.flaticon.com/512/3595/3595493.png", IsActive: true},
		{ID: "penguin", Name: "Cool Penguin", Category: CategoryMeme, Rarity: RarityLegendary, ImageRef: "https://cdn-icons-png.flaticon.com/512/3595/3595452.png", IsActive: true},
		{ID: "wojak", Name: "Feels Guy", Category: CategoryMeme, Rarity: RarityCommon, ImageRef: "https://cdn.pixabay.com/photo/2021/05/24/10/35/wojak-6278733_1280.png", IsActive: true},
		{ID: "gigachad", Name: "Alpha Male", Category: CategoryMeme, Rarity: RarityLegendary, ImageRef: "https://w7.pngwing.com/pngs/434/491/png-transparent-gigachad-meme-thumbnail.png", IsActive: true},
		{ID: "arcade", Name: "Mini Arcade", Category: CategoryToy, Rarity: RarityRare, ImageRef: "https://cdn-icons-png.flaticon.com/512/1006/1006272.png", IsActive: true},
		{ID: "robot", Name: "Bot Buddy", Category: CategoryToy, Rarity: RarityCommon, ImageRef: "https://cdn-icons-png.flaticon.com/512/1006/1006296.png", IsActive: true},
		{ID: "photo-frame", Name: "Classic Frame", Category: CategoryPhotoFrame, Rarity: RarityRare, ImageRef: "https://cdn-icons-png.flaticon.com/512/1375/1375106.png", IsActive: true, IsPhotoFrame: true},
	}
}

// DefaultThemes returns the built-in themes.
func DefaultThemes() []Theme {
	return []Theme{
		{ID: "dawn", Name: "Early Morning", Kind: ThemeGradient, Value: "var(--grad-morning)", PageBackground: "#FFF5EC", IsActive: true},
		{ID: "sky", Name: "Blue Sky", Kind: ThemeGradient, Value: "var(--grad-sky)", PageBackground: "#E3F2FD", IsActive: true},
		{ID: "mint", Name: "Fresh Mint", Kind: ThemeGradient, Value: "var(--grad-mint)", PageBackground: "#E8F5E9", IsActive: true},
		{ID: "sunset", Name: "Sunset Glow", Kind: ThemeGradient, Value: "var(--grad-sunset)", PageBackground: "#FFF3E0", IsActive: true},
		{ID: "night", Name: "Midnight", Kind: ThemeGradient, Value: "linear-gradient(135deg, #1a1a2e 0%, #16213e 100%)", PageBackground: "#0f3460", IsActive: true},
	}
}

// DefaultSkins returns the built-in skins.
func DefaultSkins() []Skin {
	return []Skin{
		{ID: "classic", Name: "Classic", ImageRef: "assets/skins/wood_shelf.png", FrameColor: "#8B5E3C", IsActive: true},
		{ID: "gold", Name: "Gold", ImageRef: "assets/skins/gold_shelf.png", FrameColor: "#D4AF37", IsActive: true},
		{ID: "pink", Name: "Pink", ImageRef: "assets/skins/pink_shelf.png", FrameColor: "#F48FB1", IsActive: true},
		{ID: "mystic", Name: "Mystic", ImageRef: "assets/skins/ice_shelf.jpg", FrameColor: "#2E7D32", IsActive: true},
		{ID: "diamond", Name: "Diamond", ImageRef: "assets/skins/mystic_shelf.png", FrameColor: "#A5D6A7", IsActive: true},
	}
}

// MergeSkins overlays remote skins on the built-in set by id, keeping
// built-in order and appending remote-only skins.
func MergeSkins(builtin, remote []Skin) []Skin {
	byID := make(map[string]Skin, len(remote))
	for _, s := range remote {
		byID[s.ID] = s
	}
	out := make([]Skin, 0, len(builtin)+len(remote))
	seen := make(map[string]bool, len(builtin))
	for _, s := range builtin {
		if r, ok := byID[s.ID]; ok {
			s = r
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	for _, s := range remote {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// ResolveTheme follows a shelf's weak theme reference. Unknown ids resolve to
// the default theme; if that is missing too a synthetic theme carrying the
// fallback background is returned.
func ResolveTheme(themes []Theme, themeID string) Theme {
	var fallback *Theme
	for i := range themes {
		if themes[i].ID == themeID {
			return withBackground(themes[i])
		}
		if themes[i].ID == DefaultThemeID {
			fallback = &themes[i]
		}
	}
	if fallback != nil {
		return withBackground(*fallback)
	}
	return Theme{ID: DefaultThemeID, Kind: ThemeGradient, PageBackground: FallbackBackground, IsActive: true}
}

func withBackground(t Theme) Theme {
	if t.PageBackground == "" {
		t.PageBackground = FallbackBackground
	}
	return t
}

// ResolveSkin follows a shelf's weak skin reference with the same fallback
// rules as ResolveTheme.
func ResolveSkin(skins []Skin, skinID string) Skin {
	var fallback *Skin
	for i := range skins {
		if skins[i].ID == skinID {
			return skins[i]
		}
		if skins[i].ID == DefaultSkinID {
			fallback = &skins[i]
		}
	}
	if fallback != nil {
		return *fallback
	}
	return Skin{ID: DefaultSkinID, Name: "Classic", FrameColor: DefaultFrameColor, IsActive: true}
}
