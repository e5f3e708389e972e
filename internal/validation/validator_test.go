package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
)

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	var de *domainerrors.Error
	require.True(t, domainerrors.As(err, &de))
	require.Equal(t, domainerrors.CodeValidation, de.Code)
	fields, ok := de.Details.(map[string]string)
	require.True(t, ok)
	return fields
}

func TestValidate_Accessory(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(domain.DefaultAccessories()[0]))

	err := v.Validate(domain.Accessory{ID: "x", Category: "SHOES", Rarity: domain.RarityRare})
	fields := details(t, err)
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must be one of: CRYPTO MEME TOY PHOTO_FRAME", fields["category"])
}

func TestValidate_Skin(t *testing.T) {
	v := New()

	for _, s := range domain.DefaultSkins() {
		require.NoError(t, v.Validate(s), s.ID)
	}

	fields := details(t, v.Validate(domain.Skin{ID: "neon", Name: "Neon", FrameColor: "green"}))
	assert.Equal(t, "must be a hex color like #8B5E3C", fields["frame_color"])
}

func TestValidate_Theme(t *testing.T) {
	v := New()

	for _, th := range domain.DefaultThemes() {
		require.NoError(t, v.Validate(th), th.ID)
	}

	fields := details(t, v.Validate(domain.Theme{ID: "t", Name: "T", Kind: "VIDEO"}))
	assert.Contains(t, fields["kind"], "GRADIENT")
}

func TestValidate_ReactionTag(t *testing.T) {
	v := New()

	type req struct {
		Type string `json:"type" validate:"required,reaction"`
	}

	require.NoError(t, v.Validate(req{Type: "FIRE"}))
	fields := details(t, v.Validate(req{Type: "LOVE"}))
	assert.Contains(t, fields["type"], "DIAMOND")
}

func TestValidate_Profile(t *testing.T) {
	v := New()

	require.NoError(t, v.Validate(domain.DeviceProfile("device-abc")))

	fields := details(t, v.Validate(domain.Profile{ID: "u1", Handle: "h", AvatarURL: "not a url"}))
	assert.Equal(t, "must be a valid URL", fields["avatar_url"])
}
