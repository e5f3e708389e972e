package color

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexColor = regexp.MustCompile(`^#[0-9A-F]{6}$`)

func TestForOwner(t *testing.T) {
	a := ForOwner("user-1")
	assert.Regexp(t, hexColor, a)
	assert.Equal(t, a, ForOwner("user-1"))
	assert.Regexp(t, hexColor, ForOwner(""))
}

func TestHSLToRGB(t *testing.T) {
	tests := []struct {
		name    string
		h, s, l float64
		r, g, b uint8
	}{
		{"gray", 0, 0, 0.5, 127, 127, 127},
		{"red", 0, 1, 0.5, 255, 0, 0},
		{"green", 120, 1, 0.5, 0, 255, 0},
		{"blue", 240, 1, 0.5, 0, 0, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := hslToRGB(tt.h, tt.s, tt.l)
			assert.Equal(t, []uint8{tt.r, tt.g, tt.b}, []uint8{r, g, b})
		})
	}
}
