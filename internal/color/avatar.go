// Package color derives placeholder colors for owners without an avatar.
package color

import (
	"fmt"
	"hash/fnv"
)

const (
	saturation = 0.4
	lightness  = 0.65
)

// ForOwner returns a stable "#RRGGBB" color for a profile id. The same id
// always maps to the same hue; saturation and lightness are fixed.
func ForOwner(ownerID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerID))
	hue := float64(h.Sum32() % 360)

	r, g, b := hslToRGB(hue, saturation, lightness)
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// hslToRGB converts hue in degrees and s, l in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	h /= 360.0

	var r1, g1, b1 float64

	if s == 0 {
		r1, g1, b1 = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q

		r1 = hueToRGB(p, q, h+1.0/3.0)
		g1 = hueToRGB(p, q, h)
		b1 = hueToRGB(p, q, h-1.0/3.0)
	}

	r = uint8(r1 * 255)
	g = uint8(g1 * 255)
	b = uint8(b1 * 255)
	return
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
