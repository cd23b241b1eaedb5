package imaging

import (
	"fmt"
	"image"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBAColor represents an RGBA color with 8-bit components including alpha.
//
// The alpha component represents opacity:
//   - 0 = fully transparent
//   - 255 = fully opaque
type RGBAColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees
	S int `json:"s"` // Saturation: 0-100 percent
	L int `json:"l"` // Lightness: 0-100 percent
}

// ColorResult contains a sampled pixel and how the trimmer classifies it.
type ColorResult struct {
	Hex  string    `json:"hex"` // "#RRGGBB" (no alpha)
	RGBA RGBAColor `json:"rgba"`
	HSL  HSLColor  `json:"hsl"`

	// Background is true when the pixel would be removed by trimming with
	// the threshold passed to SampleColor.
	Background bool `json:"background"`
}

// SampleColor extracts the color value at a specific pixel coordinate and
// classifies it against t.
//
// Sampling a corner pixel is the usual way to pick a threshold for an image
// whose border is not white.
func SampleColor(img image.Image, x, y int, t Threshold) (*ColorResult, error) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	r, g, b, a := img.At(x, y).RGBA()
	r8, g8, b8, a8 := uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8)

	c := colorful.Color{R: float64(r8) / 255, G: float64(g8) / 255, B: float64(b8) / 255}
	h, s, l := c.Hsl()

	return &ColorResult{
		Hex:  fmt.Sprintf("#%02X%02X%02X", r8, g8, b8),
		RGBA: RGBAColor{R: r8, G: g8, B: b8, A: a8},
		HSL: HSLColor{
			H: int(math.Round(h)) % 360,
			S: int(math.Round(s * 100)),
			L: int(math.Round(l * 100)),
		},
		Background: t.IsBackground(r8, g8, b8),
	}, nil
}

// ParseThreshold builds a Threshold from a hex color such as "#FAFAFA" or
// "fafafa". Each channel of the color becomes the limit for that channel.
func ParseThreshold(hex string) (Threshold, error) {
	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return Threshold{R: r, G: g, B: b}, nil
}

// Hex formats the threshold as "#RRGGBB".
func (t Threshold) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", t.R, t.G, t.B)
}
