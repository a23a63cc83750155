package style

import (
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an RGB colour with alpha. The zero value means "not painted".
type Color struct {
	colorful.Color
	A float64
}

// ParseColor parses "#rgb", "#rrggbb", "rgb(r,g,b)" or "rgba(r,g,b,a)".
// An empty string yields the zero Color.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Color{}, nil
	}

	if strings.HasPrefix(s, "#") {
		c, err := colorful.Hex(s)
		if err != nil {
			return Color{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
		}
		return Color{Color: c, A: 1}, nil
	}

	compact := strings.ReplaceAll(strings.ToLower(s), " ", "")
	var r, g, b uint8
	a := 1.0
	switch {
	case strings.HasPrefix(compact, "rgba("):
		if _, err := fmt.Sscanf(compact, "rgba(%d,%d,%d,%g)", &r, &g, &b, &a); err != nil {
			return Color{}, fmt.Errorf("invalid rgba colour %q: %w", s, err)
		}
	case strings.HasPrefix(compact, "rgb("):
		if _, err := fmt.Sscanf(compact, "rgb(%d,%d,%d)", &r, &g, &b); err != nil {
			return Color{}, fmt.Errorf("invalid rgb colour %q: %w", s, err)
		}
	default:
		return Color{}, fmt.Errorf("unsupported colour %q", s)
	}
	if a < 0 || a > 1 {
		return Color{}, fmt.Errorf("alpha out of range in %q", s)
	}

	return Color{
		Color: colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255},
		A:     a,
	}, nil
}

// MustParseColor is ParseColor for compile-time constants.
func MustParseColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// IsZero reports whether the colour is unset or fully transparent.
func (c Color) IsZero() bool {
	return c.A == 0
}

// NRGBA converts the colour for rasterisation.
func (c Color) NRGBA() color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(c.A * 255))}
}

// String renders the colour in the same notation the configuration accepts.
func (c Color) String() string {
	if c.IsZero() {
		return ""
	}
	if c.A >= 1 {
		return c.Hex()
	}
	r, g, b := c.RGB255()
	return fmt.Sprintf("rgba(%d,%d,%d,%g)", r, g, b, c.A)
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}
