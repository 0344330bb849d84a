package raster

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultInk is the color signatures are drawn in when none is given
const DefaultInk = "#1a237e"

// ParseColor accepts #RGB or #RRGGBB (the leading # is optional) and returns
// an opaque color. An empty string yields fallback.
func ParseColor(s, fallback string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = fallback
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if !isHexColor(s) {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: want #RGB or #RRGGBB", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// isHexColor reports whether s is # followed by exactly 3 or 6 hex digits
func isHexColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// HexColor formats an opaque color as #rrggbb
func HexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
