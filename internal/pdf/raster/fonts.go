package raster

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcapsitalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	// DefaultSignatureFamily is used when a signature names no known family
	DefaultSignatureFamily = "Go Italic"
	// TextFamily renders ordinary typed values
	TextFamily = "Go Regular"
)

var familySources = map[string][]byte{
	"Go Italic":           goitalic.TTF,
	"Go Bold Italic":      gobolditalic.TTF,
	"Go Medium Italic":    gomediumitalic.TTF,
	"Go Smallcaps Italic": gosmallcapsitalic.TTF,
	"Go Mono Italic":      gomonoitalic.TTF,
	"Go Regular":          goregular.TTF,
}

// FontRegistry parses the embedded font families once and hands out faces
type FontRegistry struct {
	once  sync.Once
	fonts map[string]*opentype.Font
	err   error
}

// NewFontRegistry creates a registry; fonts are parsed on first use
func NewFontRegistry() *FontRegistry {
	return &FontRegistry{}
}

func (r *FontRegistry) load() {
	r.fonts = make(map[string]*opentype.Font, len(familySources))
	for name, ttf := range familySources {
		f, err := opentype.Parse(ttf)
		if err != nil {
			r.err = fmt.Errorf("failed to parse font %s: %w", name, err)
			return
		}
		r.fonts[strings.ToLower(name)] = f
	}
}

// Font returns the parsed font for family, falling back to fallback when the
// family is unknown
func (r *FontRegistry) Font(family, fallback string) (*opentype.Font, error) {
	r.once.Do(r.load)
	if r.err != nil {
		return nil, r.err
	}
	if f, ok := r.fonts[strings.ToLower(strings.TrimSpace(family))]; ok {
		return f, nil
	}
	f, ok := r.fonts[strings.ToLower(fallback)]
	if !ok {
		return nil, fmt.Errorf("font family %q is not available", fallback)
	}
	return f, nil
}

// Families lists the available family names
func Families() []string {
	names := make([]string, 0, len(familySources))
	for name := range familySources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Measurer reports the rendered extent of text at a font size
type Measurer interface {
	Measure(text string, size float64) (width, height float64, err error)
}

// FaceMeasurer measures with the same opentype faces used at draw time. At
// 72 DPI one font unit of size equals one pixel.
type FaceMeasurer struct {
	Font *opentype.Font
}

// NewFace creates a face at size with hinting disabled so that advances scale
// linearly with size
func NewFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Measure returns the advance width and the ascent plus descent of text
func (m FaceMeasurer) Measure(text string, size float64) (float64, float64, error) {
	face, err := NewFace(m.Font, size)
	if err != nil {
		return 0, 0, err
	}
	defer face.Close()
	w, h := measureFace(face, text)
	return w, h, nil
}

func measureFace(face font.Face, text string) (float64, float64) {
	adv := font.MeasureString(face, text)
	metrics := face.Metrics()
	return toFloat(adv), toFloat(metrics.Ascent + metrics.Descent)
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// scaledMeasurer measures in an oversampled pixel space and reports the
// result back in points
type scaledMeasurer struct {
	inner  Measurer
	factor float64
}

func (s scaledMeasurer) Measure(text string, size float64) (float64, float64, error) {
	w, h, err := s.inner.Measure(text, size*s.factor)
	if err != nil {
		return 0, 0, err
	}
	return w / s.factor, h / s.factor, nil
}
