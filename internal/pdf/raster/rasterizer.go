// Package raster renders signature and mark content into fixed-size images
// that the composer embeds into documents.
//
// Every raster is drawn at a fixed oversampling factor relative to the field
// box in points, so the embedding resolution does not depend on the pixel
// density of whatever screen produced the input.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const (
	DefaultOversample     = 4.0
	DefaultPadding        = 4.0
	DefaultMaxUploadBytes = 2 * 1024 * 1024
	DefaultMaxDimension   = 1200
)

// Options configures a Rasterizer
type Options struct {
	Oversample     float64
	Padding        float64
	MaxUploadBytes int64
	MaxDimension   int
}

// DefaultOptions returns the standard rendering options
func DefaultOptions() Options {
	return Options{
		Oversample:     DefaultOversample,
		Padding:        DefaultPadding,
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxDimension:   DefaultMaxDimension,
	}
}

// Raster is a rendered image ready for embedding
type Raster struct {
	Image    *image.NRGBA
	PNG      []byte
	FontSize int // points; zero for non-text rasters
}

// Width returns the pixel width
func (r *Raster) Width() int { return r.Image.Bounds().Dx() }

// Height returns the pixel height
func (r *Raster) Height() int { return r.Image.Bounds().Dy() }

// Rasterizer renders typed, drawn and uploaded signatures and form marks
type Rasterizer struct {
	opts  Options
	fonts *FontRegistry
}

// New creates a Rasterizer, filling unset options with defaults
func New(opts Options) *Rasterizer {
	def := DefaultOptions()
	if opts.Oversample <= 0 {
		opts.Oversample = def.Oversample
	}
	if opts.Padding < 0 {
		opts.Padding = def.Padding
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = def.MaxUploadBytes
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	return &Rasterizer{opts: opts, fonts: NewFontRegistry()}
}

// Options returns the effective options
func (r *Rasterizer) Options() Options {
	return r.opts
}

// Measurer returns the oversampled measurer for a family. Sizes passed to it
// are in points.
func (r *Rasterizer) Measurer(family, fallback string) (Measurer, error) {
	f, err := r.fonts.Font(family, fallback)
	if err != nil {
		return nil, err
	}
	return scaledMeasurer{inner: FaceMeasurer{Font: f}, factor: r.opts.Oversample}, nil
}

// FitSize returns the auto-fit size for text in a box of boxW x boxH points
func (r *Rasterizer) FitSize(text, family string, boxW, boxH float64) (int, error) {
	m, err := r.Measurer(family, DefaultSignatureFamily)
	if err != nil {
		return 0, err
	}
	return FitFontSize(m, text, boxW, boxH, r.opts.Padding)
}

// RenderTypedSignature draws text in a signature font, auto-fitted and
// centered in a box of boxW x boxH points
func (r *Rasterizer) RenderTypedSignature(text, family, ink string, boxW, boxH float64) (*Raster, error) {
	return r.renderText(text, family, DefaultSignatureFamily, ink, DefaultInk, boxW, boxH)
}

// RenderText draws an ordinary typed value, auto-fitted and centered
func (r *Rasterizer) RenderText(text, ink string, boxW, boxH float64) (*Raster, error) {
	return r.renderText(text, TextFamily, TextFamily, ink, "#000000", boxW, boxH)
}

func (r *Rasterizer) renderText(text, family, fallback, ink, defaultInk string, boxW, boxH float64) (*Raster, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("nothing to render: text is empty")
	}
	if boxW <= 0 || boxH <= 0 {
		return nil, fmt.Errorf("invalid box %.2fx%.2f", boxW, boxH)
	}
	c, err := ParseColor(ink, defaultInk)
	if err != nil {
		return nil, err
	}
	f, err := r.fonts.Font(family, fallback)
	if err != nil {
		return nil, err
	}

	k := r.opts.Oversample
	m := scaledMeasurer{inner: FaceMeasurer{Font: f}, factor: k}
	size, err := FitFontSize(m, text, boxW, boxH, r.opts.Padding)
	if err != nil {
		return nil, err
	}

	face, err := NewFace(f, float64(size)*k)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	w, h := r.canvasSize(boxW, boxH)
	dc := gg.NewContext(w, h)
	dc.SetFontFace(face)
	dc.SetColor(c)

	tw, th := measureFace(face, text)
	ascent := toFloat(face.Metrics().Ascent)
	x := (float64(w) - tw) / 2
	y := (float64(h)-th)/2 + ascent
	dc.DrawString(text, x, y)

	out, err := encode(dc.Image())
	if err != nil {
		return nil, err
	}
	out.FontSize = size
	return out, nil
}

// RenderCheckmark draws a checkmark glyph scaled to the box
func (r *Rasterizer) RenderCheckmark(ink string, boxW, boxH float64) (*Raster, error) {
	c, err := ParseColor(ink, "#000000")
	if err != nil {
		return nil, err
	}
	w, h := r.canvasSize(boxW, boxH)
	dc := gg.NewContext(w, h)

	side := math.Min(float64(w), float64(h))
	ox := (float64(w) - side) / 2
	oy := (float64(h) - side) / 2
	dc.SetColor(c)
	dc.SetLineWidth(side * 0.12)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.MoveTo(ox+side*0.18, oy+side*0.55)
	dc.LineTo(ox+side*0.42, oy+side*0.78)
	dc.LineTo(ox+side*0.84, oy+side*0.24)
	dc.Stroke()

	return encode(dc.Image())
}

// RenderRadio draws a bordered circle with a filled inner dot, both sized
// proportionally to the box
func (r *Rasterizer) RenderRadio(ink string, boxW, boxH float64) (*Raster, error) {
	c, err := ParseColor(ink, "#000000")
	if err != nil {
		return nil, err
	}
	w, h := r.canvasSize(boxW, boxH)
	dc := gg.NewContext(w, h)

	side := math.Min(float64(w), float64(h))
	border := math.Max(side*0.08, 1)
	radius := side/2 - border/2
	cx, cy := float64(w)/2, float64(h)/2

	dc.SetColor(c)
	dc.SetLineWidth(border)
	dc.DrawCircle(cx, cy, radius)
	dc.Stroke()
	dc.DrawCircle(cx, cy, radius*0.5)
	dc.Fill()

	return encode(dc.Image())
}

func (r *Rasterizer) canvasSize(boxW, boxH float64) (int, int) {
	w := int(math.Ceil(boxW * r.opts.Oversample))
	h := int(math.Ceil(boxH * r.opts.Oversample))
	return max(w, 1), max(h, 1)
}

func encode(img image.Image) (*Raster, error) {
	nrgba := imaging.Clone(img)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, nrgba, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode raster: %w", err)
	}
	return &Raster{Image: nrgba, PNG: buf.Bytes()}, nil
}

// opaqueBounds returns the tight bounding box of pixels with non-zero alpha
func opaqueBounds(img image.Image) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0 {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}
