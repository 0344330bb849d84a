package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/geometry"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
)

// StampKind distinguishes embedded images from vector text
type StampKind int

const (
	StampImage StampKind = iota + 1
	StampText
)

// vectorFont is the core font used when a placement degrades to vector text
const vectorFont = "Helvetica"

// Stamp is one placement ready to be drawn, in PDF space (bottom-left
// origin, points). Both composition paths draw the same stamps.
type Stamp struct {
	FieldID string
	Page    int
	Box     form.Rect // field box
	Rect    form.Rect // area actually drawn
	Kind    StampKind

	// image stamps
	PNG         []byte
	PixelWidth  int
	PixelHeight int

	// text stamps
	Text     string
	FontSize int
	Color    color.NRGBA

	// Degraded is set when rasterizing failed and vector text replaced it
	Degraded bool
}

// Stamp renders placement p for field f into box. Only the box size matters
// for rendering; the position is carried through to the stamp.
func (c *Composer) Stamp(t *form.Template, f form.Field, p form.Placement, box form.Rect) (Stamp, error) {
	st := Stamp{FieldID: f.ID, Page: f.Page, Box: box}

	var (
		out      *raster.Raster
		err      error
		fallback string
		family   = raster.TextFamily
		ink      = p.Color
	)
	switch p.Kind {
	case form.PlacementText:
		fallback = p.Text
		out, err = c.raster.RenderText(p.Text, p.Color, box.Width, box.Height)
	case form.PlacementSignatureText:
		fallback = p.Text
		family = p.FontFamily
		out, err = c.raster.RenderTypedSignature(p.Text, p.FontFamily, p.Color, box.Width, box.Height)
	case form.PlacementCheckmark:
		fallback = "X"
		out, err = c.raster.RenderCheckmark(p.Color, box.Width, box.Height)
	case form.PlacementRadioSelected:
		fallback = "X"
		if gc := t.GroupColor(f.GroupID); gc != "" {
			ink = gc
		}
		out, err = c.raster.RenderRadio(ink, box.Width, box.Height)
	case form.PlacementSignatureImage:
		return c.imageStamp(st, p.Image)
	default:
		return Stamp{}, signerr.New(signerr.KindRenderFailure, fmt.Sprintf("unsupported placement kind %s", p.Kind)).
			WithField(f.ID)
	}

	if err != nil {
		c.logger.Warn("raster rendering failed, using vector text", "field", f.ID, "kind", p.Kind, "err", err)
		return c.textStamp(st, fallback, family, ink), nil
	}

	st.Kind = StampImage
	st.PNG = out.PNG
	st.PixelWidth = out.Width()
	st.PixelHeight = out.Height()
	st.FontSize = out.FontSize
	st.Rect = geometry.Fit(box, float64(st.PixelWidth), float64(st.PixelHeight))
	return st, nil
}

func (c *Composer) imageStamp(st Stamp, data []byte) (Stamp, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Stamp{}, signerr.Wrap(signerr.KindRenderFailure, err, "signature image cannot be decoded").
			WithField(st.FieldID)
	}
	if format != "png" {
		return Stamp{}, signerr.New(signerr.KindRenderFailure, fmt.Sprintf("signature image is %s, expected png", format)).
			WithField(st.FieldID)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Stamp{}, signerr.New(signerr.KindRenderFailure, "signature image is empty").WithField(st.FieldID)
	}
	st.Kind = StampImage
	st.PNG = data
	st.PixelWidth = cfg.Width
	st.PixelHeight = cfg.Height
	st.Rect = geometry.Fit(st.Box, float64(cfg.Width), float64(cfg.Height))
	return st, nil
}

// textStamp lays out vector text with the auto-fit size, left aligned inside
// the padding and vertically centered
func (c *Composer) textStamp(st Stamp, text, family, ink string) Stamp {
	size, err := c.raster.FitSize(text, family, st.Box.Width, st.Box.Height)
	if err != nil {
		size = raster.MinFontSize
	}
	col, err := raster.ParseColor(ink, "#000000")
	if err != nil {
		col = color.NRGBA{A: 255}
	}

	pad := c.raster.Options().Padding / 2
	h := float64(size)
	st.Kind = StampText
	st.Text = text
	st.FontSize = size
	st.Color = col
	st.Degraded = true
	st.Rect = form.Rect{
		X:      st.Box.X + pad,
		Y:      st.Box.Y + (st.Box.Height-h)/2,
		Width:  st.Box.Width - 2*pad,
		Height: h,
	}
	return st
}
