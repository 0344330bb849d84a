package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
)

// linearMeasurer makes width and height proportional to size so expected
// fit results can be computed by hand
type linearMeasurer struct {
	perChar float64
	lineH   float64
	calls   int
}

func (m *linearMeasurer) Measure(text string, size float64) (float64, float64, error) {
	m.calls++
	return float64(len(text)) * m.perChar * size, m.lineH * size, nil
}

func TestFitFontSize_Maximal(t *testing.T) {
	r := New(Options{})
	m, err := r.Measurer("Go Italic", DefaultSignatureFamily)
	require.NoError(t, err)

	boxes := []struct{ w, h float64 }{
		{200, 40}, {120, 30}, {300, 80}, {60, 60}, {400, 20},
	}
	for _, text := range []string{"Ada Lovelace", "J. R.", "Maximilian Alexander Featherstonehaugh"} {
		for _, box := range boxes {
			size, err := FitFontSize(m, text, box.w, box.h, DefaultPadding)
			require.NoError(t, err)

			fits, err := Fits(m, text, size, box.w, box.h, DefaultPadding)
			require.NoError(t, err)
			if !fits {
				// only allowed when nothing at all fits
				assert.Equal(t, MinFontSize, size, "%q in %vx%v", text, box.w, box.h)
				continue
			}
			if size+1 <= int(box.h-DefaultPadding) {
				next, err := Fits(m, text, size+1, box.w, box.h, DefaultPadding)
				require.NoError(t, err)
				assert.False(t, next, "%q in %vx%v: size %d is not maximal", text, box.w, box.h, size)
			}

			again, err := FitFontSize(m, text, box.w, box.h, DefaultPadding)
			require.NoError(t, err)
			assert.Equal(t, size, again, "fit must be deterministic")
		}
	}
}

func TestFitFontSize_Linear(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		boxW, boxH float64
		want       int
	}{
		// height bound: 1.2*s <= 36 -> 30
		{name: "height bound", text: "ab", boxW: 1000, boxH: 40, want: 30},
		// width bound: 10*0.5*s <= 96 -> 19
		{name: "width bound", text: "abcdefghij", boxW: 100, boxH: 100, want: 19},
		{name: "nothing fits", text: "a very long signature line", boxW: 30, boxH: 40, want: MinFontSize},
		{name: "box shorter than minimum", text: "a", boxW: 100, boxH: 10, want: MinFontSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &linearMeasurer{perChar: 0.5, lineH: 1.2}
			got, err := FitFontSize(m, tt.text, tt.boxW, tt.boxH, 4)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFitFontSize_LogarithmicMeasurements(t *testing.T) {
	m := &linearMeasurer{perChar: 0.5, lineH: 1.2}
	_, err := FitFontSize(m, "x", 10000, 1004, 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, m.calls, 11)
}

func TestRenderTypedSignature(t *testing.T) {
	r := New(Options{})

	out, err := r.RenderTypedSignature("Ada Lovelace", "Go Bold Italic", "#112233", 200, 50)
	require.NoError(t, err)
	assert.Equal(t, 800, out.Width())
	assert.Equal(t, 200, out.Height())
	assert.GreaterOrEqual(t, out.FontSize, MinFontSize)

	fit, err := r.FitSize("Ada Lovelace", "Go Bold Italic", 200, 50)
	require.NoError(t, err)
	assert.Equal(t, fit, out.FontSize, "preview and render must agree")

	decoded, err := png.Decode(bytes.NewReader(out.PNG))
	require.NoError(t, err)
	bounds, ok := opaqueBounds(decoded)
	require.True(t, ok, "text must leave ink on the raster")

	// centered horizontally within a couple of pixels of slack
	left := bounds.Min.X
	right := out.Width() - bounds.Max.X
	assert.InDelta(t, left, right, float64(out.Width())*0.1)
}

func TestRenderTypedSignature_UnknownFamilyFallsBack(t *testing.T) {
	r := New(Options{})
	a, err := r.RenderTypedSignature("Ada", "Comic Sans", "", 100, 40)
	require.NoError(t, err)
	b, err := r.RenderTypedSignature("Ada", DefaultSignatureFamily, "", 100, 40)
	require.NoError(t, err)
	assert.Equal(t, a.PNG, b.PNG)
}

func TestRenderTypedSignature_Errors(t *testing.T) {
	r := New(Options{})

	_, err := r.RenderTypedSignature("   ", "", "", 100, 40)
	assert.Error(t, err)

	_, err = r.RenderTypedSignature("Ada", "", "not-a-color", 100, 40)
	assert.Error(t, err)

	_, err = r.RenderTypedSignature("Ada", "", "", 0, 40)
	assert.Error(t, err)
}

func TestRenderMarks(t *testing.T) {
	r := New(Options{Oversample: 2})

	check, err := r.RenderCheckmark("#000000", 20, 20)
	require.NoError(t, err)
	assert.Equal(t, 40, check.Width())
	_, ok := opaqueBounds(check.Image)
	assert.True(t, ok)

	radio, err := r.RenderRadio("#ff0000", 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 40, radio.Width())
	assert.Equal(t, 20, radio.Height())

	// center of the inner dot carries the group color
	c := radio.Image.NRGBAAt(20, 10)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(0), c.G)
	assert.Equal(t, uint8(255), c.A)

	// corners stay transparent
	assert.Equal(t, uint8(0), radio.Image.NRGBAAt(0, 0).A)
}

func TestSurface_StrokesAndUndo(t *testing.T) {
	s, err := NewSurface(100, 50, "", 4)
	require.NoError(t, err)

	require.NoError(t, s.BeginStroke(Point{X: 10, Y: 10, Seq: 1}))
	require.NoError(t, s.AddPoint(Point{X: 30, Y: 20, Seq: 2}))
	require.NoError(t, s.EndStroke())

	afterFirst := s.Snapshot()

	require.NoError(t, s.BeginStroke(Point{X: 60, Y: 40, Seq: 3}))
	require.NoError(t, s.AddPoint(Point{X: 90, Y: 40, Seq: 4}))
	require.NoError(t, s.EndStroke())
	assert.Len(t, s.Strokes(), 2)

	assert.True(t, s.Undo())
	assert.Len(t, s.Strokes(), 1)
	assert.Equal(t, afterFirst.Pix, s.Snapshot().Pix)

	assert.True(t, s.Undo())
	assert.Empty(t, s.Strokes())
	assert.False(t, s.Undo())

	_, err = s.Trim()
	assert.True(t, errors.Is(err, signerr.ErrValidation))
}

func TestSurface_RejectsOutOfOrderSamples(t *testing.T) {
	s, err := NewSurface(50, 50, "", 2)
	require.NoError(t, err)

	require.NoError(t, s.BeginStroke(Point{X: 1, Y: 1, Seq: 5}))
	assert.Error(t, s.AddPoint(Point{X: 2, Y: 2, Seq: 5}))
	assert.Error(t, s.AddPoint(Point{X: 2, Y: 2, Seq: 4}))
	assert.Error(t, s.BeginStroke(Point{X: 1, Y: 1, Seq: 6}))
	require.NoError(t, s.EndStroke())
	assert.Error(t, s.EndStroke())
	assert.Error(t, s.AddPoint(Point{X: 3, Y: 3, Seq: 9}))
}

func TestSurface_Capture(t *testing.T) {
	s, err := NewSurface(100, 100, "#000", 3)
	require.NoError(t, err)

	events := make(chan PointerEvent, 16)
	events <- PointerEvent{Kind: EventDown, Point: Point{X: 10, Y: 10, Seq: 1}}
	events <- PointerEvent{Kind: EventMove, Point: Point{X: 20, Y: 20, Seq: 2}}
	events <- PointerEvent{Kind: EventUp}
	events <- PointerEvent{Kind: EventDown, Point: Point{X: 50, Y: 50, Seq: 3}}
	events <- PointerEvent{Kind: EventMove, Point: Point{X: 80, Y: 90, Seq: 4}}
	events <- PointerEvent{Kind: EventUndo}
	close(events)

	require.NoError(t, s.Capture(context.Background(), events))

	strokes := s.Strokes()
	require.Len(t, strokes, 1)
	assert.Equal(t, int64(2), strokes[0].Points[1].Seq)

	trimmed, err := s.Trim()
	require.NoError(t, err)
	// only the first stroke survives, so the content ends well before x=50
	assert.Less(t, trimmed.Bounds().Dx(), 30)
}

func TestSurface_CaptureCancelled(t *testing.T) {
	s, err := NewSurface(10, 10, "", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Capture(ctx, make(chan PointerEvent))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderDrawnSignature_Trims(t *testing.T) {
	r := New(Options{})
	out, err := r.RenderStrokes(400, 200, "", 4, []Stroke{
		{Points: []Point{{X: 100, Y: 100, Seq: 1}, {X: 200, Y: 100, Seq: 2}}},
	})
	require.NoError(t, err)

	// 100px line plus round caps, 4px tall
	assert.InDelta(t, 104, out.Width(), 2)
	assert.InDelta(t, 4, out.Height(), 2)
}

func TestRenderDrawnSignature_Blank(t *testing.T) {
	r := New(Options{})
	_, err := r.RenderStrokes(100, 100, "", 2, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing drawn")
}

func encodeTestImage(t *testing.T, w, h int, asJPEG bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if asJPEG {
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	} else {
		require.NoError(t, png.Encode(&buf, img))
	}
	return buf.Bytes()
}

func TestNormalizeUploadedImage(t *testing.T) {
	r := New(Options{MaxDimension: 100})

	t.Run("downscales keeping aspect ratio", func(t *testing.T) {
		out, err := r.NormalizeUploadedImage(encodeTestImage(t, 400, 200, true))
		require.NoError(t, err)
		assert.Equal(t, 100, out.Width())
		assert.Equal(t, 50, out.Height())

		_, format, err := image.Decode(bytes.NewReader(out.PNG))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
	})

	t.Run("small images keep their size", func(t *testing.T) {
		out, err := r.NormalizeUploadedImage(encodeTestImage(t, 40, 30, false))
		require.NoError(t, err)
		assert.Equal(t, 40, out.Width())
		assert.Equal(t, 30, out.Height())
	})

	t.Run("rejects non images", func(t *testing.T) {
		_, err := r.NormalizeUploadedImage([]byte("%PDF-1.7 not an image"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, signerr.ErrValidation))
	})

	t.Run("rejects oversized uploads", func(t *testing.T) {
		small := New(Options{MaxUploadBytes: 16})
		_, err := small.NormalizeUploadedImage(encodeTestImage(t, 40, 30, false))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "limit")
	})

	t.Run("rejects empty uploads", func(t *testing.T) {
		_, err := r.NormalizeUploadedImage(nil)
		assert.Error(t, err)
	})
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("1a237e", "")
	require.NoError(t, err)
	assert.Equal(t, "#1a237e", HexColor(c))

	c, err = ParseColor("", "#fff")
	require.NoError(t, err)
	assert.Equal(t, "#ffffff", HexColor(c))

	c, err = ParseColor(" #1A237E ", "")
	require.NoError(t, err)
	assert.Equal(t, "#1a237e", HexColor(c))

	for _, bad := range []string{"#12345", "12345", "#1234567", "#12g456", "#ff", "#", "navy"} {
		_, err = ParseColor(bad, "")
		assert.Error(t, err, bad)
	}
}

func TestFamilies(t *testing.T) {
	families := Families()
	assert.Contains(t, families, DefaultSignatureFamily)
	assert.Contains(t, families, TextFamily)
}
