package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
)

// ErrNothingDrawn is returned when a surface has no inked pixels
var ErrNothingDrawn = signerr.Rejection("nothing drawn")

// Point is one pointer sample. Seq must increase strictly within a stroke.
type Point struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Seq int64   `json:"seq"`
}

// Stroke is an ordered run of samples between pointer down and up
type Stroke struct {
	Points []Point `json:"points"`
}

// EventKind identifies a pointer event
type EventKind int

const (
	EventDown EventKind = iota
	EventMove
	EventUp
	EventUndo
)

// PointerEvent is one input to Capture
type PointerEvent struct {
	Kind  EventKind
	Point Point
}

// Surface is a freehand drawing canvas. Completed strokes are kept in an
// append-only buffer; a snapshot is taken right before each stroke begins so
// Undo can revert the most recent one.
type Surface struct {
	mu        sync.Mutex
	dc        *gg.Context
	ink       color.NRGBA
	lineWidth float64
	strokes   []Stroke
	snapshots []*image.RGBA
	active    *Stroke
}

// NewSurface creates a transparent canvas of width x height pixels
func NewSurface(width, height int, ink string, lineWidth float64) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	c, err := ParseColor(ink, DefaultInk)
	if err != nil {
		return nil, err
	}
	if lineWidth <= 0 {
		lineWidth = 3
	}
	s := &Surface{ink: c, lineWidth: lineWidth}
	s.dc = s.prepare(gg.NewContext(width, height))
	return s, nil
}

func (s *Surface) prepare(dc *gg.Context) *gg.Context {
	dc.SetColor(s.ink)
	dc.SetLineWidth(s.lineWidth)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	return dc
}

// BeginStroke snapshots the canvas and starts a new stroke at p
func (s *Surface) BeginStroke(p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return fmt.Errorf("stroke already in progress")
	}
	s.snapshots = append(s.snapshots, cloneRGBA(s.dc.Image()))
	s.active = &Stroke{Points: []Point{p}}
	return nil
}

// AddPoint extends the active stroke with a line to p
func (s *Surface) AddPoint(p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return fmt.Errorf("no stroke in progress")
	}
	last := s.active.Points[len(s.active.Points)-1]
	if p.Seq <= last.Seq {
		return fmt.Errorf("sample %d is out of order after %d", p.Seq, last.Seq)
	}
	s.active.Points = append(s.active.Points, p)
	s.dc.DrawLine(last.X, last.Y, p.X, p.Y)
	s.dc.Stroke()
	return nil
}

// EndStroke commits the active stroke. A single-sample stroke leaves a dot.
func (s *Surface) EndStroke() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return fmt.Errorf("no stroke in progress")
	}
	if len(s.active.Points) == 1 {
		p := s.active.Points[0]
		s.dc.DrawCircle(p.X, p.Y, s.lineWidth/2)
		s.dc.Fill()
	}
	s.strokes = append(s.strokes, *s.active)
	s.active = nil
	return nil
}

// Undo reverts the most recent stroke, including one still in progress.
// It reports whether anything was undone.
func (s *Surface) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return false
	}
	snap := s.snapshots[len(s.snapshots)-1]
	s.snapshots = s.snapshots[:len(s.snapshots)-1]
	s.dc = s.prepare(gg.NewContextForRGBA(snap))

	if s.active != nil {
		s.active = nil
	} else {
		s.strokes = s.strokes[:len(s.strokes)-1]
	}
	return true
}

// cloneRGBA copies premultiplied pixels without a color model round trip
func cloneRGBA(src image.Image) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// Strokes returns a copy of the committed strokes in drawing order
func (s *Surface) Strokes() []Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Stroke, len(s.strokes))
	for i, st := range s.strokes {
		out[i] = Stroke{Points: append([]Point(nil), st.Points...)}
	}
	return out
}

// Snapshot returns a copy of the current canvas
func (s *Surface) Snapshot() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return imaging.Clone(s.dc.Image())
}

// Trim returns the canvas cropped to the tight bounding box of inked pixels
func (s *Surface) Trim() (*image.NRGBA, error) {
	img := s.Snapshot()
	bounds, ok := opaqueBounds(img)
	if !ok {
		return nil, ErrNothingDrawn
	}
	return imaging.Crop(img, bounds), nil
}

// Capture consumes pointer events until the channel closes or ctx is done.
// Malformed sequences (a move without a down, an out-of-order sample) stop
// the loop with an error; strokes committed so far are kept.
func (s *Surface) Capture(ctx context.Context, events <-chan PointerEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			var err error
			switch ev.Kind {
			case EventDown:
				err = s.BeginStroke(ev.Point)
			case EventMove:
				err = s.AddPoint(ev.Point)
			case EventUp:
				err = s.EndStroke()
			case EventUndo:
				s.Undo()
			default:
				err = fmt.Errorf("unknown pointer event %d", ev.Kind)
			}
			if err != nil {
				return err
			}
		}
	}
}

// Replay draws recorded strokes onto a new surface, the way a client
// submits a drawn signature
func Replay(width, height int, ink string, lineWidth float64, strokes []Stroke) (*Surface, error) {
	s, err := NewSurface(width, height, ink, lineWidth)
	if err != nil {
		return nil, err
	}
	for i, st := range strokes {
		if len(st.Points) == 0 {
			continue
		}
		if err := s.BeginStroke(st.Points[0]); err != nil {
			return nil, err
		}
		for _, p := range st.Points[1:] {
			if err := s.AddPoint(p); err != nil {
				return nil, fmt.Errorf("stroke %d: %w", i, err)
			}
		}
		if err := s.EndStroke(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RenderDrawnSignature trims the surface to its content and encodes it
func (r *Rasterizer) RenderDrawnSignature(s *Surface) (*Raster, error) {
	img, err := s.Trim()
	if err != nil {
		return nil, err
	}
	return encode(img)
}

// RenderStrokes replays recorded strokes and renders the result
func (r *Rasterizer) RenderStrokes(width, height int, ink string, lineWidth float64, strokes []Stroke) (*Raster, error) {
	s, err := Replay(width, height, ink, lineWidth, strokes)
	if err != nil {
		return nil, signerr.Rejection(err.Error())
	}
	return r.RenderDrawnSignature(s)
}
