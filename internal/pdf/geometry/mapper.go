// Package geometry converts field rectangles between the normalized
// page-fraction space used by layouts, absolute page points at scale 1, and
// the bottom-left origin PDF content space.
//
// Nothing in this package takes a display zoom into account when producing
// composition geometry. Zoom is only understood by the display helpers, which
// exist for the UI boundary.
package geometry

import (
	"fmt"
	"math"
	"sort"

	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
)

// PageSize is the size of a page at scale 1, in points
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive and finite
func (p PageSize) Valid() bool {
	return p.Width > 0 && p.Height > 0 && !math.IsInf(p.Width, 0) && !math.IsInf(p.Height, 0)
}

// ToAbsolute returns the field rectangle in page points. Normalized fields
// are scaled by the page base size; absolute fields pass through unchanged.
func ToAbsolute(field form.Field, page PageSize) (form.Rect, error) {
	if field.Rect != nil {
		return *field.Rect, nil
	}
	if field.Norm == nil {
		return form.Rect{}, fmt.Errorf("field %s has no geometry", field.ID)
	}
	if !page.Valid() {
		return form.Rect{}, fmt.Errorf("field %s: invalid page size %.2fx%.2f", field.ID, page.Width, page.Height)
	}
	n := field.Norm
	return form.Rect{
		X:      n.X * page.Width,
		Y:      n.Y * page.Height,
		Width:  n.Width * page.Width,
		Height: n.Height * page.Height,
	}, nil
}

// ToPDF flips a top-left origin rectangle into PDF content space, whose
// origin is the bottom-left corner of the page
func ToPDF(r form.Rect, pageHeight float64) form.Rect {
	return form.Rect{
		X:      r.X,
		Y:      pageHeight - (r.Y + r.Height),
		Width:  r.Width,
		Height: r.Height,
	}
}

// Normalize expresses an absolute rectangle as fractions of the page
func Normalize(r form.Rect, page PageSize) (form.Rect, error) {
	if !page.Valid() {
		return form.Rect{}, fmt.Errorf("invalid page size %.2fx%.2f", page.Width, page.Height)
	}
	return form.Rect{
		X:      r.X / page.Width,
		Y:      r.Y / page.Height,
		Width:  r.Width / page.Width,
		Height: r.Height / page.Height,
	}, nil
}

// ToDisplay scales an absolute rectangle by a display zoom
func ToDisplay(r form.Rect, zoom float64) form.Rect {
	return form.Rect{X: r.X * zoom, Y: r.Y * zoom, Width: r.Width * zoom, Height: r.Height * zoom}
}

// FromDisplay converts a zoomed display rectangle back to page points
func FromDisplay(r form.Rect, zoom float64) (form.Rect, error) {
	if zoom <= 0 {
		return form.Rect{}, fmt.Errorf("zoom must be positive, got %v", zoom)
	}
	return ToDisplay(r, 1/zoom), nil
}

// Fit returns the largest rectangle with the given aspect ratio that fits
// inside box, centered in it
func Fit(box form.Rect, contentWidth, contentHeight float64) form.Rect {
	if contentWidth <= 0 || contentHeight <= 0 {
		return box
	}
	scale := math.Min(box.Width/contentWidth, box.Height/contentHeight)
	w := contentWidth * scale
	h := contentHeight * scale
	return form.Rect{
		X:      box.X + (box.Width-w)/2,
		Y:      box.Y + (box.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

// Placed is a field resolved to absolute page geometry
type Placed struct {
	Field    form.Field
	Absolute form.Rect
	PDF      form.Rect
	Page     PageSize
}

// Inconsistency records a field that could not be resolved
type Inconsistency struct {
	FieldID string `json:"field_id"`
	Page    int    `json:"page"`
	Reason  string `json:"reason"`
}

// Mapper resolves fields against a table of page base sizes
type Mapper struct {
	pages map[int]PageSize
}

// NewMapper creates a mapper for the given 1-based page sizes
func NewMapper(pages []PageSize) *Mapper {
	m := &Mapper{pages: make(map[int]PageSize, len(pages))}
	for i, p := range pages {
		m.pages[i+1] = p
	}
	return m
}

// PageCount returns the number of known pages
func (m *Mapper) PageCount() int {
	return len(m.pages)
}

// Page returns the base size of a 1-based page
func (m *Mapper) Page(page int) (PageSize, bool) {
	p, ok := m.pages[page]
	return p, ok
}

// Resolve maps every field to page points and PDF space. Fields referring to
// a page the document does not have are skipped and reported, never clamped.
// The returned slice is ordered page-major, then by the input field order.
func (m *Mapper) Resolve(fields []form.Field) ([]Placed, []Inconsistency) {
	placed := make([]Placed, 0, len(fields))
	var bad []Inconsistency

	for _, f := range fields {
		page, ok := m.pages[f.Page]
		if !ok {
			bad = append(bad, Inconsistency{
				FieldID: f.ID,
				Page:    f.Page,
				Reason:  fmt.Sprintf("page %d does not exist (document has %d)", f.Page, len(m.pages)),
			})
			continue
		}
		abs, err := ToAbsolute(f, page)
		if err != nil {
			bad = append(bad, Inconsistency{FieldID: f.ID, Page: f.Page, Reason: err.Error()})
			continue
		}
		placed = append(placed, Placed{
			Field:    f,
			Absolute: abs,
			PDF:      ToPDF(abs, page.Height),
			Page:     page,
		})
	}

	sort.SliceStable(placed, func(i, j int) bool {
		return placed[i].Field.Page < placed[j].Field.Page
	})
	return placed, bad
}
