package compose

import (
	"fmt"
	"math"
	"strings"
)

// Tolerance bounds how far two renderings of the same field may drift apart
type Tolerance struct {
	Position float64 // points
	Size     float64 // fraction of the larger dimension
}

// DefaultTolerance allows 1pt of positional drift and 2% size difference
var DefaultTolerance = Tolerance{Position: 1, Size: 0.02}

// CheckParity compares the rendered positions of two compositions field by
// field. It fails when a field is missing from either side or drifts beyond
// tol.
func CheckParity(a, b []Rendered, tol Tolerance) error {
	index := make(map[string]Rendered, len(b))
	for _, r := range b {
		index[r.FieldID] = r
	}

	var problems []string
	seen := make(map[string]bool, len(a))
	for _, ra := range a {
		seen[ra.FieldID] = true
		rb, ok := index[ra.FieldID]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: missing from second rendering", ra.FieldID))
			continue
		}
		if ra.Page != rb.Page {
			problems = append(problems, fmt.Sprintf("%s: page %d vs %d", ra.FieldID, ra.Page, rb.Page))
			continue
		}
		if dx, dy := math.Abs(ra.X-rb.X), math.Abs(ra.Y-rb.Y); dx > tol.Position || dy > tol.Position {
			problems = append(problems, fmt.Sprintf("%s: position differs by (%.2f, %.2f)", ra.FieldID, dx, dy))
		}
		if !sizeWithin(ra.Width, rb.Width, tol.Size) || !sizeWithin(ra.Height, rb.Height, tol.Size) {
			problems = append(problems, fmt.Sprintf("%s: size %.2fx%.2f vs %.2fx%.2f",
				ra.FieldID, ra.Width, ra.Height, rb.Width, rb.Height))
		}
	}
	for _, rb := range b {
		if !seen[rb.FieldID] {
			problems = append(problems, fmt.Sprintf("%s: missing from first rendering", rb.FieldID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("renderings differ: %s", strings.Join(problems, "; "))
	}
	return nil
}

func sizeWithin(a, b, frac float64) bool {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return true
	}
	return math.Abs(a-b) <= frac*larger
}
