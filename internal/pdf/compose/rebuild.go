package compose

import (
	"bytes"
	"context"
	"fmt"

	"codeberg.org/go-pdf/fpdf"
)

// baselineRatio places the vector text baseline inside its line box
const baselineRatio = 0.78

func fpdfImageType(format string) string {
	if format == "jpeg" {
		return "JPG"
	}
	return "PNG"
}

// writeRaster builds a new document with one page per bitmap, each bitmap
// drawn as the full-page background and the stamps drawn on top. fpdf uses a
// top-left origin, so every stamp is flipped back from PDF space.
func writeRaster(ctx context.Context, backgrounds []Background, stamps []Stamp) ([]byte, []Rendered, error) {
	pdf := fpdf.New("P", "pt", "", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	byPage := make(map[int][]Stamp)
	for _, st := range stamps {
		byPage[st.Page] = append(byPage[st.Page], st)
	}

	rendered := make([]Rendered, 0, len(stamps))
	for _, bg := range backgrounds {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		w, h := bg.Size.Width, bg.Size.Height
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})

		name := fmt.Sprintf("page-%d", bg.Page)
		opts := fpdf.ImageOptions{ImageType: fpdfImageType(bg.Format)}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(bg.Data))
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")

		for i, st := range byPage[bg.Page] {
			top := h - (st.Rect.Y + st.Rect.Height)

			switch st.Kind {
			case StampImage:
				stampName := fmt.Sprintf("stamp-%d-%d", bg.Page, i)
				stampOpts := fpdf.ImageOptions{ImageType: "PNG"}
				pdf.RegisterImageOptionsReader(stampName, stampOpts, bytes.NewReader(st.PNG))
				pdf.ImageOptions(stampName, st.Rect.X, top, st.Rect.Width, st.Rect.Height, false, stampOpts, 0, "")
			case StampText:
				pdf.SetFont(vectorFont, "", float64(st.FontSize))
				pdf.SetTextColor(int(st.Color.R), int(st.Color.G), int(st.Color.B))
				pdf.Text(st.Rect.X, top+st.Rect.Height*baselineRatio, st.Text)
			default:
				return nil, nil, fmt.Errorf("field %s: unknown stamp kind %d", st.FieldID, st.Kind)
			}

			rendered = append(rendered, Rendered{
				FieldID: st.FieldID,
				Page:    st.Page,
				X:       st.Rect.X,
				Y:       h - (top + st.Rect.Height),
				Width:   st.Rect.Width,
				Height:  st.Rect.Height,
			})
		}

		if err := pdf.Error(); err != nil {
			return nil, nil, fmt.Errorf("failed to rebuild page %d: %w", bg.Page, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, nil, fmt.Errorf("failed to write rebuilt document: %w", err)
	}
	return buf.Bytes(), rendered, nil
}
