package compose

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
)

// imageDescription positions an image watermark with its lower-left corner
// at (x, y) and an absolute scale relative to its pixel size
func imageDescription(x, y, scale float64) string {
	return fmt.Sprintf("pos:bl, off:%.4f %.4f, scale:%.6f abs, rot:0, op:1", x, y, scale)
}

func textDescription(x, y float64, size int, hex string) string {
	return fmt.Sprintf("font:%s, points:%d, pos:bl, off:%.4f %.4f, scale:1 abs, rot:0, op:1, fillc:%s",
		vectorFont, size, x, y, hex)
}

// writeDirect stamps every placement onto the original document as page
// watermarks, leaving the rest of the document untouched
func writeDirect(ctx context.Context, source []byte, stamps []Stamp) ([]byte, []Rendered, error) {
	marks := make(map[int][]*model.Watermark)
	rendered := make([]Rendered, 0, len(stamps))

	for _, st := range stamps {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		var (
			wm  *model.Watermark
			err error
			out Rendered
		)
		switch st.Kind {
		case StampImage:
			scale := st.Rect.Width / float64(st.PixelWidth)
			wm, err = api.ImageWatermarkForReader(bytes.NewReader(st.PNG),
				imageDescription(st.Rect.X, st.Rect.Y, scale), true, false, types.POINTS)
			out = Rendered{
				FieldID: st.FieldID,
				Page:    st.Page,
				X:       st.Rect.X,
				Y:       st.Rect.Y,
				Width:   scale * float64(st.PixelWidth),
				Height:  scale * float64(st.PixelHeight),
			}
		case StampText:
			wm, err = api.TextWatermark(st.Text,
				textDescription(st.Rect.X, st.Rect.Y, st.FontSize, raster.HexColor(st.Color)), true, false, types.POINTS)
			out = renderedFromRect(st)
		default:
			err = fmt.Errorf("unknown stamp kind %d", st.Kind)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: failed to build watermark: %w", st.FieldID, err)
		}

		marks[st.Page] = append(marks[st.Page], wm)
		rendered = append(rendered, out)
	}

	if len(marks) == 0 {
		return append([]byte(nil), source...), rendered, nil
	}

	var buf bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(source), &buf, marks, newConfiguration()); err != nil {
		return nil, nil, fmt.Errorf("failed to stamp document: %w", err)
	}
	return buf.Bytes(), rendered, nil
}

func renderedFromRect(st Stamp) Rendered {
	return Rendered{
		FieldID: st.FieldID,
		Page:    st.Page,
		X:       st.Rect.X,
		Y:       st.Rect.Y,
		Width:   st.Rect.Width,
		Height:  st.Rect.Height,
	}
}
