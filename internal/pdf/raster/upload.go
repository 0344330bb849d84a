package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
)

// NormalizeUploadedImage checks an uploaded signature image against the size
// ceiling and content type, downscales it to the maximum dimension keeping
// its aspect ratio, and re-encodes it as PNG.
func (r *Rasterizer) NormalizeUploadedImage(data []byte) (*Raster, error) {
	if len(data) == 0 {
		return nil, signerr.Rejection("uploaded image is empty")
	}
	if int64(len(data)) > r.opts.MaxUploadBytes {
		return nil, signerr.Rejection(fmt.Sprintf("uploaded image is %d bytes, the limit is %d",
			len(data), r.opts.MaxUploadBytes))
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, signerr.Rejection(fmt.Sprintf("uploaded file is %s, not an image", contentType))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, signerr.Rejection(fmt.Sprintf("cannot decode %s image: %v", contentType, err))
	}

	b := img.Bounds()
	limit := r.opts.MaxDimension
	if b.Dx() > limit || b.Dy() > limit {
		img = imaging.Fit(img, limit, limit, imaging.Lanczos)
	}

	out, err := encode(img)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode %s upload: %w", format, err)
	}
	return out, nil
}
