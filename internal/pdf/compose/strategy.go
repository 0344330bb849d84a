// Package compose produces the final signed document from a template, its
// placements and, when the source cannot be edited, the page bitmaps shown
// to the signer.
package compose

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/geometry"
)

// StrategyKind tags which composition path a Strategy selects
type StrategyKind int

const (
	// StrategyDirect stamps placements onto the parsed source document
	StrategyDirect StrategyKind = iota + 1
	// StrategyRaster rebuilds every page from its display bitmap
	StrategyRaster
)

// String returns a string representation of the StrategyKind
func (k StrategyKind) String() string {
	switch k {
	case StrategyDirect:
		return "direct"
	case StrategyRaster:
		return "raster"
	default:
		return "unknown"
	}
}

// Strategy is the outcome of planning a composition. Exactly one path is
// selected; the fields relevant to the other path are empty.
type Strategy struct {
	Kind  StrategyKind
	Pages []geometry.PageSize

	// direct path
	Source []byte

	// raster path
	ParseErr    error
	Backgrounds []Background
}

// Background is one page bitmap prepared for the raster path
type Background struct {
	Page   int
	Data   []byte
	Format string // png or jpeg
	Size   geometry.PageSize
}

// newConfiguration returns the relaxed pdfcpu configuration used for parsing
// and stamping
func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// parseSource reads and validates source with pdfcpu and returns its page
// sizes in points
func parseSource(source []byte) ([]geometry.PageSize, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("source document is empty")
	}

	ctx, err := api.ReadContext(bytes.NewReader(source), newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to validate document: %w", err)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]geometry.PageSize, len(dims))
	for i, d := range dims {
		pages[i] = geometry.PageSize{Width: d.Width, Height: d.Height}
	}
	return pages, nil
}

// prepareBackgrounds decodes the bitmap headers and derives each page's base
// size. Pages must run from 1 without gaps.
func prepareBackgrounds(images map[int]form.PageImage) ([]Background, []geometry.PageSize, error) {
	if len(images) == 0 {
		return nil, nil, signerr.New(signerr.KindNoPages, "")
	}

	nums := make([]int, 0, len(images))
	for p := range images {
		nums = append(nums, p)
	}
	sort.Ints(nums)

	backgrounds := make([]Background, 0, len(nums))
	sizes := make([]geometry.PageSize, 0, len(nums))
	for i, p := range nums {
		if p != i+1 {
			return nil, nil, signerr.New(signerr.KindNoPages, "").
				WithPage(i + 1).
				WithContext(fmt.Sprintf("no bitmap for page %d", i+1))
		}
		img := images[p]
		if len(img.Data) == 0 {
			return nil, nil, signerr.New(signerr.KindNoPages, "").WithPage(p).
				WithContext("page bitmap is empty")
		}
		scale := img.Scale
		if scale <= 0 {
			scale = 1
		}
		cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
		if err != nil {
			return nil, nil, signerr.Wrap(signerr.KindNoPages, err, "").WithPage(p).
				WithContext("page bitmap cannot be decoded")
		}
		if format != "png" && format != "jpeg" {
			return nil, nil, signerr.New(signerr.KindNoPages, "").WithPage(p).
				WithContext(fmt.Sprintf("page bitmap is %s, expected png or jpeg", format))
		}
		size := geometry.PageSize{
			Width:  float64(cfg.Width) / scale,
			Height: float64(cfg.Height) / scale,
		}
		backgrounds = append(backgrounds, Background{Page: p, Data: img.Data, Format: format, Size: size})
		sizes = append(sizes, size)
	}
	return backgrounds, sizes, nil
}

// Plan selects the composition path. The direct path is chosen whenever the
// source parses; otherwise the page bitmaps are used, and without them
// planning fails with a NoPages error.
func Plan(source []byte, images map[int]form.PageImage) (Strategy, error) {
	pages, err := parseSource(source)
	if err == nil {
		return Strategy{Kind: StrategyDirect, Pages: pages, Source: source}, nil
	}
	return planRaster(err, images)
}

func planRaster(parseErr error, images map[int]form.PageImage) (Strategy, error) {
	backgrounds, sizes, err := prepareBackgrounds(images)
	if err != nil {
		return Strategy{}, err
	}
	return Strategy{
		Kind:        StrategyRaster,
		Pages:       sizes,
		ParseErr:    signerr.Wrap(signerr.KindParseFailure, parseErr, "source document cannot be edited"),
		Backgrounds: backgrounds,
	}, nil
}

// Parseable reports whether source would take the direct path
func Parseable(source []byte) bool {
	_, err := parseSource(source)
	return err == nil
}
