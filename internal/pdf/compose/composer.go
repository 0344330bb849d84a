package compose

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/geometry"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
)

// Input is everything one composition needs
type Input struct {
	Template   *form.Template
	Placements map[string]form.Placement
	PageImages map[int]form.PageImage
}

// Rendered is where a field's content ended up, in PDF points with a
// bottom-left origin
type Rendered struct {
	FieldID string  `json:"field_id"`
	Page    int     `json:"page"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Attempt records a composition path that was tried and failed
type Attempt struct {
	Strategy StrategyKind `json:"strategy"`
	Error    string       `json:"error"`
}

// Result is a completed composition
type Result struct {
	PDF      []byte                   `json:"-"`
	Strategy StrategyKind             `json:"strategy"`
	Rendered []Rendered               `json:"rendered"`
	Attempts []Attempt                `json:"attempts,omitempty"`
	Skipped  []geometry.Inconsistency `json:"skipped,omitempty"`
	Degraded []string                 `json:"degraded,omitempty"`
}

// Composer merges placements into a document
type Composer struct {
	raster *raster.Rasterizer
	logger *log.Logger
}

// New creates a Composer. A nil logger uses log.Default().
func New(r *raster.Rasterizer, logger *log.Logger) *Composer {
	if logger == nil {
		logger = log.Default()
	}
	return &Composer{raster: r, logger: logger}
}

// Compose plans and runs a composition. When the direct path fails after
// the source parsed, the raster path is tried once before giving up. A
// cancelled context returns ctx.Err() and no document.
func (c *Composer) Compose(ctx context.Context, in Input) (*Result, error) {
	if in.Template == nil {
		return nil, signerr.New(signerr.KindNoDocument, "")
	}

	strategy, err := Plan(in.Template.Source, in.PageImages)
	if err != nil {
		return nil, err
	}
	if strategy.Kind == StrategyRaster {
		c.logger.Warn("source document is not editable, rebuilding from page bitmaps",
			"template", in.Template.Name, "err", strategy.ParseErr)
	}

	res, err := c.run(ctx, in, strategy)
	if err == nil || strategy.Kind != StrategyDirect || ctx.Err() != nil || signerr.KindOf(err) != signerr.KindParseFailure {
		return res, err
	}

	c.logger.Warn("direct edit failed, retrying from page bitmaps", "template", in.Template.Name, "err", err)
	attempt := Attempt{Strategy: StrategyDirect, Error: err.Error()}

	fallback, perr := planRaster(err, in.PageImages)
	if perr != nil {
		return nil, fmt.Errorf("%w (after direct edit failed: %v)", perr, err)
	}
	res, err = c.run(ctx, in, fallback)
	if err != nil {
		return nil, err
	}
	res.Attempts = append([]Attempt{attempt}, res.Attempts...)
	return res, nil
}

func (c *Composer) run(ctx context.Context, in Input, strategy Strategy) (*Result, error) {
	stamps, skipped, err := c.layout(ctx, in, strategy.Pages)
	if err != nil {
		return nil, err
	}

	var (
		out      []byte
		rendered []Rendered
	)
	switch strategy.Kind {
	case StrategyDirect:
		out, rendered, err = writeDirect(ctx, strategy.Source, stamps)
		if err != nil && ctx.Err() == nil {
			err = signerr.Wrap(signerr.KindParseFailure, err, "direct edit failed")
		}
	case StrategyRaster:
		out, rendered, err = writeRaster(ctx, strategy.Backgrounds, stamps)
		if err != nil && ctx.Err() == nil {
			err = signerr.Wrap(signerr.KindExportFailure, err, "page reconstruction failed")
		}
	default:
		err = fmt.Errorf("unknown composition strategy %d", strategy.Kind)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	res := &Result{
		PDF:      out,
		Strategy: strategy.Kind,
		Rendered: rendered,
		Skipped:  skipped,
	}
	for _, st := range stamps {
		if st.Degraded {
			res.Degraded = append(res.Degraded, st.FieldID)
		}
	}
	c.logger.Info("composed document",
		"template", in.Template.Name,
		"strategy", strategy.Kind,
		"pages", len(strategy.Pages),
		"stamps", len(stamps),
		"bytes", len(out))
	return res, nil
}

// layout resolves field geometry against the page sizes and turns every
// placement into a stamp, page-major then in field-list order
func (c *Composer) layout(ctx context.Context, in Input, pages []geometry.PageSize) ([]Stamp, []geometry.Inconsistency, error) {
	placed, skipped := geometry.NewMapper(pages).Resolve(in.Template.Fields)

	for _, bad := range skipped {
		if _, filled := in.Placements[bad.FieldID]; !filled {
			c.logger.Warn("skipping field with inconsistent geometry", "field", bad.FieldID, "page", bad.Page, "reason", bad.Reason)
			continue
		}
		return nil, nil, signerr.New(signerr.KindInconsistentField, bad.Reason).
			WithField(bad.FieldID).
			WithPage(bad.Page)
	}

	stamps := make([]Stamp, 0, len(in.Placements))
	for _, p := range placed {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		placement, ok := in.Placements[p.Field.ID]
		if !ok {
			continue
		}
		st, err := c.Stamp(in.Template, p.Field, placement, p.PDF)
		if err != nil {
			return nil, nil, err
		}
		stamps = append(stamps, st)
	}
	return stamps, skipped, nil
}
