// Package export verifies a composed document and hands it to the first
// delivery channel that accepts it.
package export

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/wrapper"
)

const (
	defaultBaseName  = "document"
	defaultExtension = "pdf"
)

// ErrUnsupported is returned by a channel that cannot deliver in the current
// environment, for example a submit channel with no endpoint configured
var ErrUnsupported = stderrors.New("delivery channel unsupported")

// Artifact is a finished document ready for delivery
type Artifact struct {
	FileName    string `json:"file_name"`
	Data        []byte `json:"-"`
	RecipientID string `json:"recipient_id,omitempty"`
}

// DeliveryResult describes where an artifact went
type DeliveryResult struct {
	Channel   string `json:"channel"`
	Location  string `json:"location"`
	Bytes     int    `json:"bytes"`
	Pages     int    `json:"pages"`
	Delivered bool   `json:"delivered"`
	Manual    bool   `json:"manual"`
}

// DeliveryChannel moves an artifact to its destination
type DeliveryChannel interface {
	Name() string
	Deliver(ctx context.Context, a Artifact) (DeliveryResult, error)
}

// SignedFileName derives the output name from the source document name:
// "contract.pdf" becomes "contract-signed.pdf"
func SignedFileName(original string) string {
	base := filepath.Base(strings.TrimSpace(filepath.ToSlash(original)))
	if base == "." || base == "/" {
		base = ""
	}

	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = defaultExtension
	}
	if name == "" {
		name = defaultBaseName
	}
	return fmt.Sprintf("%s-signed.%s", name, ext)
}

// Exporter verifies artifacts and delivers them through an ordered list of
// channels
type Exporter struct {
	inspector wrapper.Inspector
	channels  []DeliveryChannel
	logger    *log.Logger
}

// NewExporter creates an Exporter that verifies with ledongthuc/pdf and
// tries channels in the given order
func NewExporter(logger *log.Logger, channels ...DeliveryChannel) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{
		inspector: wrapper.NewLedongthucInspector(),
		channels:  channels,
		logger:    logger,
	}
}

// Channels returns the names of the configured channels in order
func (e *Exporter) Channels() []string {
	names := make([]string, len(e.channels))
	for i, ch := range e.channels {
		names[i] = ch.Name()
	}
	return names
}

// Verify opens the artifact with an independent reader and returns its page
// count
func (e *Exporter) Verify(data []byte) (int, error) {
	info, err := e.inspector.Inspect(data)
	if err != nil {
		return 0, signerr.Wrap(signerr.KindExportFailure, err, "composed document failed verification")
	}
	return info.PageCount, nil
}

// Export verifies a and delivers it through the first channel that succeeds.
// Nothing is delivered when verification fails.
func (e *Exporter) Export(ctx context.Context, a Artifact) (*DeliveryResult, error) {
	pages, err := e.Verify(a.Data)
	if err != nil {
		return nil, err
	}
	if a.FileName == "" {
		a.FileName = SignedFileName("")
	}
	if len(e.channels) == 0 {
		return nil, signerr.New(signerr.KindExportFailure, "no delivery channels configured")
	}

	var failures []string
	for _, ch := range e.channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := ch.Deliver(ctx, a)
		if err == nil {
			res.Channel = ch.Name()
			res.Pages = pages
			res.Bytes = len(a.Data)
			e.logger.Info("delivered document", "channel", res.Channel, "location", res.Location, "bytes", res.Bytes)
			return &res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if stderrors.Is(err, ErrUnsupported) {
			e.logger.Debug("delivery channel unavailable", "channel", ch.Name(), "err", err)
		} else {
			e.logger.Warn("delivery failed, trying next channel", "channel", ch.Name(), "err", err)
		}
		failures = append(failures, fmt.Sprintf("%s: %v", ch.Name(), err))
	}

	return nil, signerr.New(signerr.KindExportFailure, "").
		WithContext(strings.Join(failures, "; "))
}
