package wrapper

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFCPUInspector reads documents with pdfcpu
type PDFCPUInspector struct {
	conf *model.Configuration
}

// NewPDFCPUInspector creates an inspector using relaxed validation
func NewPDFCPUInspector() *PDFCPUInspector {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPUInspector{conf: conf}
}

// Inspect parses data and reports the page count and per-page sizes. A panic
// inside pdfcpu on a malformed document is reported as an error.
func (p *PDFCPUInspector) Inspect(data []byte) (info *DocumentInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			info, err = nil, &WrapperError{Library: LibraryPDFCPU, Op: "inspect", Err: fmt.Errorf("pdfcpu panic: %v", r)}
		}
	}()

	if len(data) == 0 {
		return nil, &WrapperError{Library: LibraryPDFCPU, Op: "inspect", Err: ErrEmptyDocument.Err}
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), p.conf)
	if err != nil {
		return nil, &WrapperError{Library: LibraryPDFCPU, Op: "read", Err: err}
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, &WrapperError{Library: LibraryPDFCPU, Op: "validate", Err: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &WrapperError{Library: LibraryPDFCPU, Op: "page_count", Err: err}
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, &WrapperError{Library: LibraryPDFCPU, Op: "page_dims", Err: err}
	}

	info = &DocumentInfo{
		Library:   LibraryPDFCPU,
		PageCount: ctx.PageCount,
		Pages:     make([]PageSize, len(dims)),
	}
	for i, d := range dims {
		info.Pages[i] = PageSize{Width: d.Width, Height: d.Height}
	}
	if info.PageCount == 0 {
		return nil, &WrapperError{Library: LibraryPDFCPU, Op: "inspect", Err: fmt.Errorf("document has no pages")}
	}
	return info, nil
}

// GetLibraryType returns the library type
func (p *PDFCPUInspector) GetLibraryType() LibraryType {
	return LibraryPDFCPU
}
