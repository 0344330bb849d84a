package wrapper

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// LedongthucInspector reads documents with ledongthuc/pdf
type LedongthucInspector struct{}

// NewLedongthucInspector creates a ledongthuc inspector
func NewLedongthucInspector() *LedongthucInspector {
	return &LedongthucInspector{}
}

// Inspect opens data and reports its page count and MediaBox sizes. The
// reader panics on some malformed input, which is reported as an error.
func (l *LedongthucInspector) Inspect(data []byte) (info *DocumentInfo, err error) {
	if len(data) == 0 {
		return nil, &WrapperError{Library: LibraryLedongthuc, Op: "inspect", Err: ErrEmptyDocument.Err}
	}

	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = &WrapperError{Library: LibraryLedongthuc, Op: "inspect", Err: fmt.Errorf("reader panic: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &WrapperError{Library: LibraryLedongthuc, Op: "open", Err: err}
	}

	n := reader.NumPage()
	if n == 0 {
		return nil, &WrapperError{Library: LibraryLedongthuc, Op: "inspect", Err: fmt.Errorf("document has no pages")}
	}

	info = &DocumentInfo{
		Library:   LibraryLedongthuc,
		PageCount: n,
		Pages:     make([]PageSize, 0, n),
		Encrypted: !reader.Trailer().Key("Encrypt").IsNull(),
	}
	for i := 1; i <= n; i++ {
		info.Pages = append(info.Pages, mediaBox(reader.Page(i)))
	}
	return info, nil
}

func mediaBox(p pdf.Page) PageSize {
	box := p.V.Key("MediaBox")
	for box.IsNull() {
		parent := p.V.Key("Parent")
		if parent.IsNull() {
			return PageSize{}
		}
		p.V = parent
		box = parent.Key("MediaBox")
	}
	if box.Len() < 4 {
		return PageSize{}
	}
	return PageSize{
		Width:  box.Index(2).Float64() - box.Index(0).Float64(),
		Height: box.Index(3).Float64() - box.Index(1).Float64(),
	}
}

// GetLibraryType returns the library type
func (l *LedongthucInspector) GetLibraryType() LibraryType {
	return LibraryLedongthuc
}
