// Package wrapper gives the PDF libraries a common read-only view of a
// document, used to size pages and to check a composed artifact with a
// reader independent of the one that wrote it.
package wrapper

import (
	"fmt"
)

// Inspector opens a document held in memory and reports its structure
type Inspector interface {
	Inspect(data []byte) (*DocumentInfo, error)
	GetLibraryType() LibraryType
}

// LibraryType represents the underlying PDF library being used
type LibraryType string

const (
	LibraryPDFCPU     LibraryType = "pdfcpu"
	LibraryLedongthuc LibraryType = "ledongthuc"
)

// DocumentInfo summarizes an opened document
type DocumentInfo struct {
	Library   LibraryType `json:"library"`
	PageCount int         `json:"page_count"`
	Pages     []PageSize  `json:"pages,omitempty"`
	Encrypted bool        `json:"encrypted"`
}

// PageSize represents page dimensions in points
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// WrapperError records which library failed and in which operation
type WrapperError struct {
	Library LibraryType `json:"library"`
	Op      string      `json:"operation"`
	Err     error       `json:"error"`
}

func (e *WrapperError) Error() string {
	return fmt.Sprintf("PDF %s library error in %s: %v", e.Library, e.Op, e.Err)
}

func (e *WrapperError) Unwrap() error {
	return e.Err
}

// Common error variables
var (
	ErrUnsupportedLibrary = &WrapperError{Op: "factory", Err: fmt.Errorf("unsupported library type")}
	ErrEmptyDocument      = &WrapperError{Op: "inspect", Err: fmt.Errorf("document is empty")}
)
