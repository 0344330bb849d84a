package wrapper

import (
	"fmt"
)

// New returns the inspector for libType
func New(libType LibraryType) (Inspector, error) {
	switch libType {
	case LibraryPDFCPU:
		return NewPDFCPUInspector(), nil
	case LibraryLedongthuc:
		return NewLedongthucInspector(), nil
	default:
		return nil, &WrapperError{
			Library: libType,
			Op:      "factory",
			Err:     fmt.Errorf("unknown library type %q, supported: %v", libType, SupportedLibraries()),
		}
	}
}

// SupportedLibraries returns every library type New accepts
func SupportedLibraries() []LibraryType {
	return []LibraryType{LibraryPDFCPU, LibraryLedongthuc}
}
