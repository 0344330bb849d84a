package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// SignError represents a signing-engine failure with enough context to decide
// whether the caller can recover from it
type SignError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	FieldID   string    `json:"field_id,omitempty"`
	Page      int       `json:"page,omitempty"`
	Missing   []string  `json:"missing,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// ErrorKind represents the categories of failures the engine distinguishes
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidationRejection
	KindParseFailure
	KindRenderFailure
	KindExportFailure
	KindIncomplete
	KindNoPages
	KindNoDocument
	KindUnknownField
	KindInconsistentField
	KindInvalidTemplate
)

// Sentinels match any SignError of the same kind through errors.Is
var (
	ErrValidation   = &SignError{Kind: KindValidationRejection}
	ErrParse        = &SignError{Kind: KindParseFailure}
	ErrRender       = &SignError{Kind: KindRenderFailure}
	ErrExport       = &SignError{Kind: KindExportFailure}
	ErrIncomplete   = &SignError{Kind: KindIncomplete}
	ErrNoPages      = &SignError{Kind: KindNoPages}
	ErrNoDocument   = &SignError{Kind: KindNoDocument}
	ErrUnknownField = &SignError{Kind: KindUnknownField}
	ErrInconsistent = &SignError{Kind: KindInconsistentField}
	ErrTemplate     = &SignError{Kind: KindInvalidTemplate}
)

// Error implements the error interface
func (e *SignError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.defaultMessage()
	}
	if e.FieldID != "" {
		msg = fmt.Sprintf("field %s: %s", e.FieldID, msg)
	}
	if len(e.Missing) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Missing, ", "))
	}
	if e.Context != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Context)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind.String(), msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind.String(), msg)
}

// Unwrap exposes the underlying cause
func (e *SignError) Unwrap() error {
	return e.Err
}

// Is reports kind equality so the package sentinels work with errors.Is
func (e *SignError) Is(target error) bool {
	t, ok := target.(*SignError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// String returns a string representation of the ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindValidationRejection:
		return "VALIDATION_REJECTION"
	case KindParseFailure:
		return "PARSE_FAILURE"
	case KindRenderFailure:
		return "RENDER_FAILURE"
	case KindExportFailure:
		return "EXPORT_FAILURE"
	case KindIncomplete:
		return "INCOMPLETE"
	case KindNoPages:
		return "NO_PAGES"
	case KindNoDocument:
		return "NO_DOCUMENT"
	case KindUnknownField:
		return "UNKNOWN_FIELD"
	case KindInconsistentField:
		return "INCONSISTENT_FIELD"
	case KindInvalidTemplate:
		return "INVALID_TEMPLATE"
	default:
		return "UNKNOWN"
	}
}

func (k ErrorKind) defaultMessage() string {
	switch k {
	case KindValidationRejection:
		return "value rejected"
	case KindParseFailure:
		return "source document could not be parsed"
	case KindRenderFailure:
		return "placement could not be rendered"
	case KindExportFailure:
		return "artifact could not be delivered"
	case KindIncomplete:
		return "required fields are incomplete"
	case KindNoPages:
		return "no pages available to render"
	case KindNoDocument:
		return "template has no document"
	case KindUnknownField:
		return "unknown field"
	case KindInconsistentField:
		return "field geometry is inconsistent with the document"
	case KindInvalidTemplate:
		return "invalid template"
	default:
		return "unknown error"
	}
}

// Recoverable reports whether the engine recovers from this kind on its own.
// Parse and render failures degrade to the fallback strategies; everything
// else reaches the caller.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindParseFailure, KindRenderFailure, KindInconsistentField:
		return true
	default:
		return false
	}
}

// UserCorrectable reports whether the person filling the document can fix the
// condition themselves
func (k ErrorKind) UserCorrectable() bool {
	switch k {
	case KindValidationRejection, KindIncomplete:
		return true
	default:
		return false
	}
}

// New creates a SignError of the given kind
func New(kind ErrorKind, message string) *SignError {
	return &SignError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps err as a SignError of the given kind
func Wrap(kind ErrorKind, err error, message string) *SignError {
	return &SignError{
		Kind:      kind,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Rejection creates a validation rejection with a user-facing message
func Rejection(message string) *SignError {
	return New(KindValidationRejection, message)
}

// Incomplete creates the export gate error listing the unfilled required fields
func Incomplete(missing []string) *SignError {
	e := New(KindIncomplete, "")
	e.Missing = append([]string(nil), missing...)
	return e
}

// WithField adds the field ID to an existing SignError
func (e *SignError) WithField(fieldID string) *SignError {
	e.FieldID = fieldID
	return e
}

// WithPage adds page number information to an existing SignError
func (e *SignError) WithPage(page int) *SignError {
	e.Page = page
	return e
}

// WithContext adds context to an existing SignError
func (e *SignError) WithContext(context string) *SignError {
	e.Context = context
	return e
}

// KindOf returns the kind of the first SignError in err's chain
func KindOf(err error) ErrorKind {
	var se *SignError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// UserMessage returns the message suitable for surfacing inline, without the
// kind prefix
func UserMessage(err error) string {
	var se *SignError
	if !stderrors.As(err, &se) {
		return err.Error()
	}
	msg := se.Message
	if msg == "" {
		msg = se.Kind.defaultMessage()
	}
	if len(se.Missing) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(se.Missing, ", "))
	}
	return msg
}

// ErrorCollection gathers non-fatal problems seen during one operation
type ErrorCollection struct {
	Errors []*SignError `json:"errors"`
}

// NewErrorCollection creates an empty collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{Errors: make([]*SignError, 0)}
}

// Add appends an error to the collection
func (ec *ErrorCollection) Add(err *SignError) {
	ec.Errors = append(ec.Errors, err)
}

// Len returns the number of collected errors
func (ec *ErrorCollection) Len() int {
	return len(ec.Errors)
}

// Summary returns a text summary of the collected errors
func (ec *ErrorCollection) Summary() string {
	if len(ec.Errors) == 0 {
		return "No errors"
	}
	counts := make(map[ErrorKind]int)
	for _, err := range ec.Errors {
		counts[err.Kind]++
	}
	parts := make([]string, 0, len(counts))
	for kind := KindUnknown; kind <= KindInvalidTemplate; kind++ {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, kind.String()))
		}
	}
	return fmt.Sprintf("Found %d error(s): %s", len(ec.Errors), strings.Join(parts, ", "))
}
