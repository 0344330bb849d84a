package pdf

import (
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/compose"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/export"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/geometry"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/session"
)

// FileInfo is a template or document in the configured directory. Path is
// relative to the directory and can be passed to sign_open_template.
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// FieldInfo describes one template field to the caller
type FieldInfo struct {
	ID         string         `json:"id"`
	Type       form.FieldType `json:"type"`
	Page       int            `json:"page"`
	Required   bool           `json:"required"`
	GroupID    string         `json:"group_id,omitempty"`
	OptionText string         `json:"option_text,omitempty"`
	Normalized bool           `json:"normalized"`
}

// Request Types

// OpenTemplateRequest starts a session. Exactly one of Path, Template or
// PDFBase64 is set.
type OpenTemplateRequest struct {
	Path      string `json:"path,omitempty"`
	Template  string `json:"template,omitempty"`
	PDFBase64 string `json:"pdf_base64,omitempty"`
	Name      string `json:"name,omitempty"`
}

// AdoptSignatureRequest adopts the signature used for signature, initials
// and stamp fields. Strokes and ImageBase64 are both optional.
type AdoptSignatureRequest struct {
	SessionID    string          `json:"session_id"`
	Name         string          `json:"name"`
	Initials     string          `json:"initials,omitempty"`
	FontFamily   string          `json:"font_family,omitempty"`
	Color        string          `json:"color,omitempty"`
	Strokes      []raster.Stroke `json:"strokes,omitempty"`
	CanvasWidth  int             `json:"canvas_width,omitempty"`
	CanvasHeight int             `json:"canvas_height,omitempty"`
	LineWidth    float64         `json:"line_width,omitempty"`
	ImageBase64  string          `json:"image_base64,omitempty"`
}

// FillFieldRequest fills one field
type FillFieldRequest struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
	Value     string `json:"value"`
	Mode      string `json:"mode,omitempty"`
}

// SelectRadioRequest selects a radio option
type SelectRadioRequest struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
}

// ClearFieldRequest removes a field's content
type ClearFieldRequest struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
}

// SetPageImageRequest supplies the display bitmap of one page
type SetPageImageRequest struct {
	SessionID   string  `json:"session_id"`
	Page        int     `json:"page"`
	ImageBase64 string  `json:"image_base64"`
	Scale       float64 `json:"scale,omitempty"`
}

// StatusRequest asks for a session summary
type StatusRequest struct {
	SessionID string `json:"session_id"`
}

// PreviewFieldRequest renders one filled field as it will be embedded
type PreviewFieldRequest struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
}

// FinalizeRequest composes and delivers the signed document
type FinalizeRequest struct {
	SessionID       string `json:"session_id"`
	RecipientID     string `json:"recipient_id,omitempty"`
	IncludeDocument bool   `json:"include_document,omitempty"`
}

// CloseSessionRequest discards a session
type CloseSessionRequest struct {
	SessionID string `json:"session_id"`
}

// ServerInfoRequest represents a request to get server information and capabilities
type ServerInfoRequest struct {
	// No parameters needed for server info
}

// Response Types

// OpenTemplateResult describes the newly opened session
type OpenTemplateResult struct {
	SessionID   string            `json:"session_id"`
	Template    string            `json:"template"`
	NumPages    int               `json:"num_pages"`
	Fields      []FieldInfo       `json:"fields"`
	RadioGroups []form.RadioGroup `json:"radio_groups,omitempty"`
	Required    []string          `json:"required"`
	Parseable   bool              `json:"parseable"`
}

// AdoptSignatureResult reports which signature source fills signature fields
type AdoptSignatureResult struct {
	SessionID  string `json:"session_id"`
	Name       string `json:"name"`
	Initials   string `json:"initials"`
	FontFamily string `json:"font_family"`
	Color      string `json:"color"`
	Source     string `json:"source"`
}

// FillFieldResult carries the normalized value that was stored
type FillFieldResult struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
	Kind      string `json:"kind,omitempty"`
	Value     string `json:"value,omitempty"`
	Cleared   bool   `json:"cleared,omitempty"`
}

// SelectRadioResult reports the group selection after the change
type SelectRadioResult struct {
	SessionID string `json:"session_id"`
	GroupID   string `json:"group_id"`
	Selected  string `json:"selected"`
}

// ClearFieldResult reports whether anything was removed
type ClearFieldResult struct {
	SessionID string `json:"session_id"`
	FieldID   string `json:"field_id"`
	Removed   bool   `json:"removed"`
}

// SetPageImageResult reports the page size derived from the bitmap
type SetPageImageResult struct {
	SessionID string  `json:"session_id"`
	Page      int     `json:"page"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// StatusResult is the session summary
type StatusResult = session.Status

// PreviewFieldResult is the content of one field exactly as composition will
// place it, in PDF points with a bottom-left origin
type PreviewFieldResult struct {
	SessionID   string  `json:"session_id"`
	FieldID     string  `json:"field_id"`
	Page        int     `json:"page"`
	ImageBase64 string  `json:"image_base64,omitempty"`
	Text        string  `json:"text,omitempty"`
	FontSize    int     `json:"font_size,omitempty"`
	Degraded    bool    `json:"degraded"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

// FinalizeResult describes the delivered document
type FinalizeResult struct {
	SessionID      string                   `json:"session_id"`
	FileName       string                   `json:"file_name"`
	Strategy       string                   `json:"strategy"`
	Bytes          int                      `json:"bytes"`
	Delivery       *export.DeliveryResult   `json:"delivery"`
	Rendered       []compose.Rendered       `json:"rendered"`
	Degraded       []string                 `json:"degraded,omitempty"`
	Skipped        []geometry.Inconsistency `json:"skipped,omitempty"`
	Attempts       []compose.Attempt        `json:"attempts,omitempty"`
	DocumentBase64 string                   `json:"document_base64,omitempty"`
}

// CloseSessionResult confirms a session was discarded
type CloseSessionResult struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

// ServerInfoResult represents server information and usage guidance
type ServerInfoResult struct {
	ServerName        string     `json:"server_name"`
	Version           string     `json:"version"`
	DefaultDirectory  string     `json:"default_directory"`
	MaxFileSize       int64      `json:"max_file_size"`
	AvailableTools    []ToolInfo `json:"available_tools"`
	DirectoryContents []FileInfo `json:"directory_contents"`
	UsageGuidance     string     `json:"usage_guidance"`
	FieldTypes        []string   `json:"field_types"`
	FillModes         []string   `json:"fill_modes"`
	SignatureFonts    []string   `json:"signature_fonts"`
	DeliveryChannels  []string   `json:"delivery_channels"`
	ActiveSessions    int        `json:"active_sessions"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
