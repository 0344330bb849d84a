package pdf

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/a3tai/mcp-pdf-signer/internal/descriptions"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/session"
)

// Catalog limits: how deep, how many files and how long one scan may go
const (
	catalogMaxDepth  = 3
	catalogMaxFiles  = 100
	catalogScanLimit = 3 * time.Second
	catalogTTL       = 5 * time.Minute
)

// templateCatalog lists the templates and documents that sign_open_template
// can load by path. Scans are cached for ttl and never run concurrently.
type templateCatalog struct {
	dir string
	ttl time.Duration

	mu        sync.Mutex
	files     []FileInfo
	scannedAt time.Time
	scanning  bool
}

func newTemplateCatalog(dir string) *templateCatalog {
	return &templateCatalog{dir: dir, ttl: catalogTTL}
}

// List returns the cached listing, rescanning once it has expired. While
// another scan is running the previous listing is returned.
func (c *templateCatalog) List(ctx context.Context) ([]FileInfo, error) {
	if c.dir == "" {
		return []FileInfo{}, nil
	}

	c.mu.Lock()
	if c.scanning || (!c.scannedAt.IsZero() && time.Since(c.scannedAt) <= c.ttl) {
		files := c.files
		c.mu.Unlock()
		return nonNil(files), nil
	}
	c.scanning = true
	c.mu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, catalogScanLimit)
	defer cancel()
	files, err := scanTemplates(scanCtx, c.dir)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanning = false
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// a scan cut short by its own time limit still lists what it found
		return nonNil(files), nil
	}
	c.files = files
	c.scannedAt = time.Now()
	return nonNil(files), nil
}

// Invalidate forces the next List to rescan
func (c *templateCatalog) Invalidate() {
	c.mu.Lock()
	c.scannedAt = time.Time{}
	c.mu.Unlock()
}

// scanTemplates walks root for loadable files, skipping hidden entries and
// symlinks, down to catalogMaxDepth and up to catalogMaxFiles results
func scanTemplates(ctx context.Context, root string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			if strings.Count(rel, string(filepath.Separator))+1 >= catalogMaxDepth {
				return fs.SkipDir
			}
			return nil
		}

		kind, ok := templateKinds[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:         rel,
			Name:         d.Name(),
			Kind:         kind,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
		if len(files) >= catalogMaxFiles {
			return fs.SkipAll
		}
		return nil
	})
	return files, err
}

// templateKinds maps the extensions sign_open_template accepts by path to
// what it loads from them
var templateKinds = map[string]string{
	".pdf": "document", ".json": "template", ".yaml": "template", ".yml": "template",
}

func nonNil(files []FileInfo) []FileInfo {
	if files == nil {
		return []FileInfo{}
	}
	return files
}

// ServerInfo assembles server info responses
type ServerInfo struct {
	catalog *templateCatalog
	service *Service
}

// NewServerInfo creates a server info handler for service
func NewServerInfo(service *Service) *ServerInfo {
	return &ServerInfo{
		catalog: newTemplateCatalog(service.directory),
		service: service,
	}
}

// GetServerInfo reports capabilities and the templates found in the
// configured directory
func (p *ServerInfo) GetServerInfo(ctx context.Context, serverName, version string) (*ServerInfoResult, error) {
	files, err := p.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	return &ServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  p.service.directory,
		MaxFileSize:       p.service.maxFileSize,
		AvailableTools:    p.getAvailableTools(),
		DirectoryContents: files,
		UsageGuidance:     p.getUsageGuidance(),
		FieldTypes:        fieldTypes(),
		FillModes: []string{
			string(session.FillText), string(session.FillCheck),
			string(session.FillTypedSignature), string(session.FillAdoptedSignature),
		},
		SignatureFonts:   raster.Families(),
		DeliveryChannels: p.service.exporter.Channels(),
		ActiveSessions:   p.service.SessionCount(),
	}, nil
}

func fieldTypes() []string {
	types := []form.FieldType{
		form.FieldTypeSignature, form.FieldTypeInitials, form.FieldTypeStamp, form.FieldTypeDate,
		form.FieldTypeName, form.FieldTypeEmail, form.FieldTypeCompany, form.FieldTypeTitle,
		form.FieldTypeNumber, form.FieldTypeCheckbox, form.FieldTypeDropdown, form.FieldTypeRadio,
		form.FieldTypePhone, form.FieldTypeAge, form.FieldTypeNumberSelect, form.FieldTypeState,
		form.FieldTypeText,
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// toolParameters documents the arguments of each tool
var toolParameters = map[string]string{
	"sign_open_template": "path (optional): template or PDF file in the configured directory, " +
		"template (optional): inline JSON or YAML template, pdf_base64 (optional): bare document, name (optional)",
	"sign_adopt_signature": "session_id (required), name, initials, font_family, color, " +
		"strokes + canvas_width + canvas_height (drawn), image_base64 (uploaded)",
	"sign_fill_field":     "session_id (required), field_id (required), value, mode (text|check|typed-signature|adopted-signature)",
	"sign_select_radio":   "session_id (required), field_id (required)",
	"sign_clear_field":    "session_id (required), field_id (required)",
	"sign_set_page_image": "session_id (required), page (required, 1-based), image_base64 (required), scale (pixels per point, default 1)",
	"sign_status":         "session_id (required)",
	"sign_preview_field":  "session_id (required), field_id (required)",
	"sign_finalize":       "session_id (required), recipient_id (optional), include_document (optional)",
	"sign_close_session":  "session_id (required)",
	"sign_server_info":    "none",
}

func (p *ServerInfo) getAvailableTools() []ToolInfo {
	names := descriptions.GetAllToolNames()
	tools := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		desc := descriptions.GetToolDescription(name)
		summary, _, _ := strings.Cut(desc, "\n")
		tools = append(tools, ToolInfo{
			Name:        name,
			Description: summary,
			Usage:       desc,
			Parameters:  toolParameters[name],
		})
	}
	return tools
}

// getUsageGuidance returns the signing workflow guide
func (p *ServerInfo) getUsageGuidance() string {
	maxFileSizeMB := p.service.maxFileSize / (1024 * 1024)

	return fmt.Sprintf(`PDF Signing Server Usage Guide:

1. OPEN A TEMPLATE:
   - Use 'sign_open_template' with a file from directory_contents, an inline template, or a bare PDF
   - Keep the returned session_id; every other tool needs it
   - Note which fields are required and whether the document is parseable

2. ADOPT A SIGNATURE:
   - Use 'sign_adopt_signature' with a typed name, drawn strokes or an uploaded image
   - Drawn beats uploaded, and both beat the typed name

3. FILL FIELDS:
   - Use 'sign_fill_field' for text, dates, phones, states, ages and checkboxes (mode "check")
   - Use mode "adopted-signature" or "typed-signature" for signature, initials and stamp fields
   - Use 'sign_select_radio' for radio options; a group keeps exactly one selection
   - A rejected value returns a message and changes nothing; ask the user again

4. CHECK PROGRESS:
   - Use 'sign_status' to list missing required fields
   - Use 'sign_preview_field' to render a field exactly as it will be embedded

5. NON-EDITABLE DOCUMENTS:
   - When parseable is false, supply every page with 'sign_set_page_image' before finalizing

6. FINALIZE:
   - Use 'sign_finalize'; it fails listing the missing required fields until all are filled
   - The document is verified before delivery and named <name>-signed.pdf

IMPORTANT NOTES:
- Template and document files are limited to %dMB
- Paths are confined to the configured directory
- Sessions live in memory; close them with 'sign_close_session' when done`, maxFileSizeMB)
}

// Rescan drops the cached template listing
func (p *ServerInfo) Rescan() {
	p.catalog.Invalidate()
}
