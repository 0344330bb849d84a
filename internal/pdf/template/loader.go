// Package template loads signing templates: a field layout in JSON or YAML
// plus the document it applies to.
package template

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-pdf-signer/internal/cache"
	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/security"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/wrapper"
)

// pdfHeader must appear within the first headerWindow bytes of a document
const (
	pdfHeader    = "%PDF-"
	headerWindow = 1024
)

// Options configures a Loader
type Options struct {
	// Dir confines LoadFile; empty disables file loading
	Dir          string
	MaxFileSize  int64
	FetchTimeout time.Duration
	Cache        cache.Store
	// Inspector names the library that counts pages of documents whose
	// template omits numPages; pdfcpu when empty
	Inspector wrapper.LibraryType
	Logger    *log.Logger
}

// Loader turns template descriptions into form.Template values
type Loader struct {
	paths     *security.PathValidator
	fetcher   *Fetcher
	inspector wrapper.Inspector
	maxSize   int64
	logger    *log.Logger
}

// NewLoader creates a Loader
func NewLoader(opts Options) (*Loader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	lib := opts.Inspector
	if lib == "" {
		lib = wrapper.LibraryPDFCPU
	}
	inspector, err := wrapper.New(lib)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		fetcher:   NewFetcher(opts.FetchTimeout, opts.Cache, opts.MaxFileSize, logger),
		inspector: inspector,
		maxSize:   opts.MaxFileSize,
		logger:    logger,
	}
	if opts.Dir != "" {
		paths, err := security.NewPathValidator(opts.Dir)
		if err != nil {
			return nil, err
		}
		l.paths = paths
	}
	return l, nil
}

type fieldDoc struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Page       *int     `json:"page"`
	PageIndex  *int     `json:"pageIndex"`
	NX         *float64 `json:"nx"`
	NY         *float64 `json:"ny"`
	NW         *float64 `json:"nw"`
	NH         *float64 `json:"nh"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Width      *float64 `json:"width"`
	Height     *float64 `json:"height"`
	GroupID    string   `json:"groupId"`
	OptionText string   `json:"optionText"`
	Required   bool     `json:"required"`
}

type radioGroupDoc struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Options []string `json:"options"`
	Color   string   `json:"color"`
}

type templateDoc struct {
	Name        string                   `json:"name"`
	Fields      []fieldDoc               `json:"fields"`
	RadioGroups map[string]radioGroupDoc `json:"radioGroups"`
	NumPages    int                      `json:"numPages"`
	PDFBase64   string                   `json:"pdfBase64"`
	PDFURL      string                   `json:"pdfUrl"`
}

// Parse decodes a JSON or YAML template, validates it against the template
// schema and loads its document. name is used when the template has none.
func (l *Loader) Parse(ctx context.Context, data []byte, name string) (*form.Template, error) {
	raw, err := toJSON(data)
	if err != nil {
		return nil, signerr.Wrap(signerr.KindInvalidTemplate, err, "template is not valid JSON or YAML")
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, signerr.Wrap(signerr.KindInvalidTemplate, err, "template is not valid JSON")
	}
	if err := validateInstance(instance); err != nil {
		return nil, signerr.Wrap(signerr.KindInvalidTemplate, err, "template failed schema validation")
	}

	var doc templateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, signerr.Wrap(signerr.KindInvalidTemplate, err, "template could not be decoded")
	}

	t, err := convert(doc)
	if err != nil {
		return nil, err
	}
	if t.Name == "" {
		t.Name = name
	}

	t.Source, err = l.document(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !hasPDFHeader(t.Source) {
		return nil, signerr.New(signerr.KindNoDocument, "")
	}
	t.SourceURL = doc.PDFURL
	l.countPages(t)

	if err := t.Validate(); err != nil {
		return nil, signerr.Wrap(signerr.KindInvalidTemplate, err, "")
	}

	l.logger.Debug("loaded template", "name", t.Name, "fields", len(t.Fields), "pages", t.NumPages)
	return t, nil
}

// LoadFile loads a template file from the configured directory. A .pdf path
// loads the bare document with no fields.
func (l *Loader) LoadFile(ctx context.Context, path string) (*form.Template, error) {
	if l.paths == nil {
		return nil, fmt.Errorf("file loading is disabled: no template directory configured")
	}
	data, err := l.paths.ReadFile(path, l.maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}

	base := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(base), ".pdf") {
		return l.Document(base, data)
	}
	return l.Parse(ctx, data, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Document wraps bare document bytes as a template with no fields
func (l *Loader) Document(name string, data []byte) (*form.Template, error) {
	if !hasPDFHeader(data) {
		return nil, signerr.New(signerr.KindNoDocument, "")
	}
	t := &form.Template{
		Name:        name,
		Source:      data,
		RadioGroups: map[string]form.RadioGroup{},
	}
	l.countPages(t)
	return t, nil
}

// document returns the template's PDF bytes. Inline base64 wins over a URL;
// when it does not decode to a document the URL is tried next. NoDocument
// means neither source produced one.
func (l *Loader) document(ctx context.Context, doc templateDoc) ([]byte, error) {
	var errs []error
	if encoded := strings.TrimSpace(doc.PDFBase64); encoded != "" {
		data, err := decodeDocument(encoded)
		if err == nil {
			return data, nil
		}
		if doc.PDFURL != "" {
			l.logger.Warn("inline document unusable, trying pdfUrl", "url", doc.PDFURL, "err", err)
		}
		errs = append(errs, err)
	}

	if doc.PDFURL != "" {
		data, err := l.fetcher.Fetch(ctx, doc.PDFURL)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", doc.PDFURL, err))
	}

	if len(errs) == 0 {
		return nil, signerr.New(signerr.KindNoDocument, "")
	}
	return nil, signerr.Wrap(signerr.KindNoDocument, errors.Join(errs...), "")
}

// decodeDocument decodes inline base64, with or without a data: URL prefix,
// and checks the result is a PDF
func decodeDocument(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("pdfBase64 is not valid base64: %w", err)
	}
	if !hasPDFHeader(data) {
		return nil, fmt.Errorf("pdfBase64 does not hold a PDF document")
	}
	return data, nil
}

// countPages fills NumPages from the document when the template left it
// unset. Documents pdfcpu cannot read keep the declared count.
func (l *Loader) countPages(t *form.Template) {
	if t.NumPages > 0 {
		return
	}
	info, err := l.inspector.Inspect(t.Source)
	if err != nil {
		l.logger.Warn("could not count document pages", "template", t.Name, "err", err)
		return
	}
	t.NumPages = info.PageCount
}

func convert(doc templateDoc) (*form.Template, error) {
	t := &form.Template{
		Name:        strings.TrimSpace(doc.Name),
		NumPages:    doc.NumPages,
		Fields:      make([]form.Field, 0, len(doc.Fields)),
		RadioGroups: make(map[string]form.RadioGroup, len(doc.RadioGroups)),
	}

	for key, g := range doc.RadioGroups {
		id := g.ID
		if id == "" {
			id = key
		}
		if id != key {
			return nil, signerr.New(signerr.KindInvalidTemplate, fmt.Sprintf("radio group %q declares id %q", key, g.ID))
		}
		t.RadioGroups[id] = form.RadioGroup{ID: id, Name: g.Name, Options: g.Options, Color: g.Color}
	}

	for _, fd := range doc.Fields {
		f, err := convertField(fd)
		if err != nil {
			return nil, signerr.Wrap(signerr.KindInvalidTemplate, err, "").WithField(fd.ID)
		}
		if f.Type == form.FieldTypeRadio && f.GroupID != "" {
			if _, ok := t.RadioGroups[f.GroupID]; !ok {
				t.RadioGroups[f.GroupID] = form.RadioGroup{ID: f.GroupID, Name: f.GroupID}
			}
		}
		t.Fields = append(t.Fields, f)
	}
	return t, nil
}

func convertField(fd fieldDoc) (form.Field, error) {
	f := form.Field{
		ID:         fd.ID,
		Type:       form.FieldType(fd.Type),
		Required:   fd.Required,
		GroupID:    fd.GroupID,
		OptionText: fd.OptionText,
	}

	switch {
	case fd.Page != nil && fd.PageIndex != nil && *fd.Page != *fd.PageIndex+1:
		return f, fmt.Errorf("page %d and pageIndex %d disagree", *fd.Page, *fd.PageIndex)
	case fd.Page != nil:
		f.Page = *fd.Page
	case fd.PageIndex != nil:
		f.Page = *fd.PageIndex + 1
	default:
		return f, fmt.Errorf("page or pageIndex is required")
	}

	norm := fd.NX != nil && fd.NY != nil && fd.NW != nil && fd.NH != nil
	abs := fd.X != nil && fd.Y != nil && fd.Width != nil && fd.Height != nil
	switch {
	case norm && !abs:
		f.Norm = &form.Rect{X: *fd.NX, Y: *fd.NY, Width: *fd.NW, Height: *fd.NH}
	case abs && !norm:
		f.Rect = &form.Rect{X: *fd.X, Y: *fd.Y, Width: *fd.Width, Height: *fd.Height}
	default:
		return f, fmt.Errorf("exactly one of nx/ny/nw/nh or x/y/width/height is required")
	}
	return f, nil
}

// toJSON returns data as JSON, converting from YAML when it does not look
// like a JSON object
func toJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("template is empty")
	}
	if trimmed[0] == '{' {
		return trimmed, nil
	}

	var v any
	if err := yaml.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("template must be a mapping")
	}
	return json.Marshal(v)
}

func hasPDFHeader(data []byte) bool {
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	return bytes.Contains(window, []byte(pdfHeader))
}
