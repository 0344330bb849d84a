package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/a3tai/mcp-pdf-signer/internal/cache"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/compose"
	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/export"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/geometry"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/session"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/template"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/wrapper"
)

// ErrSessionNotFound is returned for an unknown or closed session ID
var ErrSessionNotFound = stderrors.New("session not found")

// Default canvas for drawn signatures when the caller does not give one
const (
	defaultCanvasWidth  = 600
	defaultCanvasHeight = 200
)

// Options configures a Service
type Options struct {
	Directory    string
	MaxFileSize  int64
	Raster       raster.Options
	FetchTimeout time.Duration
	Inspector    wrapper.LibraryType
	Cache        cache.Store
	Channels     []export.DeliveryChannel
	Logger       *log.Logger
}

// Service orchestrates signing sessions: template loading, filling,
// composition and delivery
type Service struct {
	maxFileSize int64
	directory   string
	loader      *template.Loader
	rasterizer  *raster.Rasterizer
	composer    *compose.Composer
	exporter    *export.Exporter
	serverInfo  *ServerInfo
	logger      *log.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewService creates a new signing service with all components
func NewService(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	loader, err := template.NewLoader(template.Options{
		Dir:          opts.Directory,
		MaxFileSize:  opts.MaxFileSize,
		FetchTimeout: opts.FetchTimeout,
		Inspector:    opts.Inspector,
		Cache:        opts.Cache,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create template loader: %w", err)
	}

	channels := opts.Channels
	if len(channels) == 0 {
		channels = []export.DeliveryChannel{&export.ManualSaveChannel{}}
	}

	r := raster.New(opts.Raster)
	s := &Service{
		maxFileSize: opts.MaxFileSize,
		directory:   opts.Directory,
		loader:      loader,
		rasterizer:  r,
		composer:    compose.New(r, logger),
		exporter:    export.NewExporter(logger, channels...),
		logger:      logger,
		sessions:    make(map[string]*session.Session),
	}
	s.serverInfo = NewServerInfo(s)
	return s, nil
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// Rasterizer returns the rasterizer shared by all sessions
func (s *Service) Rasterizer() *raster.Rasterizer {
	return s.rasterizer
}

func (s *Service) session(id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// SessionCount returns the number of open sessions
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// OpenTemplate loads a template and starts a session over it
func (s *Service) OpenTemplate(ctx context.Context, req OpenTemplateRequest) (*OpenTemplateResult, error) {
	var (
		t   *form.Template
		err error
	)
	switch {
	case req.Path != "" && req.Template == "" && req.PDFBase64 == "":
		t, err = s.loader.LoadFile(ctx, req.Path)
	case req.Template != "" && req.Path == "" && req.PDFBase64 == "":
		t, err = s.loader.Parse(ctx, []byte(req.Template), req.Name)
	case req.PDFBase64 != "" && req.Path == "" && req.Template == "":
		data, derr := decodeBase64(req.PDFBase64)
		if derr != nil {
			return nil, signerr.Wrap(signerr.KindInvalidTemplate, derr, "pdf_base64 is not valid base64")
		}
		if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
			return nil, signerr.New(signerr.KindInvalidTemplate,
				fmt.Sprintf("document size %d exceeds maximum allowed size %d", len(data), s.maxFileSize))
		}
		t, err = s.loader.Document(req.Name, data)
	default:
		return nil, signerr.New(signerr.KindInvalidTemplate, "exactly one of path, template or pdf_base64 is required")
	}
	if err != nil {
		return nil, err
	}

	sess := session.New(uuid.NewString(), t)
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	st := sess.Status()
	res := &OpenTemplateResult{
		SessionID: sess.ID(),
		Template:  t.Name,
		NumPages:  t.NumPages,
		Fields:    make([]FieldInfo, 0, len(t.Fields)),
		Required:  t.RequiredFields(),
		Parseable: st.Parseable,
	}
	for _, f := range t.Fields {
		res.Fields = append(res.Fields, FieldInfo{
			ID:         f.ID,
			Type:       f.Type,
			Page:       f.Page,
			Required:   f.Required,
			GroupID:    f.GroupID,
			OptionText: f.OptionText,
			Normalized: f.IsNormalized(),
		})
	}
	for _, g := range t.RadioGroups {
		res.RadioGroups = append(res.RadioGroups, g)
	}
	sort.Slice(res.RadioGroups, func(i, j int) bool { return res.RadioGroups[i].ID < res.RadioGroups[j].ID })

	s.logger.Info("opened session", "session", sess.ID(), "template", t.Name, "fields", len(t.Fields), "parseable", st.Parseable)
	return res, nil
}

// AdoptSignature renders any drawn strokes or uploaded image and adopts the
// result for the session
func (s *Service) AdoptSignature(req AdoptSignatureRequest) (*AdoptSignatureResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	sig := form.Signature{
		Name:       strings.TrimSpace(req.Name),
		Initials:   strings.TrimSpace(req.Initials),
		FontFamily: req.FontFamily,
		Color:      req.Color,
	}
	if sig.FontFamily == "" {
		sig.FontFamily = raster.DefaultSignatureFamily
	}
	if sig.Color == "" {
		sig.Color = raster.DefaultInk
	}

	if len(req.Strokes) > 0 {
		w, h := req.CanvasWidth, req.CanvasHeight
		if w <= 0 || h <= 0 {
			w, h = defaultCanvasWidth, defaultCanvasHeight
		}
		drawn, err := s.rasterizer.RenderStrokes(w, h, sig.Color, req.LineWidth, req.Strokes)
		if err != nil {
			return nil, err
		}
		sig.Drawn = drawn.PNG
	}
	if req.ImageBase64 != "" {
		data, err := decodeBase64(req.ImageBase64)
		if err != nil {
			return nil, signerr.Rejection("image_base64 is not valid base64")
		}
		uploaded, err := s.rasterizer.NormalizeUploadedImage(data)
		if err != nil {
			return nil, err
		}
		sig.Uploaded = uploaded.PNG
	}

	if err := sess.Adopt(sig); err != nil {
		return nil, err
	}
	adopted, _ := sess.Signature()

	source := "typed"
	switch {
	case len(adopted.Drawn) > 0:
		source = "drawn"
	case len(adopted.Uploaded) > 0:
		source = "uploaded"
	}
	return &AdoptSignatureResult{
		SessionID:  sess.ID(),
		Name:       adopted.Name,
		Initials:   adopted.Initials,
		FontFamily: adopted.FontFamily,
		Color:      adopted.Color,
		Source:     source,
	}, nil
}

// FillField validates and stores one field value. A rejection leaves the
// session unchanged.
func (s *Service) FillField(req FillFieldRequest) (*FillFieldResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	mode, err := session.ParseFillMode(req.Mode)
	if err != nil {
		return nil, err
	}

	p, err := sess.Fill(req.FieldID, mode, req.Value)
	if err != nil {
		return nil, err
	}

	res := &FillFieldResult{SessionID: sess.ID(), FieldID: req.FieldID}
	if p == nil {
		res.Cleared = true
		return res, nil
	}
	res.Kind = p.Kind.String()
	res.Value = p.Text
	return res, nil
}

// SelectRadio selects a radio option, clearing the rest of its group
func (s *Service) SelectRadio(req SelectRadioRequest) (*SelectRadioResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.SelectRadio(req.FieldID); err != nil {
		return nil, err
	}
	f, _ := sess.Template().Field(req.FieldID)
	return &SelectRadioResult{SessionID: sess.ID(), GroupID: f.GroupID, Selected: req.FieldID}, nil
}

// ClearField removes a field's content
func (s *Service) ClearField(req ClearFieldRequest) (*ClearFieldResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	removed, err := sess.Clear(req.FieldID)
	if err != nil {
		return nil, err
	}
	return &ClearFieldResult{SessionID: sess.ID(), FieldID: req.FieldID, Removed: removed}, nil
}

// SetPageImage stores a page bitmap used when the document has to be rebuilt
func (s *Service) SetPageImage(req SetPageImageRequest) (*SetPageImageResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	data, err := decodeBase64(req.ImageBase64)
	if err != nil {
		return nil, signerr.Rejection("image_base64 is not valid base64").WithPage(req.Page)
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return nil, signerr.Rejection(fmt.Sprintf("page image exceeds maximum allowed size %d", s.maxFileSize)).WithPage(req.Page)
	}

	scale := req.Scale
	if scale == 0 {
		scale = 1
	}
	if err := sess.SetPageImage(req.Page, form.PageImage{Data: data, Scale: scale}); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, signerr.Rejection("page image cannot be decoded").WithPage(req.Page)
	}
	return &SetPageImageResult{
		SessionID: sess.ID(),
		Page:      req.Page,
		Width:     float64(cfg.Width) / scale,
		Height:    float64(cfg.Height) / scale,
	}, nil
}

// Status summarizes a session
func (s *Service) Status(req StatusRequest) (*StatusResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	st := sess.Status()
	return &st, nil
}

// PreviewField renders a filled field through the same path composition uses
func (s *Service) PreviewField(req PreviewFieldRequest) (*PreviewFieldResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	t := sess.Template()
	f, ok := t.Field(req.FieldID)
	if !ok {
		return nil, signerr.New(signerr.KindUnknownField, "no such field").WithField(req.FieldID)
	}
	p, ok := sess.Placement(req.FieldID)
	if !ok {
		return nil, signerr.Rejection("field has not been filled").WithField(req.FieldID)
	}

	in := sess.Input()
	strategy, err := compose.Plan(t.Source, in.PageImages)
	if err != nil {
		return nil, err
	}
	placed, skipped := geometry.NewMapper(strategy.Pages).Resolve([]form.Field{f})
	if len(skipped) > 0 {
		return nil, signerr.New(signerr.KindInconsistentField, skipped[0].Reason).
			WithField(f.ID).
			WithPage(f.Page)
	}

	st, err := s.composer.Stamp(t, f, p, placed[0].PDF)
	if err != nil {
		return nil, err
	}
	res := &PreviewFieldResult{
		SessionID: sess.ID(),
		FieldID:   f.ID,
		Page:      f.Page,
		Text:      st.Text,
		FontSize:  st.FontSize,
		Degraded:  st.Degraded,
		X:         st.Rect.X,
		Y:         st.Rect.Y,
		Width:     st.Rect.Width,
		Height:    st.Rect.Height,
	}
	if st.Kind == compose.StampImage {
		res.ImageBase64 = base64.StdEncoding.EncodeToString(st.PNG)
		res.Text = ""
	}
	return res, nil
}

// Finalize checks that every required field is filled, composes the signed
// document and delivers it. Nothing is delivered unless every step succeeds.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	sess, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}
	if missing := sess.Missing(); len(missing) > 0 {
		return nil, signerr.Incomplete(missing)
	}

	composed, err := s.composer.Compose(ctx, sess.Input())
	if err != nil {
		return nil, err
	}

	t := sess.Template()
	artifact := export.Artifact{
		FileName:    export.SignedFileName(t.Name),
		Data:        composed.PDF,
		RecipientID: req.RecipientID,
	}
	delivery, err := s.exporter.Export(ctx, artifact)
	if err != nil {
		return nil, err
	}

	res := &FinalizeResult{
		SessionID: sess.ID(),
		FileName:  artifact.FileName,
		Strategy:  composed.Strategy.String(),
		Bytes:     len(composed.PDF),
		Delivery:  delivery,
		Rendered:  composed.Rendered,
		Degraded:  composed.Degraded,
		Skipped:   composed.Skipped,
		Attempts:  composed.Attempts,
	}
	if req.IncludeDocument {
		res.DocumentBase64 = base64.StdEncoding.EncodeToString(composed.PDF)
	}
	s.logger.Info("finalized session", "session", sess.ID(), "file", res.FileName, "strategy", res.Strategy, "channel", delivery.Channel)
	return res, nil
}

// CloseSession discards a session and everything it holds
func (s *Service) CloseSession(req CloseSessionRequest) (*CloseSessionResult, error) {
	s.mu.Lock()
	_, ok := s.sessions[req.SessionID]
	delete(s.sessions, req.SessionID)
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
	}
	return &CloseSessionResult{SessionID: req.SessionID, Closed: true}, nil
}

// ServerInfo returns server capabilities and usage guidance
func (s *Service) ServerInfo(ctx context.Context, serverName, version string) (*ServerInfoResult, error) {
	return s.serverInfo.GetServerInfo(ctx, serverName, version)
}

// decodeBase64 accepts standard base64, optionally as a data URL
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
