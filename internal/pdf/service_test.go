package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-signer/internal/logging"
	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/export"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/raster"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/wrapper"
)

func letterPDF(t *testing.T) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 14)
	pdf.Text(72, 72, "Residential Lease")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func leaseTemplate(pdfBase64 string) string {
	return fmt.Sprintf(`{
  "name": "lease",
  "numPages": 1,
  "pdfBase64": %q,
  "fields": [
    {"id": "tenant_sig", "type": "signature", "page": 1, "x": 72, "y": 650, "width": 220, "height": 50, "required": true},
    {"id": "tenant_ini", "type": "initials", "page": 1, "nx": 0.8, "ny": 0.9, "nw": 0.1, "nh": 0.04},
    {"id": "start", "type": "date", "page": 1, "x": 72, "y": 200, "width": 150, "height": 20, "required": true},
    {"id": "phone", "type": "phone", "page": 1, "x": 72, "y": 240, "width": 150, "height": 20},
    {"id": "agree", "type": "checkbox", "page": 1, "x": 72, "y": 280, "width": 14, "height": 14, "required": true},
    {"id": "plan-a", "type": "radio", "page": 1, "x": 72, "y": 320, "width": 14, "height": 14, "groupId": "plan"},
    {"id": "plan-b", "type": "radio", "page": 1, "x": 72, "y": 340, "width": 14, "height": 14, "groupId": "plan"}
  ],
  "radioGroups": {"plan": {"name": "Plan", "options": ["A", "B"], "color": "#2e7d32"}}
}`, pdfBase64)
}

func whitePage(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestService(t *testing.T, outDir string) *Service {
	t.Helper()
	s, err := NewService(Options{
		Directory:   t.TempDir(),
		MaxFileSize: 10 << 20,
		Raster:      raster.DefaultOptions(),
		Channels:    []export.DeliveryChannel{&export.DownloadChannel{Dir: outDir}},
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	return s
}

func fillLease(t *testing.T, s *Service, id string) {
	t.Helper()
	_, err := s.AdoptSignature(AdoptSignatureRequest{SessionID: id, Name: "Jane Q Roe"})
	require.NoError(t, err)

	for _, fill := range []FillFieldRequest{
		{FieldID: "tenant_sig", Mode: "adopted-signature"},
		{FieldID: "tenant_ini", Mode: "adopted-signature"},
		{FieldID: "start", Value: "2025-01-31"},
		{FieldID: "phone", Value: "555.123.4567"},
		{FieldID: "agree", Mode: "check"},
	} {
		fill.SessionID = id
		_, err := s.FillField(fill)
		require.NoError(t, err, fill.FieldID)
	}
	_, err = s.SelectRadio(SelectRadioRequest{SessionID: id, FieldID: "plan-b"})
	require.NoError(t, err)
}

func TestService_SigningFlow(t *testing.T) {
	outDir := t.TempDir()
	s := newTestService(t, outDir)
	ctx := context.Background()

	opened, err := s.OpenTemplate(ctx, OpenTemplateRequest{
		Template: leaseTemplate(base64.StdEncoding.EncodeToString(letterPDF(t))),
	})
	require.NoError(t, err)
	assert.Equal(t, "lease", opened.Template)
	assert.Equal(t, 1, opened.NumPages)
	assert.Len(t, opened.Fields, 7)
	assert.Equal(t, []string{"tenant_sig", "start", "agree"}, opened.Required)
	assert.True(t, opened.Parseable)
	require.Len(t, opened.RadioGroups, 1)
	assert.Equal(t, 1, s.SessionCount())

	id := opened.SessionID
	fillLease(t, s, id)

	phone, err := s.FillField(FillFieldRequest{SessionID: id, FieldID: "phone", Value: "(555) 987 6543"})
	require.NoError(t, err)
	assert.Equal(t, "(555) 987-6543", phone.Value)

	status, err := s.Status(StatusRequest{SessionID: id})
	require.NoError(t, err)
	assert.True(t, status.Complete)
	assert.Equal(t, map[string]string{"plan": "plan-b"}, status.Radio)

	preview, err := s.PreviewField(PreviewFieldRequest{SessionID: id, FieldID: "tenant_sig"})
	require.NoError(t, err)
	assert.NotEmpty(t, preview.ImageBase64)
	assert.False(t, preview.Degraded)
	assert.LessOrEqual(t, preview.Width, 220.0)
	assert.LessOrEqual(t, preview.Height, 50.0)

	res, err := s.Finalize(ctx, FinalizeRequest{SessionID: id, IncludeDocument: true})
	require.NoError(t, err)
	assert.Equal(t, "lease-signed.pdf", res.FileName)
	assert.Equal(t, "direct", res.Strategy)
	assert.Len(t, res.Rendered, 6)
	assert.Empty(t, res.Degraded)
	require.NotNil(t, res.Delivery)
	assert.Equal(t, filepath.Join(outDir, "lease-signed.pdf"), res.Delivery.Location)

	written, err := os.ReadFile(res.Delivery.Location)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(res.DocumentBase64)
	require.NoError(t, err)
	assert.Equal(t, written, decoded)

	info, err := wrapper.NewLedongthucInspector().Inspect(written)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PageCount)

	closed, err := s.CloseSession(CloseSessionRequest{SessionID: id})
	require.NoError(t, err)
	assert.True(t, closed.Closed)
	_, err = s.Status(StatusRequest{SessionID: id})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_FinalizeRequiresRequiredFields(t *testing.T) {
	outDir := t.TempDir()
	s := newTestService(t, outDir)
	ctx := context.Background()

	opened, err := s.OpenTemplate(ctx, OpenTemplateRequest{
		Template: leaseTemplate(base64.StdEncoding.EncodeToString(letterPDF(t))),
	})
	require.NoError(t, err)
	id := opened.SessionID

	_, err = s.FillField(FillFieldRequest{SessionID: id, FieldID: "start", Value: "01/31/2025"})
	require.NoError(t, err)

	_, err = s.Finalize(ctx, FinalizeRequest{SessionID: id})
	require.ErrorIs(t, err, signerr.ErrIncomplete)
	var se *signerr.SignError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"tenant_sig", "agree"}, se.Missing)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is delivered before the gate passes")
}

func TestService_FallbackFromPageImages(t *testing.T) {
	s := newTestService(t, t.TempDir())
	ctx := context.Background()

	broken := []byte("%PDF-1.7 truncated before the first object")
	opened, err := s.OpenTemplate(ctx, OpenTemplateRequest{
		Template: leaseTemplate(base64.StdEncoding.EncodeToString(broken)),
	})
	require.NoError(t, err)
	assert.False(t, opened.Parseable)
	id := opened.SessionID
	fillLease(t, s, id)

	_, err = s.Finalize(ctx, FinalizeRequest{SessionID: id})
	require.ErrorIs(t, err, signerr.ErrNoPages)

	page, err := s.SetPageImage(SetPageImageRequest{SessionID: id, Page: 1, ImageBase64: whitePage(t, 1224, 1584), Scale: 2})
	require.NoError(t, err)
	assert.InDelta(t, 612, page.Width, 0.001)
	assert.InDelta(t, 792, page.Height, 0.001)

	res, err := s.Finalize(ctx, FinalizeRequest{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, "raster", res.Strategy)
	assert.Len(t, res.Rendered, 6)
}

func TestService_Rejections(t *testing.T) {
	s := newTestService(t, t.TempDir())
	ctx := context.Background()

	_, err := s.OpenTemplate(ctx, OpenTemplateRequest{})
	assert.ErrorIs(t, err, signerr.ErrTemplate)
	_, err = s.OpenTemplate(ctx, OpenTemplateRequest{Path: "a.pdf", PDFBase64: "AAAA"})
	assert.ErrorIs(t, err, signerr.ErrTemplate)
	_, err = s.OpenTemplate(ctx, OpenTemplateRequest{PDFBase64: base64.StdEncoding.EncodeToString([]byte("plain text"))})
	assert.ErrorIs(t, err, signerr.ErrNoDocument)

	opened, err := s.OpenTemplate(ctx, OpenTemplateRequest{
		PDFBase64: base64.StdEncoding.EncodeToString(letterPDF(t)),
		Name:      "bare.pdf",
	})
	require.NoError(t, err)
	assert.Empty(t, opened.Fields)
	assert.Equal(t, 1, opened.NumPages)

	_, err = s.FillField(FillFieldRequest{SessionID: "missing", FieldID: "x"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.FillField(FillFieldRequest{SessionID: opened.SessionID, FieldID: "x", Mode: "scribble"})
	assert.ErrorIs(t, err, signerr.ErrValidation)
	_, err = s.AdoptSignature(AdoptSignatureRequest{SessionID: opened.SessionID, ImageBase64: "%%%"})
	assert.ErrorIs(t, err, signerr.ErrValidation)
	_, err = s.AdoptSignature(AdoptSignatureRequest{SessionID: opened.SessionID, Strokes: []raster.Stroke{{}}})
	assert.Error(t, err)
	_, err = s.CloseSession(CloseSessionRequest{SessionID: "missing"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_AdoptDrawnSignature(t *testing.T) {
	s := newTestService(t, t.TempDir())
	opened, err := s.OpenTemplate(context.Background(), OpenTemplateRequest{
		Template: leaseTemplate(base64.StdEncoding.EncodeToString(letterPDF(t))),
	})
	require.NoError(t, err)

	adopted, err := s.AdoptSignature(AdoptSignatureRequest{
		SessionID:    opened.SessionID,
		Name:         "Jane Roe",
		CanvasWidth:  300,
		CanvasHeight: 100,
		Strokes: []raster.Stroke{{Points: []raster.Point{
			{X: 20, Y: 50, Seq: 1}, {X: 120, Y: 40, Seq: 2}, {X: 260, Y: 60, Seq: 3},
		}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "drawn", adopted.Source)
	assert.Equal(t, "JR", adopted.Initials)

	filled, err := s.FillField(FillFieldRequest{SessionID: opened.SessionID, FieldID: "tenant_sig", Mode: "adopted-signature"})
	require.NoError(t, err)
	assert.Equal(t, "signature_image", filled.Kind)
}

func TestService_RequiredRadioGroupMetBySelection(t *testing.T) {
	s := newTestService(t, t.TempDir())
	ctx := context.Background()

	tpl := strings.ReplaceAll(leaseTemplate(base64.StdEncoding.EncodeToString(letterPDF(t))),
		`"groupId": "plan"}`, `"groupId": "plan", "required": true}`)
	opened, err := s.OpenTemplate(ctx, OpenTemplateRequest{Template: tpl})
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_sig", "start", "agree", "plan-a"}, opened.Required)
	id := opened.SessionID

	_, err = s.AdoptSignature(AdoptSignatureRequest{SessionID: id, Name: "Jane Q Roe"})
	require.NoError(t, err)
	for _, fill := range []FillFieldRequest{
		{FieldID: "tenant_sig", Mode: "adopted-signature"},
		{FieldID: "start", Value: "2025-01-31"},
		{FieldID: "agree", Mode: "check"},
	} {
		fill.SessionID = id
		_, err := s.FillField(fill)
		require.NoError(t, err, fill.FieldID)
	}

	_, err = s.Finalize(ctx, FinalizeRequest{SessionID: id})
	require.ErrorIs(t, err, signerr.ErrIncomplete)
	var se *signerr.SignError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"plan-a"}, se.Missing)

	_, err = s.SelectRadio(SelectRadioRequest{SessionID: id, FieldID: "plan-b"})
	require.NoError(t, err)

	res, err := s.Finalize(ctx, FinalizeRequest{SessionID: id})
	require.NoError(t, err)
	assert.NotZero(t, res.Bytes)
}

func TestNewService_UnknownInspector(t *testing.T) {
	_, err := NewService(Options{Inspector: "poppler", Logger: logging.Discard()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown library type")

	s, err := NewService(Options{Inspector: wrapper.LibraryLedongthuc, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
