package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-signer/internal/config"
	"github.com/a3tai/mcp-pdf-signer/internal/logging"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/export"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TemplateDirectory = t.TempDir()
	cfg.ServerName = "test-server"
	cfg.Version = "1.0.0"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, string) {
	t.Helper()
	outDir := t.TempDir()
	svc, err := pdf.NewService(pdf.Options{
		Directory:   cfg.TemplateDirectory,
		MaxFileSize: cfg.MaxFileSize,
		Channels:    []export.DeliveryChannel{&export.DownloadChannel{Dir: outDir}},
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	s, err := NewServer(cfg, svc, logging.Discard())
	require.NoError(t, err)
	return s, outDir
}

func invoice(t *testing.T) string {
	t.Helper()
	doc := fpdf.New("P", "pt", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Text(50, 50, "Invoice approval")
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))

	return fmt.Sprintf(`name: invoice
pdfBase64: %s
fields:
  - {id: approver, type: name, page: 1, x: 50, y: 100, width: 200, height: 20, required: true}
  - {id: approved_on, type: date, page: 1, x: 50, y: 130, width: 120, height: 20}
  - {id: sig, type: signature, page: 1, nx: 0.1, ny: 0.8, nw: 0.4, nh: 0.08, required: true}
`, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	svc, err := pdf.NewService(pdf.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	s, err := NewServer(cfg, svc, nil)
	require.NoError(t, err)
	assert.Same(t, cfg, s.config)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)

	_, err = NewServer(cfg, nil, nil)
	assert.ErrorContains(t, err, "pdfService cannot be nil")

	_, err = NewServer(nil, svc, nil)
	assert.ErrorContains(t, err, "config cannot be nil")
}

func TestServer_SigningTools(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	ctx := context.Background()

	res, err := s.handleOpenTemplate(ctx, call(map[string]any{"template": invoice(t)}))
	require.NoError(t, err)
	require.False(t, res.IsError, extractTextFromResult(res))
	text := extractTextFromResult(res)
	assert.Contains(t, text, "Opened invoice (1 page(s))")
	assert.Contains(t, text, "approver [name] page 1, required")

	sessionID := strings.TrimSpace(strings.SplitN(strings.SplitN(text, "Session: ", 2)[1], "\n", 2)[0])
	require.NotEmpty(t, sessionID)

	res, err = s.handleAdoptSignature(ctx, call(map[string]any{"session_id": sessionID, "name": "Grace Hopper", "color": "#1a237e"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(res), "Adopted typed signature for Grace Hopper (initials GH")

	res, err = s.handleFillField(ctx, call(map[string]any{"session_id": sessionID, "field_id": "approved_on", "value": "2025-06-01"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(res), `Filled approved_on with "06/01/2025"`)

	res, err = s.handleFillField(ctx, call(map[string]any{"session_id": sessionID, "field_id": "approved_on", "value": "13/45/2025"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleStatus(ctx, call(map[string]any{"session_id": sessionID}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(res), "Missing required fields: [approver sig]")

	res, err = s.handleFinalize(ctx, call(map[string]any{"session_id": sessionID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, extractTextFromResult(res), "approver, sig")

	for _, fill := range []map[string]any{
		{"session_id": sessionID, "field_id": "approver", "value": "Grace Hopper"},
		{"session_id": sessionID, "field_id": "sig", "mode": "adopted-signature"},
	} {
		res, err = s.handleFillField(ctx, call(fill))
		require.NoError(t, err)
		require.False(t, res.IsError, extractTextFromResult(res))
	}

	res, err = s.handlePreviewField(ctx, call(map[string]any{"session_id": sessionID, "field_id": "sig"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var image *mcp.ImageContent
	for _, c := range res.Content {
		switch ic := c.(type) {
		case mcp.ImageContent:
			image = &ic
		case *mcp.ImageContent:
			image = ic
		}
	}
	require.NotNil(t, image, "preview of a signature should carry an image")
	assert.Equal(t, "image/png", image.MIMEType)

	res, err = s.handlePreviewField(ctx, call(map[string]any{"session_id": sessionID, "field_id": "approver"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(res), "Field approver on page 1")

	res, err = s.handleFinalize(ctx, call(map[string]any{"session_id": sessionID}))
	require.NoError(t, err)
	require.False(t, res.IsError, extractTextFromResult(res))
	text = extractTextFromResult(res)
	assert.Contains(t, text, "Signed document: invoice-signed.pdf")
	assert.Contains(t, text, "Delivered via download")
	assert.Contains(t, text, "Fields rendered: 3")

	res, err = s.handleCloseSession(ctx, call(map[string]any{"session_id": sessionID}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = s.handleStatus(ctx, call(map[string]any{"session_id": sessionID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, extractTextFromResult(res), "session not found")
}

func TestServer_RadioAndClear(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	ctx := context.Background()

	opened, err := s.pdfService.OpenTemplate(ctx, pdf.OpenTemplateRequest{Template: invoice(t) + `  - {id: net30, type: radio, page: 1, x: 50, y: 200, width: 12, height: 12, groupId: terms}
  - {id: net60, type: radio, page: 1, x: 50, y: 220, width: 12, height: 12, groupId: terms}
`})
	require.NoError(t, err)
	id := opened.SessionID

	res, err := s.handleSelectRadio(ctx, call(map[string]any{"session_id": id, "field_id": "net60"}))
	require.NoError(t, err)
	assert.Equal(t, "Selected net60 in group terms", extractTextFromResult(res))

	res, err = s.handleClearField(ctx, call(map[string]any{"session_id": id, "field_id": "approver"}))
	require.NoError(t, err)
	assert.Equal(t, "approver was already empty", extractTextFromResult(res))

	_, err = s.handleFillField(ctx, call(map[string]any{"session_id": id, "field_id": "approver", "value": "Ops"}))
	require.NoError(t, err)
	res, err = s.handleClearField(ctx, call(map[string]any{"session_id": id, "field_id": "approver"}))
	require.NoError(t, err)
	assert.Equal(t, "Cleared approver", extractTextFromResult(res))
}

func TestServer_InvalidArguments(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	ctx := context.Background()

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"sign_adopt_signature": s.handleAdoptSignature,
		"sign_fill_field":      s.handleFillField,
		"sign_select_radio":    s.handleSelectRadio,
		"sign_clear_field":     s.handleClearField,
		"sign_set_page_image":  s.handleSetPageImage,
		"sign_status":          s.handleStatus,
		"sign_preview_field":   s.handlePreviewField,
		"sign_finalize":        s.handleFinalize,
		"sign_close_session":   s.handleCloseSession,
	}
	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			res, err := handler(ctx, call(map[string]any{}))
			require.NoError(t, err)
			assert.True(t, res.IsError, "missing session_id should be reported as a tool error")
		})
	}

	t.Run("open without a source", func(t *testing.T) {
		res, err := s.handleOpenTemplate(ctx, call(map[string]any{}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, extractTextFromResult(res), "exactly one of path, template or pdf_base64 is required")
	})

	t.Run("wrongly typed argument", func(t *testing.T) {
		res, err := s.handleSetPageImage(ctx, call(map[string]any{"session_id": "x", "image_base64": "AA==", "page": "one"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, extractTextFromResult(res), "invalid arguments")
	})
}

func TestServer_ServerInfo(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	res, err := s.handleServerInfo(context.Background(), call(nil))
	require.NoError(t, err)
	text := extractTextFromResult(res)
	assert.Contains(t, text, "test-server v1.0.0")
	assert.Contains(t, text, "sign_open_template")
	assert.Contains(t, text, "sign_finalize")
	assert.Contains(t, text, "Delivery: [download]")
}

func TestFormatFinalizeResult(t *testing.T) {
	s := &Server{}
	text := s.formatFinalizeResult(&pdf.FinalizeResult{
		FileName: "lease-signed.pdf",
		Bytes:    2048,
		Strategy: "raster",
		Delivery: &export.DeliveryResult{Channel: "manual", Location: "/tmp/signed-1/lease-signed.pdf", Pages: 2, Manual: true},
		Degraded: []string{"sig"},
	})

	assert.Contains(t, text, "lease-signed.pdf (2048 bytes, raster)")
	assert.Contains(t, text, "Saved for manual download: /tmp/signed-1/lease-signed.pdf")
	assert.Contains(t, text, "Pages: 2")
	assert.Contains(t, text, "Rendered as vector marks: [sig]")
}

// Helper function to extract text from a CallToolResult
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}
	return ""
}

func TestServer_OpenBareDocumentOverProtocol(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	doc := fpdf.New("P", "pt", "Letter", "")
	doc.AddPage()
	doc.AddPage()
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))

	msg := fmt.Sprintf(`{"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": {"name": "sign_open_template", "arguments": {"pdf_base64": %q, "name": "lease.pdf"}}}`,
		base64.StdEncoding.EncodeToString(buf.Bytes()))

	var resp mcp.JSONRPCMessage
	require.NotPanics(t, func() {
		resp = s.mcpServer.HandleMessage(context.Background(), []byte(msg))
	})
	result, ok := resp.(mcp.JSONRPCResponse)
	require.True(t, ok, "unexpected response %#v", resp)
	toolResult, ok := result.Result.(mcp.CallToolResult)
	require.True(t, ok)
	assert.Contains(t, extractTextFromResult(&toolResult), "Opened lease.pdf (2 page(s))")
}

func TestServer_ToolPanicIsRecovered(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))
	s.mcpServer.AddTool(mcp.NewTool("sign_broken"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("boom")
	})

	var resp mcp.JSONRPCMessage
	require.NotPanics(t, func() {
		resp = s.mcpServer.HandleMessage(context.Background(),
			[]byte(`{"jsonrpc": "2.0", "id": 2, "method": "tools/call", "params": {"name": "sign_broken"}}`))
	})
	rpcErr, ok := resp.(mcp.JSONRPCError)
	require.True(t, ok)
	assert.Contains(t, rpcErr.Error.Message, "panic recovered in sign_broken")
}
