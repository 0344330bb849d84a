package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-pdf-signer/internal/config"
	"github.com/a3tai/mcp-pdf-signer/internal/descriptions"
	"github.com/a3tai/mcp-pdf-signer/internal/httpapi"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf"
	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
)

const shutdownTimeout = 10 * time.Second

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	logger     *log.Logger
}

// NewServer creates a new MCP server instance. A nil logger uses
// log.Default().
func NewServer(cfg *config.Config, pdfService *pdf.Service, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}
	if logger == nil {
		logger = log.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
		server.WithRecovery(),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
		logger:     logger,
	}

	s.registerTools()

	return s, nil
}

func sessionParam() mcp.ToolOption {
	return mcp.WithString("session_id",
		mcp.Required(),
		mcp.Description("Session ID returned by sign_open_template"),
	)
}

func fieldParam() mcp.ToolOption {
	return mcp.WithString("field_id",
		mcp.Required(),
		mcp.Description("Field ID from the template"),
	)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"sign_open_template",
		mcp.WithDescription(descriptions.GetToolDescription("sign_open_template")),
		mcp.WithString("path",
			mcp.Description("Template (.json, .yaml) or PDF file, relative to the configured directory"),
		),
		mcp.WithString("template",
			mcp.Description("Inline template as JSON or YAML"),
		),
		mcp.WithString("pdf_base64",
			mcp.Description("Bare PDF document, base64 encoded; opens a session with no fields"),
		),
		mcp.WithString("name",
			mcp.Description("Document name used for the signed file name"),
		),
	), s.handleOpenTemplate)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_adopt_signature",
		mcp.WithDescription(descriptions.GetToolDescription("sign_adopt_signature")),
		sessionParam(),
		mcp.WithString("name",
			mcp.Description("Full name of the signer, rendered in the signature font when nothing is drawn or uploaded"),
		),
		mcp.WithString("initials",
			mcp.Description("Initials; defaults to the first letter of each word of the name"),
		),
		mcp.WithString("font_family",
			mcp.Description("Signature font family"),
		),
		mcp.WithString("color",
			mcp.Description("Ink color as #RRGGBB"),
		),
		mcp.WithArray("strokes",
			mcp.Description("Drawn signature: strokes of {x, y, seq} points in canvas pixels"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"points": map[string]any{"type": "array"},
				},
			}),
		),
		mcp.WithNumber("canvas_width",
			mcp.Description("Width of the drawing canvas in pixels (default 600)"),
		),
		mcp.WithNumber("canvas_height",
			mcp.Description("Height of the drawing canvas in pixels (default 200)"),
		),
		mcp.WithNumber("line_width",
			mcp.Description("Pen width in canvas pixels"),
		),
		mcp.WithString("image_base64",
			mcp.Description("Uploaded signature image (PNG or JPEG), base64 encoded"),
		),
	), s.handleAdoptSignature)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_fill_field",
		mcp.WithDescription(descriptions.GetToolDescription("sign_fill_field")),
		sessionParam(),
		fieldParam(),
		mcp.WithString("value",
			mcp.Description("Value as typed; unused for adopted signatures"),
		),
		mcp.WithString("mode",
			mcp.Description("How to fill the field"),
			mcp.Enum("text", "check", "typed-signature", "adopted-signature"),
		),
	), s.handleFillField)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_select_radio",
		mcp.WithDescription(descriptions.GetToolDescription("sign_select_radio")),
		sessionParam(),
		fieldParam(),
	), s.handleSelectRadio)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_clear_field",
		mcp.WithDescription(descriptions.GetToolDescription("sign_clear_field")),
		sessionParam(),
		fieldParam(),
	), s.handleClearField)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_set_page_image",
		mcp.WithDescription(descriptions.GetToolDescription("sign_set_page_image")),
		sessionParam(),
		mcp.WithNumber("page",
			mcp.Required(),
			mcp.Description("1-based page number"),
		),
		mcp.WithString("image_base64",
			mcp.Required(),
			mcp.Description("Page bitmap (PNG or JPEG), base64 encoded"),
		),
		mcp.WithNumber("scale",
			mcp.Description("Bitmap pixels per PDF point (default 1)"),
		),
	), s.handleSetPageImage)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_status",
		mcp.WithDescription(descriptions.GetToolDescription("sign_status")),
		sessionParam(),
	), s.handleStatus)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_preview_field",
		mcp.WithDescription(descriptions.GetToolDescription("sign_preview_field")),
		sessionParam(),
		fieldParam(),
	), s.handlePreviewField)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_finalize",
		mcp.WithDescription(descriptions.GetToolDescription("sign_finalize")),
		sessionParam(),
		mcp.WithString("recipient_id",
			mcp.Description("Recipient identifier passed along to the submission endpoint"),
		),
		mcp.WithBoolean("include_document",
			mcp.Description("Return the signed PDF base64 encoded in the result"),
		),
	), s.handleFinalize)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_close_session",
		mcp.WithDescription(descriptions.GetToolDescription("sign_close_session")),
		sessionParam(),
	), s.handleCloseSession)

	s.mcpServer.AddTool(mcp.NewTool(
		"sign_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("sign_server_info")),
	), s.handleServerInfo)
}

// bindArguments decodes the tool arguments into v through their JSON form,
// so request structs share their json tags with the HTTP API
func bindArguments(request mcp.CallToolRequest, v any) error {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// toolError turns a service error into a tool result the model can act on
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Debug("tool call rejected", "tool", tool, "kind", signerr.KindOf(err), "err", err)
	return mcp.NewToolResultError(signerr.UserMessage(err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// Handler functions
func (s *Server) handleOpenTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req pdf.OpenTemplateRequest
	if err := bindArguments(request, &req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.OpenTemplate(ctx, req)
	if err != nil {
		return s.toolError("sign_open_template", err), nil
	}
	return mcp.NewToolResultText(s.formatOpenTemplateResult(result)), nil
}

func (s *Server) handleAdoptSignature(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := request.RequireString("session_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var req pdf.AdoptSignatureRequest
	if err := bindArguments(request, &req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.AdoptSignature(req)
	if err != nil {
		return s.toolError("sign_adopt_signature", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Adopted %s signature for %s (initials %s, %s, %s)",
		result.Source, result.Name, result.Initials, result.FontFamily, result.Color)), nil
}

func (s *Server) handleFillField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.FillField(pdf.FillFieldRequest{
		SessionID: sessionID,
		FieldID:   fieldID,
		Value:     request.GetString("value", ""),
		Mode:      request.GetString("mode", ""),
	})
	if err != nil {
		return s.toolError("sign_fill_field", err), nil
	}

	switch {
	case result.Cleared:
		return mcp.NewToolResultText(fmt.Sprintf("Cleared %s", result.FieldID)), nil
	case result.Value != "":
		return mcp.NewToolResultText(fmt.Sprintf("Filled %s with %q (%s)", result.FieldID, result.Value, result.Kind)), nil
	default:
		return mcp.NewToolResultText(fmt.Sprintf("Filled %s (%s)", result.FieldID, result.Kind)), nil
	}
}

func (s *Server) handleSelectRadio(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.SelectRadio(pdf.SelectRadioRequest{SessionID: sessionID, FieldID: fieldID})
	if err != nil {
		return s.toolError("sign_select_radio", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Selected %s in group %s", result.Selected, result.GroupID)), nil
}

func (s *Server) handleClearField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.ClearField(pdf.ClearFieldRequest{SessionID: sessionID, FieldID: fieldID})
	if err != nil {
		return s.toolError("sign_clear_field", err), nil
	}
	if !result.Removed {
		return mcp.NewToolResultText(fmt.Sprintf("%s was already empty", result.FieldID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cleared %s", result.FieldID)), nil
}

func (s *Server) handleSetPageImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := request.RequireString("session_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := request.RequireString("image_base64"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var req pdf.SetPageImageRequest
	if err := bindArguments(request, &req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.SetPageImage(req)
	if err != nil {
		return s.toolError("sign_set_page_image", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stored page %d bitmap (%.2f x %.2f points)",
		result.Page, result.Width, result.Height)), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.Status(pdf.StatusRequest{SessionID: sessionID})
	if err != nil {
		return s.toolError("sign_status", err), nil
	}
	return mcp.NewToolResultText(s.formatStatusResult(result)), nil
}

func (s *Server) handlePreviewField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PreviewField(pdf.PreviewFieldRequest{SessionID: sessionID, FieldID: fieldID})
	if err != nil {
		return s.toolError("sign_preview_field", err), nil
	}

	text := fmt.Sprintf("Field %s on page %d at (%.2f, %.2f), %.2f x %.2f points",
		result.FieldID, result.Page, result.X, result.Y, result.Width, result.Height)
	if result.Degraded {
		text += "\nThe image could not be rendered; a vector mark will be used instead."
	}
	if result.ImageBase64 != "" {
		return mcp.NewToolResultImage(text, result.ImageBase64, "image/png"), nil
	}
	text += fmt.Sprintf("\nText: %q at %dpt", result.Text, result.FontSize)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleFinalize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.Finalize(ctx, pdf.FinalizeRequest{
		SessionID:       sessionID,
		RecipientID:     request.GetString("recipient_id", ""),
		IncludeDocument: request.GetBool("include_document", false),
	})
	if err != nil {
		return s.toolError("sign_finalize", err), nil
	}
	if result.DocumentBase64 != "" {
		return jsonResult(result)
	}
	return mcp.NewToolResultText(s.formatFinalizeResult(result)), nil
}

func (s *Server) handleCloseSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.pdfService.CloseSession(pdf.CloseSessionRequest{SessionID: sessionID}); err != nil {
		return s.toolError("sign_close_session", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Closed session %s", sessionID)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.pdfService.ServerInfo(ctx, s.config.ServerName, s.config.Version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(s.formatServerInfoResult(result)), nil
}

// Formatting methods
func (s *Server) formatOpenTemplateResult(result *pdf.OpenTemplateResult) string {
	text := fmt.Sprintf("Opened %s (%d page(s))\n", result.Template, result.NumPages)
	text += fmt.Sprintf("Session: %s\n", result.SessionID)
	if !result.Parseable {
		text += "The document cannot be edited directly; supply page bitmaps with sign_set_page_image before finalizing.\n"
	}

	if len(result.Fields) == 0 {
		text += "\nNo fields; the document can be finalized as is.\n"
		return text
	}

	text += fmt.Sprintf("\nFields (%d):\n", len(result.Fields))
	for i, f := range result.Fields {
		text += fmt.Sprintf("%d. %s [%s] page %d", i+1, f.ID, f.Type, f.Page)
		if f.Required {
			text += ", required"
		}
		if f.GroupID != "" {
			text += fmt.Sprintf(", group %s", f.GroupID)
		}
		if f.OptionText != "" {
			text += fmt.Sprintf(", option %q", f.OptionText)
		}
		text += "\n"
	}

	if len(result.RadioGroups) > 0 {
		text += "\nRadio groups:\n"
		for _, g := range result.RadioGroups {
			text += fmt.Sprintf("  • %s (%s)\n", g.ID, g.Name)
		}
	}
	return text
}

func (s *Server) formatStatusResult(result *pdf.StatusResult) string {
	text := fmt.Sprintf("Session %s (%s)\n", result.ID, result.Template)
	text += fmt.Sprintf("Filled: %d of %d fields\n", len(result.Filled), result.Fields)
	text += fmt.Sprintf("Signature adopted: %t\n", result.Adopted)
	text += fmt.Sprintf("Directly editable: %t\n", result.Parseable)
	if len(result.PageImages) > 0 {
		text += fmt.Sprintf("Page bitmaps: %v\n", result.PageImages)
	}
	for group, selected := range result.Radio {
		text += fmt.Sprintf("Radio %s: %s\n", group, selected)
	}
	if result.Complete {
		text += "\nAll required fields are filled; the document is ready to finalize.\n"
	} else {
		text += fmt.Sprintf("\nMissing required fields: %v\n", result.Missing)
	}
	return text
}

func (s *Server) formatFinalizeResult(result *pdf.FinalizeResult) string {
	text := fmt.Sprintf("Signed document: %s (%d bytes, %s)\n", result.FileName, result.Bytes, result.Strategy)
	if d := result.Delivery; d != nil {
		switch {
		case d.Manual:
			text += fmt.Sprintf("Saved for manual download: %s\n", d.Location)
		default:
			text += fmt.Sprintf("Delivered via %s: %s\n", d.Channel, d.Location)
		}
		text += fmt.Sprintf("Pages: %d\n", d.Pages)
	}
	text += fmt.Sprintf("Fields rendered: %d\n", len(result.Rendered))
	for _, a := range result.Attempts {
		text += fmt.Sprintf("⚠️  %s composition failed first: %s\n", a.Strategy, a.Error)
	}
	if len(result.Degraded) > 0 {
		text += fmt.Sprintf("⚠️  Rendered as vector marks: %v\n", result.Degraded)
	}
	for _, sk := range result.Skipped {
		text += fmt.Sprintf("Skipped %s on page %d: %s\n", sk.FieldID, sk.Page, sk.Reason)
	}
	return text
}

func (s *Server) formatServerInfoResult(result *pdf.ServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Default Directory: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("✍️  Active Sessions: %d\n\n", result.ActiveSessions)

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("📂 Directory Contents (%d templates and documents found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 { // Limit to first 10 files for readability
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "📂 Directory Contents: No templates found in default directory\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += fmt.Sprintf("\n🧾 Field Types: %v\n", result.FieldTypes)
	text += fmt.Sprintf("🖊️  Fill Modes: %v\n", result.FillModes)
	text += fmt.Sprintf("🔤 Signature Fonts: %v\n", result.SignatureFonts)
	text += fmt.Sprintf("📤 Delivery: %v\n", result.DeliveryChannels)

	text += "\n" + result.UsageGuidance

	return text
}

// Handler returns the HTTP handler used in server mode: the JSON API plus
// the MCP SSE transport under /mcp
func (s *Server) Handler() http.Handler {
	router := httpapi.NewRouter(s.pdfService, httpapi.Options{
		ServerName: s.config.ServerName,
		Version:    s.config.Version,
		Logger:     s.logger,
	})
	sse := server.NewSSEServer(s.mcpServer,
		server.WithBaseURL("http://"+s.config.Address()),
		server.WithStaticBasePath("/mcp"),
	)
	router.Handle("/mcp/*", sse)
	return router
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves MCP over stdin/stdout until ctx is cancelled or stdin
// closes
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.Debug("starting signing server in stdio mode", "dir", s.config.TemplateDirectory)

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves the HTTP API until ctx is cancelled, then drains
// in-flight requests
func (s *Server) runServerMode(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting signing server", "addr", httpServer.Addr, "dir", s.config.TemplateDirectory)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.logger.Info("signing server stopped")
	return nil
}
