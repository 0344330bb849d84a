package httpapi

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/a3tai/mcp-pdf-signer/internal/httputil"
	"github.com/a3tai/mcp-pdf-signer/internal/logging"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf"
	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
)

func (a *api) read(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.ReadJSON(w, r, a.opts.MaxBody, v); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return false
	}
	return true
}

func (a *api) openTemplate(w http.ResponseWriter, r *http.Request) {
	var req pdf.OpenTemplateRequest
	if !a.read(w, r, &req) {
		return
	}
	res, err := a.svc.OpenTemplate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+res.SessionID)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Status(pdf.StatusRequest{SessionID: chi.URLParam(r, "sessionID")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) closeSession(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.CloseSession(pdf.CloseSessionRequest{SessionID: chi.URLParam(r, "sessionID")})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) adoptSignature(w http.ResponseWriter, r *http.Request) {
	var req pdf.AdoptSignatureRequest
	if !a.read(w, r, &req) {
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	res, err := a.svc.AdoptSignature(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) fillField(w http.ResponseWriter, r *http.Request) {
	var req pdf.FillFieldRequest
	if !a.read(w, r, &req) {
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	req.FieldID = chi.URLParam(r, "fieldID")
	res, err := a.svc.FillField(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) clearField(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.ClearField(pdf.ClearFieldRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		FieldID:   chi.URLParam(r, "fieldID"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) selectRadio(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.SelectRadio(pdf.SelectRadioRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		FieldID:   chi.URLParam(r, "fieldID"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// previewField answers with JSON, or with the bare PNG when ?format=png and
// the field renders as an image
func (a *api) previewField(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.PreviewField(pdf.PreviewFieldRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		FieldID:   chi.URLParam(r, "fieldID"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "png" && res.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(res.ImageBase64)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) setPageImage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "BAD_PAGE", "page must be an integer", nil)
		return
	}
	var req pdf.SetPageImageRequest
	if !a.read(w, r, &req) {
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	req.Page = page
	res, err := a.svc.SetPageImage(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) finalize(w http.ResponseWriter, r *http.Request) {
	var req pdf.FinalizeRequest
	if !a.read(w, r, &req) {
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")
	res, err := a.svc.Finalize(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (a *api) serverInfo(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.ServerInfo(r.Context(), a.opts.ServerName, a.opts.Version)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// statusOf maps a service error onto an HTTP status and error code
func statusOf(err error) (int, string) {
	switch {
	case stderrors.Is(err, pdf.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELLED"
	}

	kind := signerr.KindOf(err)
	switch kind {
	case signerr.KindValidationRejection:
		return http.StatusUnprocessableEntity, kind.String()
	case signerr.KindUnknownField:
		return http.StatusNotFound, kind.String()
	case signerr.KindInvalidTemplate, signerr.KindNoDocument:
		return http.StatusBadRequest, kind.String()
	case signerr.KindIncomplete, signerr.KindNoPages, signerr.KindInconsistentField:
		return http.StatusConflict, kind.String()
	case signerr.KindExportFailure:
		return http.StatusBadGateway, kind.String()
	case signerr.KindParseFailure, signerr.KindRenderFailure:
		return http.StatusInternalServerError, kind.String()
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		logger.Debug("request rejected", "path", r.URL.Path, "code", code, "err", err)
	}

	var details map[string]any
	var se *signerr.SignError
	if stderrors.As(err, &se) {
		details = map[string]any{}
		if se.FieldID != "" {
			details["field_id"] = se.FieldID
		}
		if se.Page > 0 {
			details["page"] = se.Page
		}
		if len(se.Missing) > 0 {
			details["missing"] = se.Missing
		}
		if len(details) == 0 {
			details = nil
		}
	}
	httputil.WriteError(w, status, code, signerr.UserMessage(err), details)
}
