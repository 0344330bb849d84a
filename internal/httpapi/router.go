// Package httpapi exposes signing sessions as a JSON HTTP API. Each route maps
// onto one pdf.Service operation; session and field IDs travel in the path.
package httpapi

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/a3tai/mcp-pdf-signer/internal/logging"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf"
)

// Options configures the API
type Options struct {
	ServerName string
	Version    string
	// MaxBody bounds request bodies; base64 documents and page bitmaps
	// travel inline so this should exceed the service's file size limit
	MaxBody int64
	Logger  *log.Logger
}

type api struct {
	svc  *pdf.Service
	opts Options
}

// NewRouter builds the API routes over svc
func NewRouter(svc *pdf.Service, opts Options) chi.Router {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = svc.GetMaxFileSize()*4/3 + 64*1024
	}
	a := &api{svc: svc, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/info", a.serverInfo)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", a.openTemplate)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", a.status)
			r.Delete("/", a.closeSession)
			r.Post("/signature", a.adoptSignature)
			r.Post("/fields/{fieldID}", a.fillField)
			r.Delete("/fields/{fieldID}", a.clearField)
			r.Get("/fields/{fieldID}/preview", a.previewField)
			r.Post("/radio/{fieldID}", a.selectRadio)
			r.Put("/pages/{page}", a.setPageImage)
			r.Post("/finalize", a.finalize)
		})
	})
	return r
}

// requestLogger logs one line per request and carries a request-scoped
// logger in the context for handlers
func requestLogger(base *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))

			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}
