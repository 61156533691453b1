// Package httpapi assembles the renderhub HTTP surface.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"renderhub/internal/httpapi/handlers"
	"renderhub/internal/httpkit"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/pkg/middleware"
)

type Options struct {
	CORSAllowedOrigins []string
	// RequestTimeout bounds every route except the websocket log stream.
	// Zero disables it.
	RequestTimeout time.Duration
	// RateLimitRPS is the per-client request rate. Zero disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(h *handlers.Handler, opts Options) http.Handler {
	log := h.Log()
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.SecureHeaders)
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))
	r.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))

	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- LIVE LOGS ----
	r.Get("/logs/stream", wrap(h.StreamLogs))

	r.Group(func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}

		// ---- HEALTH ----
		r.Get("/health", wrap(h.Health))

		// ---- RENDERS ----
		r.Post("/renders", wrap(h.PostRender))
		r.Get("/renders", wrap(h.ListRenders))
		r.Get("/renders/{jobId}", wrap(h.GetRender))
		r.Delete("/renders/{jobId}", wrap(h.DeleteRender))

		// ---- LOGS ----
		r.Get("/logs", wrap(h.GetLogs))

		// ---- WEBHOOKS ----
		r.Get("/webhook-logs", wrap(h.ListWebhooks))
		r.Post("/webhook-logs/register", wrap(h.RegisterWebhook))
		r.Post("/webhook-logs/unregister", wrap(h.UnregisterWebhook))

		// ---- ARTIFACTS ----
		if h.ServesArtifacts() {
			r.Get("/artifacts/*", wrap(h.GetArtifact))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, errors.CodeNotFound, "route not found", map[string]any{"path": r.URL.Path})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		var env httpkit.ErrorEnvelope
		env.Error.Code = "METHOD_NOT_ALLOWED"
		env.Error.Message = "method not allowed"
		env.Error.Details = map[string]any{"method": r.Method}
		httpkit.WriteJSON(w, http.StatusMethodNotAllowed, env)
	})

	return r
}
