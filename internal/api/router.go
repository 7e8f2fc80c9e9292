package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"customer-manager/internal/common/logger"
)

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter registers the health, metrics and /api/v1 routes.
func NewRouter(h *Handler, cfg RouterConfig, log logger.Logger) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", h.handleGetState)

		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.handleListCustomers)
			r.Get("/{id}", h.handleGetCustomer)
			r.Delete("/{id}", h.handleDeleteCustomer)
			r.Post("/{id}/forms", h.handleOpenEditForm)
		})

		r.Route("/forms", func(r chi.Router) {
			r.Post("/", h.handleOpenCreateForm)
			r.Route("/{formId}", func(r chi.Router) {
				r.Get("/", h.handleGetForm)
				r.Delete("/", h.handleCancelForm)
				r.Put("/fields/{field}", h.handleSetField)
				r.Post("/blur/{field}", h.handleBlur)
				r.Post("/addresses", h.handleAddAddress)
				r.Delete("/addresses/{position}", h.handleRemoveAddress)
				r.Post("/submit", h.handleSubmit)
			})
		})
	})

	return r
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info("HTTP request", map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"durationMs": time.Since(start).Milliseconds(),
				"requestId":  middleware.GetReqID(r.Context()),
			})
		})
	}
}
