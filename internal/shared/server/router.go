package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/focusnest/challenge-service/internal/shared/dto"
)

// Version is reported by /healthz.
const Version = "v0.1.0"

type routerOptions struct {
	timeout    time.Duration
	middleware []func(http.Handler) http.Handler
}

// Option customizes NewRouter.
type Option func(*routerOptions)

// WithRequestTimeout overrides the global request timeout. Zero disables it, leaving
// timeouts to route groups (long-lived streams need this).
func WithRequestTimeout(d time.Duration) Option {
	return func(o *routerOptions) { o.timeout = d }
}

// WithMiddleware appends middleware that runs after the defaults.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(o *routerOptions) { o.middleware = append(o.middleware, mw...) }
}

// NewRouter returns a chi router pre-configured with default middleware and a health endpoint.
func NewRouter(service string, register func(r chi.Router), opts ...Option) *chi.Mux {
	o := routerOptions{timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if o.timeout > 0 {
		r.Use(middleware.Timeout(o.timeout))
	}
	for _, mw := range o.middleware {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Service: service, Version: Version})
	})

	if register != nil {
		register(r)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
