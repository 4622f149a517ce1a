package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/transcribegateway/internal/api/handlers"
	"github.com/nikhilbhutani/transcribegateway/internal/api/middleware"
	"github.com/nikhilbhutani/transcribegateway/internal/config"
	"github.com/nikhilbhutani/transcribegateway/internal/gateway"
	"github.com/nikhilbhutani/transcribegateway/internal/metrics"
)

type Router struct {
	mux     *chi.Mux
	cfg     *config.Config
	svc     *gateway.Service
	metrics *metrics.Metrics
	limiter middleware.Limiter
	deps    map[string]handlers.Pinger
}

// NewRouter wires the HTTP surface. limiter may be nil to disable rate
// limiting; deps lists the dependencies checked by /readyz.
func NewRouter(cfg *config.Config, svc *gateway.Service, m *metrics.Metrics, limiter middleware.Limiter, deps map[string]handlers.Pinger) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		cfg:     cfg,
		svc:     svc,
		metrics: m,
		limiter: limiter,
		deps:    deps,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	var httpRec middleware.HTTPRecorder
	if rt.metrics != nil {
		httpRec = rt.metrics
	}

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(httpRec))
	r.Use(chimiddleware.Recoverer)
	if len(rt.cfg.CORS.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(rt.cfg.CORS.AllowedOrigins))
	}

	// Health endpoints
	health := handlers.NewHealthHandler(rt.deps)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	transcribeH := handlers.NewTranscribeHandler(rt.svc, rt.cfg.Upload.MaxMemory)
	r.Route("/api/transcribe", func(r chi.Router) {
		// Only submissions are limited, and over-limit callers still get a
		// 200 backup envelope. The health GET is never limited.
		submit := r.With()
		if rt.limiter != nil {
			submit = r.With(middleware.RateLimit(rt.limiter, http.HandlerFunc(transcribeH.Throttled)))
		}
		submit.Post("/", transcribeH.Transcribe)
		r.Get("/", transcribeH.Health)
	})

	return r
}
