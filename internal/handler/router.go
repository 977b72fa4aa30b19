package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexi-tutor/lexi-api/internal/middleware"
	"github.com/lexi-tutor/lexi-api/pkg/logger"
)

// Handlers groups the endpoint handlers. Voice may be nil when speech is
// not configured.
type Handlers struct {
	Health        *HealthHandler
	Conversations *ConversationHandler
	Turns         *TurnHandler
	Voice         *VoiceHandler
	Stats         *StatsHandler
}

// RouterConfig holds HTTP settings.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
}

// NewRouter builds the HTTP route table.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", h.Conversations.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Conversations.Get)
				r.Post("/turns", h.Turns.Submit)
				if h.Voice != nil {
					r.Post("/voice", h.Voice.Submit)
				}
			})
		})

		if h.Voice != nil {
			r.Get("/audio/{streamID}", h.Voice.Audio)
		}
		r.Get("/stats", h.Stats.Get)
	})

	return r
}
