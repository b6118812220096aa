package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router, passed from main.go so
// the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey must be provided in X-API-Key or Authorization: Bearer.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public: health check and artifact bytes (browsers load assets from
	// plain <img>/<video> tags that cannot set auth headers).
	r.Get("/health", h.Health)
	r.Get("/assets/{id}", h.GetAsset)

	// API routes, protected by API key auth
	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Narrative structures
		r.Get("/structures", h.ListStructures)

		// Credential session
		r.Get("/credentials", h.GetCredentialStatus)
		r.Post("/credentials", h.SetCredential)
		r.Delete("/credentials", h.ClearCredential)

		// Per-tool batches and scenes
		r.Route("/tools/{tool}", func(r chi.Router) {
			r.Get("/batch", h.GetBatch)
			r.Post("/batch", h.StartBatch)
			r.Post("/batch/reset", h.ResetBatch)
			r.Post("/batch/voice-over", h.GenerateVoiceOver)

			r.Route("/scenes/{sceneID}", func(r chi.Router) {
				r.Post("/image", h.RegenerateImage)
				r.Post("/video", h.GenerateVideo)
				r.Put("/script", h.UpdateScript)
				r.Put("/video-prompt", h.UpdateVideoPrompt)
			})
		})
	})

	return r
}
