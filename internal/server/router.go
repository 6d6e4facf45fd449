package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studybuddy-ai/backend/internal/api"
	"github.com/studybuddy-ai/backend/internal/api/handlers"
	"github.com/studybuddy-ai/backend/internal/api/middleware"
)

// HealthStatus reports which hosted integrations are configured.
type HealthStatus struct {
	Status               string `json:"status"`
	AnthropicConfigured  bool   `json:"anthropic_configured"`
	RetrievalConfigured  bool   `json:"supermemory_configured"`
	CanvasConfigured     bool   `json:"canvas_configured"`
}

type RouterConfig struct {
	ChatHandler     *handlers.ChatHandler
	MaterialHandler *handlers.MaterialHandler
	CourseHandler   *handlers.CourseHandler
	CORSOrigins     []string
	Health          HealthStatus
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 30 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	health := cfg.Health
	health.Status = "ok"
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, health)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", cfg.ChatHandler.Chat)
		r.Post("/upload-material", cfg.MaterialHandler.Upload)

		r.Post("/canvas/sync", cfg.CourseHandler.SyncCanvas)

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", cfg.CourseHandler.List)
			r.Get("/{id}/modules", cfg.CourseHandler.ListModules)
			r.Post("/{id}/files/sync", cfg.CourseHandler.SyncFiles)
		})

		r.Route("/modules", func(r chi.Router) {
			r.Post("/{id}/complete", cfg.CourseHandler.CompleteModule)
			r.Put("/{id}/study-path", cfg.CourseHandler.SetStudyPath)
		})
	})

	return r
}
