package api

import (
	"net/http"

	"github.com/dom/dataroom/internal/api/handlers"
	"github.com/dom/dataroom/internal/api/middleware"
	"github.com/dom/dataroom/internal/config"
	"github.com/dom/dataroom/internal/events"
	"github.com/dom/dataroom/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(services *service.Services, hub *events.Hub, cfg *config.Config, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.FrontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.OAuth, cfg.FrontendURL, logger)
	fileHandler := handlers.NewFileHandler(services.Tokens, services.Import, services.Files, logger)
	eventsHandler := handlers.NewEventsHandler(hub, cfg.FrontendURL, logger)

	requireSession := middleware.Session(services.Tokens, logger)

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.PerMinute(cfg.AuthRateLimitPerMinute).Middleware)

		r.Get("/google", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
		r.Get("/status", authHandler.Status)
		r.Post("/logout", authHandler.Logout)
	})

	r.Route("/files", func(r chi.Router) {
		r.Get("/", fileHandler.List)
		r.Get("/events", eventsHandler.Handle)
		r.Get("/{id}/download", fileHandler.Download)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/import", fileHandler.Import)
			r.Delete("/{id}", fileHandler.Delete)
		})
	})

	return r
}
