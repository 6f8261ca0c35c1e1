// Route registration and go-chi router setup. Public routes (/health,
// /auth/token) sit outside the JWT gate; everything under /api/v1 requires a
// Bearer token minted by the auth handler.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/matiasleandrokruk/notepilot/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/notepilot/internal/api/middleware"
	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
)

// Orchestrator is the full service surface the protected routes need. The
// chain orchestrator satisfies it; tests substitute a stub.
type Orchestrator interface {
	handlers.ChatService
	handlers.ModelService
	handlers.SettingsService
	handlers.ConfigService
	handlers.IndexService
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Store     *settings.Store
	Chats     *model.ChatRegistry
	Embeds    *model.EmbeddingRegistry
	Orch      Orchestrator
	Box       handlers.Encryptor
	APIToken  string
	JWTSecret []byte
}

// NewRouter creates and configures the chi router with all routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// The desktop client calls from an app-local origin, so the API answers
	// preflights permissively. Auth still requires the Bearer JWT.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// ===== PUBLIC ROUTES (no auth required) =====

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	authHandler := handlers.NewAuthHandler(d.APIToken, d.JWTSecret)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.Token) // POST /auth/token
	})

	// ===== PROTECTED ROUTES (JWT required via AuthMiddleware) =====

	chatHandler := handlers.NewChatHandler(d.Orch)
	modelsHandler := handlers.NewModelsHandler(d.Orch, d.Chats, d.Embeds, d.Store)
	settingsHandler := handlers.NewSettingsHandler(d.Store, d.Orch, d.Box)
	configHandler := handlers.NewConfigHandler(d.Orch)
	indexHandler := handlers.NewIndexHandler(d.Orch)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.AuthMiddleware(d.JWTSecret))

		r.Post("/chat", chatHandler.Chat) // POST /api/v1/chat (SSE)

		r.Route("/models", func(r chi.Router) {
			r.Get("/", modelsHandler.ListModels)                 // GET /api/v1/models
			r.Post("/ping", modelsHandler.PingModel)             // POST /api/v1/models/ping
			r.Post("/activate", modelsHandler.ActivateModel)     // POST /api/v1/models/activate
			r.Get("/{key}/config", configHandler.GetConfig)      // GET /api/v1/models/{key}/config
			r.Patch("/{key}/config", configHandler.UpdateConfig) // PATCH /api/v1/models/{key}/config
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.GetSettings)      // GET /api/v1/settings
			r.Patch("/", settingsHandler.UpdateSettings) // PATCH /api/v1/settings
		})

		r.Route("/index", func(r chi.Router) {
			r.Post("/refresh", indexHandler.RefreshIndex) // POST /api/v1/index/refresh
		})
	})

	return r
}
