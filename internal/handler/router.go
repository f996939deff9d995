package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/smolvqa/backend/internal/handler/health"
	"github.com/zhouzirui/smolvqa/backend/internal/handler/stream"
	vqaHandler "github.com/zhouzirui/smolvqa/backend/internal/handler/vqa"
	middlewarePkg "github.com/zhouzirui/smolvqa/backend/internal/middleware"
	"github.com/zhouzirui/smolvqa/backend/internal/model/catalog"
	aiService "github.com/zhouzirui/smolvqa/backend/internal/service/ai"
	vqaService "github.com/zhouzirui/smolvqa/backend/internal/service/vqa"
	"github.com/zhouzirui/smolvqa/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. store is nil when the
// model backend is not configured; the routes stay mounted and answer 503
// so the frontend can show a sensible status.
func NewRouter(store *vqaService.Store, aiSvc *aiService.Service, tiers catalog.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	healthHandler := health.New(aiSvc)
	r.Get("/health", healthHandler.Handle)

	var streamHandler *stream.Handler
	if store != nil {
		streamHandler = stream.New(store)
	}

	r.Route("/api", func(api chi.Router) {
		vqaHandler.New(store).RegisterRoutes(api)

		api.Get("/models", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, tiers.List())
		})

		api.Get("/vqa/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "sessionID")
			question := r.URL.Query().Get("question")

			if streamHandler == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "model backend unavailable")
				return
			}
			if question == "" {
				utils.RespondError(w, http.StatusBadRequest, "question query parameter is required")
				return
			}

			if err := streamHandler.HandleStreamRequest(r.Context(), w, sessionID, question); err != nil {
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
