package health

import (
	"net/http"

	ai "github.com/zhouzirui/smolvqa/backend/internal/service/ai"
	"github.com/zhouzirui/smolvqa/backend/pkg/utils"
)

// Handler answers the frontend's health poll with model metadata.
type Handler struct {
	aiSvc *ai.Service
}

// New creates the health handler; aiSvc may be nil when the model backend
// is not configured.
func New(aiSvc *ai.Service) *Handler {
	return &Handler{aiSvc: aiSvc}
}

// Handle reports whether the inference service is up. Read-only; the
// session store is not involved.
func (h *Handler) Handle(w http.ResponseWriter, _ *http.Request) {
	if h.aiSvc == nil {
		utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "offline",
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  h.aiSvc.ModelID(),
		"device": h.aiSvc.Device(),
	})
}
