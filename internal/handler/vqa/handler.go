package vqa

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/smolvqa/backend/internal/imaging"
	vqaService "github.com/zhouzirui/smolvqa/backend/internal/service/vqa"
	"github.com/zhouzirui/smolvqa/backend/pkg/utils"
)

// Uploads larger than this are rejected before decoding.
const maxUploadBytes = 16 << 20

// Handler exposes the VQA session lifecycle over HTTP.
type Handler struct {
	store *vqaService.Store
}

// New creates the VQA handler. A nil store means the model backend is not
// configured; every route then answers 503.
func New(store *vqaService.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the VQA routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/vqa/init", h.handleInit)
	r.Post("/vqa/ask", h.handleAsk)
	r.Get("/vqa/session/{sessionID}", h.handleTranscript)
	r.Delete("/vqa/session/{sessionID}", h.handleDelete)
}

// handleInit accepts an image as a multipart file field "image" or as a
// data-URL/base64 form or JSON field "image_data", captions it, and opens
// a session for it.
func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "model backend unavailable")
		return
	}

	payload, err := h.extractImage(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.store.Create(r.Context(), payload)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"caption":    session.Caption,
	})
}

// handleAsk runs one question/answer turn against an existing session.
// The frontend posts form fields; JSON bodies work too.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "model backend unavailable")
		return
	}

	sessionID, question, err := askParams(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := h.store.Ask(r.Context(), sessionID, question)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// handleTranscript returns the caption and full history of a session.
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "model backend unavailable")
		return
	}

	session, err := h.store.Transcript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

// handleDelete tears a session down explicitly.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "model backend unavailable")
		return
	}

	if err := h.store.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// extractImage pulls the uploaded image out of the request in whichever
// shape the client sent it.
func (h *Handler) extractImage(r *http.Request) (imaging.Payload, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			ImageData string `json:"image_data"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&body); err != nil {
			return imaging.Payload{}, errors.New("invalid request body")
		}
		return imaging.DecodeDataURL(body.ImageData)
	}

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return imaging.Payload{}, errors.New("invalid multipart form")
		}
		if file, _, err := r.FormFile("image"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
			if err != nil {
				return imaging.Payload{}, errors.New("failed to read uploaded image")
			}
			return imaging.Decode(data)
		}
	} else if err := r.ParseForm(); err != nil {
		return imaging.Payload{}, errors.New("invalid form body")
	}

	if pasted := r.FormValue("image_data"); pasted != "" {
		return imaging.DecodeDataURL(pasted)
	}

	return imaging.Payload{}, errors.New("image file or image_data field is required")
}

func askParams(r *http.Request) (sessionID, question string, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			SessionID string `json:"session_id"`
			Question  string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", errors.New("invalid request body")
		}
		return body.SessionID, body.Question, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", errors.New("invalid form body")
	}
	return r.FormValue("session_id"), r.FormValue("question"), nil
}

// statusFor maps store errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vqaService.ErrInvalidInput), errors.Is(err, imaging.ErrDecode), errors.Is(err, imaging.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, vqaService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, vqaService.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
