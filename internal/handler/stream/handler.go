package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	vqaService "github.com/zhouzirui/smolvqa/backend/internal/service/vqa"
	"github.com/zhouzirui/smolvqa/backend/pkg/utils"
)

// Handler streams answers over Server-Sent Events while the model is still
// generating, instead of making the client wait for the full turn.
type Handler struct {
	store *vqaService.Store
}

// New creates a new stream handler.
func New(store *vqaService.Store) *Handler {
	return &Handler{store: store}
}

// Response is one streamed frame.
type Response struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	Answer   string `json:"answer,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HandleStreamRequest runs one question/answer turn and forwards chunks as
// they arrive. The turn lands in the session history exactly as a regular
// ask would.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, question string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	answer, err := h.store.AskStream(ctx, sessionID, question, func(chunk string) error {
		utils.SendSSEChunk(w, flusher, Response{Event: "chunk", Content: chunk})
		return ctx.Err()
	})
	if err != nil {
		utils.SendSSEChunk(w, flusher, Response{Event: "error", Error: streamErrorMessage(err), Finished: true})
		return err
	}

	utils.SendSSEChunk(w, flusher, Response{Event: "done", Answer: answer, Finished: true})
	return nil
}

// streamErrorMessage keeps wire errors stable for the client while the
// full error goes to the log.
func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, vqaService.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, vqaService.ErrInvalidInput):
		return "question must not be empty"
	case errors.Is(err, vqaService.ErrInference):
		return "inference failed"
	default:
		return "streaming failed"
	}
}
