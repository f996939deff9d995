package vqa

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/smolvqa/backend/internal/imaging"
	model "github.com/zhouzirui/smolvqa/backend/internal/model/vqa"
	vqaService "github.com/zhouzirui/smolvqa/backend/internal/service/vqa"
)

type fakeInference struct{}

func (fakeInference) Caption(_ context.Context, img imaging.Payload) (string, error) {
	return "a tiny test image", nil
}

func (fakeInference) Answer(_ context.Context, _ imaging.Payload, _ []model.Turn, question string) (string, error) {
	return "answer to " + question, nil
}

func (f fakeInference) AnswerStream(ctx context.Context, img imaging.Payload, turns []model.Turn, question string, emit func(string) error) (string, error) {
	answer, _ := f.Answer(ctx, img, turns, question)
	if err := emit(answer); err != nil {
		return "", err
	}
	return answer, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *vqaService.Store) {
	t.Helper()
	store := vqaService.NewStore(fakeInference{}, vqaService.Config{})
	handler := New(store)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func pngUpload(t *testing.T) (body *bytes.Buffer, contentType string) {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	body = &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "test.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(img.Bytes()); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func createSession(t *testing.T, r *chi.Mux) string {
	t.Helper()
	body, contentType := pngUpload(t)
	req := httptest.NewRequest(http.MethodPost, "/vqa/init", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("init: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var payload struct {
		SessionID string `json:"session_id"`
		Caption   string `json:"caption"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode init response: %v", err)
	}
	if payload.SessionID == "" || payload.Caption == "" {
		t.Fatalf("incomplete init response: %+v", payload)
	}
	return payload.SessionID
}

func TestInitWithUpload(t *testing.T) {
	r, _ := setupRouter(t)
	createSession(t, r)
}

func TestInitWithDataURL(t *testing.T) {
	r, _ := setupRouter(t)

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	payload := imaging.Payload{Data: img.Bytes(), MIME: "image/png"}

	form := url.Values{"image_data": {payload.DataURL()}}
	req := httptest.NewRequest(http.MethodPost, "/vqa/init", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestInitRejectsGarbage(t *testing.T) {
	r, _ := setupRouter(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("image", "notes.txt")
	part.Write([]byte("not an image"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/vqa/init", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestInitMissingImage(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/vqa/init", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestAskFormEncoded(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)

	form := url.Values{"session_id": {sessionID}, "question": {"what color is it"}}
	req := httptest.NewRequest(http.MethodPost, "/vqa/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var payload struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode ask response: %v", err)
	}
	if payload.Answer != "answer to what color is it" {
		t.Fatalf("unexpected answer %q", payload.Answer)
	}
}

func TestAskJSON(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)

	body, _ := json.Marshal(map[string]string{"session_id": sessionID, "question": "how many"})
	req := httptest.NewRequest(http.MethodPost, "/vqa/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestAskUnknownSession(t *testing.T) {
	r, _ := setupRouter(t)

	form := url.Values{"session_id": {"nonexistent-id"}, "question": {"x"}}
	req := httptest.NewRequest(http.MethodPost, "/vqa/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	r, store := setupRouter(t)
	sessionID := createSession(t, r)

	form := url.Values{"session_id": {sessionID}, "question": {"   "}}
	req := httptest.NewRequest(http.MethodPost, "/vqa/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	view, err := store.Transcript(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(view.Turns) != 0 {
		t.Fatalf("rejected question must not append, got %d turns", len(view.Turns))
	}
}

func TestTranscript(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)

	form := url.Values{"session_id": {sessionID}, "question": {"first question"}}
	req := httptest.NewRequest(http.MethodPost, "/vqa/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(httptest.NewRecorder(), req)

	getReq := httptest.NewRequest(http.MethodGet, "/vqa/session/"+sessionID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, getReq)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var view model.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(view.Turns) != 1 || view.Turns[0].Question != "first question" {
		t.Fatalf("unexpected transcript: %+v", view.Turns)
	}
}

func TestDeleteSession(t *testing.T) {
	r, _ := setupRouter(t)
	sessionID := createSession(t, r)

	delReq := httptest.NewRequest(http.MethodDelete, "/vqa/session/"+sessionID, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, delReq)
	if resp.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/vqa/session/"+sessionID, nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, getReq)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("transcript after delete: expected 404, got %d", resp.Code)
	}
}

func TestRoutesWithoutStore(t *testing.T) {
	handler := New(nil)
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/vqa/ask", strings.NewReader("session_id=x&question=y"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
