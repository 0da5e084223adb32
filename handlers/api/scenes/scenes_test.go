package scenes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"drawsync/session"
)

func newTestRouter(registry *session.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", HandleHealth(registry))
	r.Get("/api/sessions", HandleListSessions(registry))
	r.Route("/api/session/{sessionID}", func(r chi.Router) {
		r.Get("/", HandleGetSession(registry))
		r.Post("/elements", HandleReplaceElements(registry))
		r.Post("/append", HandleAppendElements(registry))
		r.Post("/viewport", HandleSetViewport(registry))
		r.Post("/clear", HandleClear(registry))
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return rec
}

func TestHandleReplaceElements(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	var resp ReplaceResponse
	rec := doJSON(t, router, http.MethodPost, "/api/session/s1/elements",
		`{"elements":[{"type":"rectangle","id":"r1"}],"appState":{"zoom":1}}`, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d", rec.Code, http.StatusOK)
	}
	if !resp.Success || resp.ElementCount != 1 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	var scene SceneResponse
	doJSON(t, router, http.MethodGet, "/api/session/s1", "", &scene)
	if len(scene.Elements) != 1 || scene.Elements[0]["id"] != "r1" {
		t.Errorf("Scene mismatch: %+v", scene.Elements)
	}
	if string(scene.AppState) != `{"zoom":1}` {
		t.Errorf("AppState mismatch: %s", scene.AppState)
	}
}

func TestHandleReplaceElements_ExtractsCameraCommands(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	doJSON(t, router, http.MethodPost, "/api/session/s1/elements",
		`{"elements":[{"type":"cameraUpdate","x":7},{"type":"rectangle","id":"r1"}]}`, nil)

	var scene SceneResponse
	doJSON(t, router, http.MethodGet, "/api/session/s1", "", &scene)

	if len(scene.Elements) != 1 || scene.Elements[0].Type() != "rectangle" {
		t.Errorf("Camera command leaked into elements: %+v", scene.Elements)
	}
	if scene.Viewport == nil || scene.Viewport.X != 7 {
		t.Errorf("Viewport not applied: %+v", scene.Viewport)
	}
	if scene.Viewport != nil && scene.Viewport.Width != 800 {
		t.Errorf("Expected default width, got %v", scene.Viewport.Width)
	}
}

func TestHandleAppendElements_Ordering(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	doJSON(t, router, http.MethodPost, "/api/session/s1/append",
		`{"elements":[{"type":"rectangle","id":"e1"}]}`, nil)

	var resp AppendResponse
	doJSON(t, router, http.MethodPost, "/api/session/s1/append",
		`{"elements":[{"type":"ellipse","id":"e2"}]}`, &resp)

	if resp.ElementCount != 2 {
		t.Errorf("Expected elementCount 2, got %d", resp.ElementCount)
	}

	var scene SceneResponse
	doJSON(t, router, http.MethodGet, "/api/session/s1", "", &scene)
	if scene.Elements[0]["id"] != "e1" || scene.Elements[1]["id"] != "e2" {
		t.Errorf("Append order violated: %+v", scene.Elements)
	}
}

func TestHandleSetViewport(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	var resp ViewportResponse
	doJSON(t, router, http.MethodPost, "/api/session/s1/viewport",
		`{"x":10,"y":20,"width":1024,"height":768}`, &resp)

	if !resp.Success || resp.Viewport.Width != 1024 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	var scene SceneResponse
	doJSON(t, router, http.MethodGet, "/api/session/s1", "", &scene)
	if scene.Viewport == nil || scene.Viewport.Height != 768 {
		t.Errorf("Viewport not stored: %+v", scene.Viewport)
	}
}

func TestHandleClear(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	doJSON(t, router, http.MethodPost, "/api/session/s1/elements",
		`{"elements":[{"type":"rectangle"}],"appState":{"zoom":2}}`, nil)
	doJSON(t, router, http.MethodPost, "/api/session/s1/viewport", `{"x":1,"y":1,"width":10,"height":10}`, nil)

	var resp ClearResponse
	doJSON(t, router, http.MethodPost, "/api/session/s1/clear", `{}`, &resp)
	if !resp.Success {
		t.Error("Expected success")
	}

	var scene SceneResponse
	doJSON(t, router, http.MethodGet, "/api/session/s1", "", &scene)
	if len(scene.Elements) != 0 || scene.Viewport != nil {
		t.Errorf("Clear did not reset the scene: %+v", scene)
	}
	if len(scene.AppState) != 0 && string(scene.AppState) != "null" {
		t.Errorf("Clear did not reset appState: %s", scene.AppState)
	}
}

func TestHandleGetSession_UnknownIDReturnsEmptyScene(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	var scene SceneResponse
	rec := doJSON(t, router, http.MethodGet, "/api/session/never-written", "", &scene)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for unknown session, got %d", rec.Code)
	}
	if scene.ID != "never-written" || len(scene.Elements) != 0 {
		t.Errorf("Expected an empty scene, got %+v", scene)
	}
}

func TestHandleHealth(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	registry.Get("s1")
	router := newTestRouter(registry)

	var resp HealthResponse
	doJSON(t, router, http.MethodGet, "/health", "", &resp)

	if resp.Status != "ok" {
		t.Errorf("Expected status ok, got %s", resp.Status)
	}
	if resp.Sessions != 1 {
		t.Errorf("Expected 1 session, got %d", resp.Sessions)
	}
}

func TestHandleListSessions(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	doJSON(t, router, http.MethodPost, "/api/session/bravo/append", `{"elements":[{"type":"rectangle"}]}`, nil)
	doJSON(t, router, http.MethodPost, "/api/session/alpha/append", `{"elements":[]}`, nil)

	var summaries []SessionSummary
	doJSON(t, router, http.MethodGet, "/api/sessions", "", &summaries)

	if len(summaries) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(summaries))
	}
	if summaries[0].ID != "alpha" || summaries[1].ID != "bravo" {
		t.Errorf("Expected sessions sorted by id, got %+v", summaries)
	}
	if summaries[1].ElementCount != 1 {
		t.Errorf("Expected bravo to have 1 element, got %d", summaries[1].ElementCount)
	}
}

func TestHandleReplaceElements_BadBody(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry)

	rec := doJSON(t, router, http.MethodPost, "/api/session/s1/elements", `{not json`, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}
