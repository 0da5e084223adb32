package assets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"drawsync/core"
	"drawsync/session"
	"drawsync/stores/memory"
)

func newTestRouter(registry *session.Registry, store core.AssetStore) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/session/{sessionID}", func(r chi.Router) {
		r.Post("/files", HandleUpload(registry, store))
		r.Get("/files/{fileID}", HandleFetch(registry, store))
	})
	return r
}

func pngDataURL(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func uploadBody(t *testing.T, fileID, dataURL, mimeType string) string {
	t.Helper()
	body, err := json.Marshal(UploadRequest{FileID: fileID, DataURL: dataURL, MimeType: mimeType})
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func postUpload(t *testing.T, router http.Handler, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/session/"+sessionID+"/files", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleUpload_Success(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	store := memory.NewStore()
	router := newTestRouter(registry, store)

	rec := postUpload(t, router, "s1", uploadBody(t, "f1", pngDataURL("pixels"), "image/png"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body)
	}

	var resp UploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.HasSuffix(resp.CDNURL, "s1/f1.png") {
		t.Errorf("Unexpected URL: %s", resp.CDNURL)
	}

	data, mimeType, err := store.Get(context.Background(), "s1/f1.png")
	if err != nil {
		t.Fatalf("Stored object missing: %v", err)
	}
	if string(data) != "pixels" || mimeType != "image/png" {
		t.Errorf("Stored object mismatch: %q %s", data, mimeType)
	}

	if _, ok := registry.Get("s1").File("f1"); !ok {
		t.Error("Upload did not register the asset record on the session")
	}
}

func TestHandleUpload_IdempotentDedup(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	store := memory.NewStore()
	router := newTestRouter(registry, store)
	body := uploadBody(t, "f1", pngDataURL("pixels"), "image/png")

	first := postUpload(t, router, "s1", body)
	second := postUpload(t, router, "s1", body)

	var url1, url2 UploadResponse
	if err := json.NewDecoder(first.Body).Decode(&url1); err != nil {
		t.Fatal(err)
	}
	if err := json.NewDecoder(second.Body).Decode(&url2); err != nil {
		t.Fatal(err)
	}

	if url1.CDNURL != url2.CDNURL {
		t.Errorf("Retried upload returned a different URL: %s vs %s", url1.CDNURL, url2.CDNURL)
	}
	if store.Len() != 1 {
		t.Errorf("Expected exactly one stored object, got %d", store.Len())
	}
}

func TestHandleUpload_MalformedDataURL(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	store := memory.NewStore()
	router := newTestRouter(registry, store)

	tests := []struct {
		name    string
		dataURL string
	}{
		{"no data prefix", "image/png;base64,aaaa"},
		{"no base64 marker", "data:image/png,plain"},
		{"invalid base64", "data:image/png;base64,@@@not-base64@@@"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postUpload(t, router, "s1", uploadBody(t, "f1", tt.dataURL, "image/png"))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}

	if store.Len() != 0 {
		t.Errorf("Malformed uploads must not write, store has %d objects", store.Len())
	}
}

func TestHandleUpload_UnknownMimeFallsBackToBin(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	store := memory.NewStore()
	router := newTestRouter(registry, store)

	rec := postUpload(t, router, "s1", uploadBody(t, "f1",
		"data:application/x-thing;base64,"+base64.StdEncoding.EncodeToString([]byte("blob")),
		"application/x-thing"))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, body %s", rec.Code, rec.Body)
	}
	if ok, _ := store.Exists(context.Background(), "s1/f1.bin"); !ok {
		t.Error("Expected object stored under .bin key")
	}
}

func TestHandleUpload_StorageDisabled(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry, nil)

	rec := postUpload(t, router, "s1", uploadBody(t, "f1", pngDataURL("x"), "image/png"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with storage disabled, got %d", rec.Code)
	}
}

func TestHandleUpload_MissingFileID(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry, memory.NewStore())

	rec := postUpload(t, router, "s1", uploadBody(t, "", pngDataURL("x"), "image/png"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fileId, got %d", rec.Code)
	}
}

func TestHandleFetch_ProxiesStoredAsset(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	store := memory.NewStore()
	router := newTestRouter(registry, store)

	postUpload(t, router, "s1", uploadBody(t, "f1", pngDataURL("pixels"), "image/png"))

	req := httptest.NewRequest(http.MethodGet, "/api/session/s1/files/f1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d", rec.Code)
	}
	if rec.Body.String() != "pixels" {
		t.Errorf("Body mismatch: %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type mismatch: %s", ct)
	}
}

func TestHandleFetch_UnknownFile(t *testing.T) {
	registry := session.NewRegistry(time.Minute)
	router := newTestRouter(registry, memory.NewStore())

	req := httptest.NewRequest(http.MethodGet, "/api/session/s1/files/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
