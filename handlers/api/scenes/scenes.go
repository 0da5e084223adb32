// Package scenes holds the HTTP mutation API. Every write follows the same
// shape: resolve the session, extract any embedded camera commands, mutate,
// broadcast, return a summary.
package scenes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"drawsync/core"
	"drawsync/session"
)

type (
	ElementsRequest struct {
		Elements []core.Element  `json:"elements"`
		AppState json.RawMessage `json:"appState,omitempty"`
	}

	AppendRequest struct {
		Elements []core.Element `json:"elements"`
	}

	ReplaceResponse struct {
		Success      bool `json:"success"`
		ElementCount int  `json:"elementCount"`
		Clients      int  `json:"clients"`
	}

	AppendResponse struct {
		Success      bool `json:"success"`
		ElementCount int  `json:"elementCount"`
	}

	ViewportResponse struct {
		Success  bool        `json:"success"`
		Viewport core.Camera `json:"viewport"`
	}

	ClearResponse struct {
		Success bool `json:"success"`
	}

	HealthResponse struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Clients  int    `json:"clients"`
	}

	SessionSummary struct {
		ID           string `json:"id"`
		ElementCount int    `json:"elementCount"`
		ClientCount  int    `json:"clientCount"`
	}

	SceneResponse struct {
		ID       string          `json:"id"`
		Elements []core.Element  `json:"elements"`
		AppState json.RawMessage `json:"appState"`
		Viewport *core.Camera    `json:"viewport"`
	}
)

// HandleHealth reports process liveness plus registry totals.
func HandleHealth(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, HealthResponse{
			Status:   "ok",
			Sessions: registry.Len(),
			Clients:  registry.ClientTotal(),
		})
	}
}

// HandleListSessions lists live sessions ordered by id.
func HandleListSessions(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := registry.Sessions()
		summaries := make([]SessionSummary, 0, len(sessions))
		for _, s := range sessions {
			summaries = append(summaries, SessionSummary{
				ID:           s.ID,
				ElementCount: s.ElementCount(),
				ClientCount:  s.ClientCount(),
			})
		}
		render.JSON(w, r, summaries)
	}
}

// HandleGetSession returns the full scene. Sessions are created lazily, so a
// read on an id nobody wrote to returns an empty scene, never a 404.
func HandleGetSession(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := registry.Get(chi.URLParam(r, "sessionID"))
		elements, appState, viewport := sess.Snapshot()
		render.JSON(w, r, SceneResponse{
			ID:       sess.ID,
			Elements: elements,
			AppState: appState,
			Viewport: viewport,
		})
	}
}

// HandleReplaceElements swaps the scene wholesale (bulk programmatic
// redraws). Camera commands embedded in the batch update the viewport and go
// out as a separate viewport broadcast.
func HandleReplaceElements(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ElementsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, r, "Invalid request body", err)
			return
		}

		sess := registry.Get(chi.URLParam(r, "sessionID"))
		draw, cam := core.ExtractViewport(req.Elements)
		count := sess.Replace(draw, req.AppState, nil)
		if cam != nil {
			sess.SetViewport(*cam)
		}

		render.JSON(w, r, ReplaceResponse{
			Success:      true,
			ElementCount: count,
			Clients:      sess.ClientCount(),
		})
	}
}

// HandleAppendElements concatenates a delta onto the scene. Only the delta is
// broadcast; full history is never resent on append.
func HandleAppendElements(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, r, "Invalid request body", err)
			return
		}

		sess := registry.Get(chi.URLParam(r, "sessionID"))
		draw, cam := core.ExtractViewport(req.Elements)
		count := sess.Append(draw)
		if cam != nil {
			sess.SetViewport(*cam)
		}

		render.JSON(w, r, AppendResponse{Success: true, ElementCount: count})
	}
}

// HandleSetViewport writes the camera directly, no element batch involved.
func HandleSetViewport(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cam core.Camera
		if err := json.NewDecoder(r.Body).Decode(&cam); err != nil {
			badRequest(w, r, "Invalid request body", err)
			return
		}

		sess := registry.Get(chi.URLParam(r, "sessionID"))
		sess.SetViewport(cam)

		render.JSON(w, r, ViewportResponse{Success: true, Viewport: cam})
	}
}

// HandleClear resets the scene; connected clients are told to discard all
// local state for the session.
func HandleClear(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := registry.Get(chi.URLParam(r, "sessionID"))
		sess.Clear()
		render.JSON(w, r, ClearResponse{Success: true})
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logrus.WithField("error", err).Warn(msg)
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"error": msg})
}
