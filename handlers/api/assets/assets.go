// Package assets holds the binary-attachment relocation pipeline: idempotent
// content-addressed uploads and a same-origin proxy so editing clients can
// fetch attachments without tripping over cross-origin restrictions on the
// storage endpoint.
package assets

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"drawsync/core"
	"drawsync/metrics"
	"drawsync/session"
)

type (
	UploadRequest struct {
		FileID   string `json:"fileId"`
		DataURL  string `json:"dataURL"`
		MimeType string `json:"mimeType"`
	}

	UploadResponse struct {
		CDNURL string `json:"cdnUrl"`
	}
)

// errMalformedDataURL covers every AssetFormatError: the payload is rejected
// synchronously, nothing is written.
var errMalformedDataURL = errors.New("dataURL does not match data:<mime>;base64,<payload>")

// HandleUpload stores an attachment under its deterministic key. Uploading
// the same (session, file, data, mime) twice returns the same URL and leaves
// exactly one stored object: the existence check runs first and an existing
// object short-circuits the write, which also makes retries convergent.
func HandleUpload(registry *session.Registry, store core.AssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			storageDisabled(w, r)
			return
		}

		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, r, "Invalid request body", err)
			return
		}
		if req.FileID == "" {
			badRequest(w, r, "fileId is required", nil)
			return
		}

		data, err := decodeDataURL(req.DataURL)
		if err != nil {
			badRequest(w, r, "Invalid dataURL", err)
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		key := core.AssetKey(sessionID, req.FileID, req.MimeType)
		log := logrus.WithFields(logrus.Fields{
			"session_id": sessionID,
			"file_id":    req.FileID,
			"key":        key,
		})

		exists, err := store.Exists(r.Context(), key)
		if err != nil {
			log.WithField("error", err).Error("asset existence check failed")
			storageError(w, r, "Failed to check asset")
			return
		}

		if exists {
			metrics.AssetUploads.WithLabelValues("deduped").Inc()
			log.Debug("asset already stored, returning canonical URL")
		} else {
			if err := store.Put(r.Context(), key, data, req.MimeType); err != nil {
				log.WithField("error", err).Error("asset upload failed")
				storageError(w, r, "Failed to store asset")
				return
			}
			metrics.AssetUploads.WithLabelValues("stored").Inc()
			log.WithField("bytes", len(data)).Info("asset stored")
		}

		url := store.URL(key)
		registry.Get(sessionID).AddFile(core.AssetRecord{
			ID:         req.FileID,
			ContentURL: url,
			MimeType:   req.MimeType,
			CreatedAt:  time.Now().UnixMilli(),
		})

		render.JSON(w, r, UploadResponse{CDNURL: url})
	}
}

// HandleFetch proxies an attachment through the bridge's own origin. The
// fileId resolves through the session's asset records; an unknown fileId
// means the asset is absent.
func HandleFetch(registry *session.Registry, store core.AssetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			storageDisabled(w, r)
			return
		}

		sessionID := chi.URLParam(r, "sessionID")
		fileID := chi.URLParam(r, "fileID")

		rec, ok := registry.Get(sessionID).File(fileID)
		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "File not found"})
			return
		}

		key := core.AssetKey(sessionID, fileID, rec.MimeType)
		data, mimeType, err := store.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, core.ErrAssetNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, map[string]string{"error": "File not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"file_id":    fileID,
				"error":      err,
			}).Error("asset fetch failed")
			storageError(w, r, "Failed to fetch asset")
			return
		}

		if mimeType == "" {
			mimeType = rec.MimeType
		}
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Write(data)
	}
}

// decodeDataURL strips the data:<mime>;base64, header and decodes the
// payload. Anything that does not match that shape is an AssetFormatError.
func decodeDataURL(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, errMalformedDataURL
	}
	_, payload, found := strings.Cut(dataURL, ";base64,")
	if !found {
		return nil, errMalformedDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errMalformedDataURL
	}
	return data, nil
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logrus.WithField("error", err).Warn(msg)
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"error": msg})
}

func storageError(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadGateway)
	render.JSON(w, r, map[string]string{"error": msg})
}

func storageDisabled(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusServiceUnavailable)
	render.JSON(w, r, map[string]string{"error": "Asset storage is not configured"})
}
