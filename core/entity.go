package core

import (
	"context"
	"errors"
)

type (
	// Element is one drawing element as received from a client. Elements are
	// owned by the drawing surface and treated as opaque here; the server only
	// inspects the type tag and, for camera commands, a few numeric fields.
	Element map[string]any

	// Camera is the world-space rectangle a client has framed.
	Camera struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}

	// AssetRecord describes one uploaded binary attachment of a session.
	AssetRecord struct {
		ID         string `json:"id"`
		ContentURL string `json:"contentUrl"`
		MimeType   string `json:"mimeType"`
		CreatedAt  int64  `json:"createdAt"`
	}

	// AssetStore is a content-addressed blob backend. Keys are derived with
	// AssetKey; Exists must report a missing object as (false, nil), anything
	// else as an error.
	AssetStore interface {
		Exists(ctx context.Context, key string) (bool, error)
		Put(ctx context.Context, key string, data []byte, mimeType string) error
		Get(ctx context.Context, key string) ([]byte, string, error)
		URL(key string) string
	}
)

// ErrAssetNotFound is returned by AssetStore.Get for a key that was never
// written.
var ErrAssetNotFound = errors.New("asset not found")

// Type returns the element's type tag, or "" when absent.
func (e Element) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Clone returns a copy whose top-level keys can be modified without touching
// the original.
func (e Element) Clone() Element {
	out := make(Element, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

var mimeExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
}

// ExtensionForMime maps a MIME type to a storage extension, falling back to
// .bin for anything unrecognized.
func ExtensionForMime(mimeType string) string {
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// AssetKey derives the deterministic storage key of an attachment. The same
// (session, file, mime) triple always maps to the same object.
func AssetKey(sessionID, fileID, mimeType string) string {
	return sessionID + "/" + fileID + ExtensionForMime(mimeType)
}
