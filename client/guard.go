// Package client is the editing-client half of the sync contract: it applies
// server-originated mutations to the local drawing surface while preventing
// the surface's own change notification from echoing those mutations straight
// back to the server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"drawsync/core"
	"drawsync/session"
)

// DefaultSuppressWindow is how long outbound updates stay suppressed after a
// server-originated mutation. The surface's change notification is
// asynchronous; the window has to outlive it or the remote update bounces
// back forever.
const DefaultSuppressWindow = 100 * time.Millisecond

// Surface is the boundary contract with the rendering surface. The guard
// treats the scene as opaque and only moves it across this boundary.
type Surface interface {
	SceneElements() []core.Element
	ApplyScene(elements []core.Element, appState json.RawMessage)
	AppendElements(elements []core.Element)
	SetViewport(cam core.Camera)
	AttachFiles(files []core.AssetRecord)
	ClearScene()
}

// Config carries the optional collaborators of a Guard.
type Config struct {
	// SuppressWindow overrides DefaultSuppressWindow. Widen it if the
	// surface's change notification is slow under load.
	SuppressWindow time.Duration
	// Cache, when set, persists every applied non-deleted scene keyed by
	// session id so a reload can restore state before the network reconnects.
	Cache *SceneCache
	// LoadFonts is called with inbound elements before they reach the
	// surface; text measurement with missing fonts yields wrong bounding
	// boxes.
	LoadFonts func(elements []core.Element) error
}

// Guard reconciles remote mutations with local edits for one session.
type Guard struct {
	sessionID string
	surface   Surface
	send      func(elements []core.Element)
	cfg       Config

	mu            sync.Mutex
	suppressUntil time.Time
	knownFiles    map[string]struct{}
	inflight      map[string]struct{}
}

func NewGuard(sessionID string, surface Surface, send func(elements []core.Element), cfg Config) *Guard {
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = DefaultSuppressWindow
	}
	return &Guard{
		sessionID:  sessionID,
		surface:    surface,
		send:       send,
		cfg:        cfg,
		knownFiles: make(map[string]struct{}),
		inflight:   make(map[string]struct{}),
	}
}

// HandleMessage applies one server frame to the surface. The suppression
// window is armed before the surface is touched, so the change notification
// the mutation triggers is ignored instead of echoed.
func (g *Guard) HandleMessage(ctx context.Context, data []byte) error {
	var msg session.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("malformed server message: %w", err)
	}

	switch msg.Type {
	case session.MessageElements:
		elements, err := g.prepareInbound(msg.Elements)
		if err != nil {
			return err
		}
		g.beginSuppression()
		g.surface.ApplyScene(elements, msg.AppState)
		g.cacheScene(ctx, elements, msg.AppState)

	case session.MessageAppend:
		elements, err := g.prepareInbound(msg.Elements)
		if err != nil {
			return err
		}
		g.beginSuppression()
		g.surface.AppendElements(elements)
		g.cacheScene(ctx, g.surface.SceneElements(), nil)

	case session.MessageViewport:
		if msg.Viewport == nil {
			return fmt.Errorf("viewport message without viewport")
		}
		g.beginSuppression()
		g.surface.SetViewport(*msg.Viewport)

	case session.MessageClear:
		g.beginSuppression()
		g.surface.ClearScene()
		g.dropCachedScene(ctx)

	case session.MessageFilesMeta:
		files := make([]core.AssetRecord, 0, len(msg.Files))
		for _, rec := range msg.Files {
			files = append(files, rec)
		}
		g.beginSuppression()
		g.surface.AttachFiles(files)
		for _, rec := range files {
			g.MarkFileKnown(rec.ID)
		}

	case session.MessageFileAdded:
		if msg.File == nil {
			return fmt.Errorf("file-added message without file")
		}
		g.beginSuppression()
		g.surface.AttachFiles([]core.AssetRecord{*msg.File})
		g.MarkFileKnown(msg.File.ID)

	default:
		return fmt.Errorf("unknown server message type %q", msg.Type)
	}

	return nil
}

// SceneChanged is the surface's change notification entry point. Changes
// observed inside the suppression window were caused by an inbound message
// and are dropped; everything else is a genuine local edit and goes out as a
// full update.
func (g *Guard) SceneChanged(ctx context.Context) {
	if g.Suppressed() {
		return
	}
	elements := g.surface.SceneElements()
	g.send(elements)
	g.cacheScene(ctx, elements, nil)
}

// Suppressed reports whether outbound updates are currently suppressed.
func (g *Guard) Suppressed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.suppressUntil)
}

// RestoreScene loads the cached scene for the guard's session and applies it
// under suppression. It reports whether anything was cached.
func (g *Guard) RestoreScene(ctx context.Context) (bool, error) {
	if g.cfg.Cache == nil {
		return false, nil
	}
	elements, appState, err := g.cfg.Cache.Load(ctx, g.sessionID)
	if err != nil {
		if err == ErrSceneNotCached {
			return false, nil
		}
		return false, err
	}
	g.beginSuppression()
	g.surface.ApplyScene(elements, appState)
	return true, nil
}

// FileKnown reports whether a fileId has already been rendered or uploaded.
// Known files must never be re-uploaded or re-fetched.
func (g *Guard) FileKnown(fileID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.knownFiles[fileID]
	return ok
}

// MarkFileKnown records a fileId as present on this client.
func (g *Guard) MarkFileKnown(fileID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.knownFiles[fileID] = struct{}{}
}

// BeginUpload claims a fileId for upload. It returns false when the file is
// already known or another upload for it is in flight, which serializes
// concurrent attempts on the same fileId.
func (g *Guard) BeginUpload(fileID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, known := g.knownFiles[fileID]; known {
		return false
	}
	if _, busy := g.inflight[fileID]; busy {
		return false
	}
	g.inflight[fileID] = struct{}{}
	return true
}

// FinishUpload releases the in-flight claim; a successful upload marks the
// file known.
func (g *Guard) FinishUpload(fileID string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inflight, fileID)
	if ok {
		g.knownFiles[fileID] = struct{}{}
	}
}

// prepareInbound readies server elements for the surface: fonts first (text
// measurement with missing fonts yields wrong bounds), then deterministic
// materialization of any skeletons.
func (g *Guard) prepareInbound(elements []core.Element) ([]core.Element, error) {
	if g.cfg.LoadFonts != nil {
		if err := g.cfg.LoadFonts(elements); err != nil {
			return nil, fmt.Errorf("failed to load fonts: %w", err)
		}
	}
	if core.NeedsMaterialization(elements) {
		elements = core.Materialize(elements)
	}
	return elements, nil
}

func (g *Guard) beginSuppression() {
	g.mu.Lock()
	g.suppressUntil = time.Now().Add(g.cfg.SuppressWindow)
	g.mu.Unlock()
}

func (g *Guard) cacheScene(ctx context.Context, elements []core.Element, appState json.RawMessage) {
	if g.cfg.Cache == nil {
		return
	}
	if err := g.cfg.Cache.Save(ctx, g.sessionID, elements, appState); err != nil {
		logrus.WithFields(logrus.Fields{
			"session_id": g.sessionID,
			"error":      err,
		}).Warn("failed to cache scene")
	}
}

func (g *Guard) dropCachedScene(ctx context.Context) {
	if g.cfg.Cache == nil {
		return
	}
	if err := g.cfg.Cache.Delete(ctx, g.sessionID); err != nil {
		logrus.WithFields(logrus.Fields{
			"session_id": g.sessionID,
			"error":      err,
		}).Warn("failed to drop cached scene")
	}
}
