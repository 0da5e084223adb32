package session

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"drawsync/core"
	"drawsync/metrics"
)

// Session is one shared scene and its connected clients. Every mutation is a
// short read-modify-write under the session mutex, and a broadcast is
// enqueued while the mutex is still held, so broadcast order always follows
// mutation-processing order. Sends themselves are non-blocking (see
// Client.enqueue).
type Session struct {
	ID string

	mu       sync.Mutex
	elements []core.Element
	appState json.RawMessage
	viewport *core.Camera
	files    map[string]core.AssetRecord
	clients  map[*Client]struct{}
}

func newSession(id string) *Session {
	return &Session{
		ID:      id,
		files:   make(map[string]core.AssetRecord),
		clients: make(map[*Client]struct{}),
	}
}

// Join registers a connection and performs the initial sync: existing
// elements first, then the viewport (a camera transform applied before any
// content exists would look wrong), then asset metadata for late joiners.
func (s *Session) Join(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[c] = struct{}{}
	c.state.Store(StateOpen)
	metrics.ConnectedClients.Inc()

	if len(s.elements) > 0 {
		s.sendLocked(c, ElementsMessage(s.elements, s.appState))
	}
	if s.viewport != nil {
		s.sendLocked(c, ViewportMessage(*s.viewport))
	}
	if len(s.files) > 0 {
		s.sendLocked(c, FilesMetaMessage(s.copyFilesLocked()))
	}

	logrus.WithFields(logrus.Fields{
		"session_id": s.ID,
		"client_id":  c.ID,
		"clients":    len(s.clients),
	}).Info("client joined session")
}

// Leave removes a connection and reports whether the session is now empty.
// The caller schedules the idle sweep when it is. Leaving twice is a no-op.
func (s *Session) Leave(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c]; !ok {
		return len(s.clients) == 0
	}

	delete(s.clients, c)
	c.state.Store(StateClosed)
	close(c.send)
	metrics.ConnectedClients.Dec()

	logrus.WithFields(logrus.Fields{
		"session_id": s.ID,
		"client_id":  c.ID,
		"clients":    len(s.clients),
	}).Info("client left session")

	return len(s.clients) == 0
}

// Replace swaps the scene wholesale. A non-nil appState replaces the stored
// one; sender (when not nil) is excluded from the broadcast. Last writer
// wins; concurrent replacers can clobber each other and that is the
// documented contract.
func (s *Session) Replace(elements []core.Element, appState json.RawMessage, sender *Client) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elements = elements
	if appState != nil {
		s.appState = appState
	}
	s.broadcastLocked(ElementsMessage(s.elements, s.appState), sender)
	return len(s.elements)
}

// Append concatenates a delta onto the scene and broadcasts only the delta,
// never the full history. Returns the new element count.
func (s *Session) Append(delta []core.Element) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elements = append(s.elements, delta...)
	s.broadcastLocked(AppendMessage(delta), nil)
	return len(s.elements)
}

// Clear resets the scene, app state and viewport, and tells every client to
// discard local state for this session.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elements = nil
	s.appState = nil
	s.viewport = nil
	s.broadcastLocked(ClearMessage(), nil)
}

// SetViewport stores the camera and broadcasts it.
func (s *Session) SetViewport(cam core.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.viewport = &cam
	s.broadcastLocked(ViewportMessage(cam), nil)
}

// AddFile records an uploaded attachment and announces it.
func (s *Session) AddFile(rec core.AssetRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[rec.ID] = rec
	s.broadcastLocked(FileAddedMessage(rec), nil)
}

// File looks up the asset record of a previously uploaded fileId.
func (s *Session) File(fileID string) (core.AssetRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.files[fileID]
	return rec, ok
}

// Snapshot returns copies of the scene, app state and viewport for reads.
func (s *Session) Snapshot() ([]core.Element, json.RawMessage, *core.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elements := make([]core.Element, len(s.elements))
	copy(elements, s.elements)
	var cam *core.Camera
	if s.viewport != nil {
		c := *s.viewport
		cam = &c
	}
	return elements, s.appState, cam
}

func (s *Session) ElementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elements)
}

func (s *Session) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Session) copyFilesLocked() map[string]core.AssetRecord {
	files := make(map[string]core.AssetRecord, len(s.files))
	for id, rec := range s.files {
		files[id] = rec
	}
	return files
}

// broadcastLocked fans a message out to every client except sender. Failures
// are local to a recipient; a full buffer is counted and skipped.
func (s *Session) broadcastLocked(msg Message, sender *Client) {
	if len(s.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"session_id": s.ID,
			"type":       msg.Type,
			"error":      err,
		}).Error("failed to marshal broadcast message")
		return
	}

	for c := range s.clients {
		if c == sender {
			continue
		}
		c.enqueue(data)
	}
}

func (s *Session) sendLocked(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"session_id": s.ID,
			"type":       msg.Type,
			"error":      err,
		}).Error("failed to marshal sync message")
		return
	}
	c.enqueue(data)
}
