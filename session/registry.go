package session

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"drawsync/metrics"
)

// DefaultIdleWindow is how long a session with no clients survives before the
// registry sweeps it.
const DefaultIdleWindow = 300 * time.Second

// Registry is the single entry point to session state. Sessions are created
// lazily on first reference by any API and garbage collected after sitting
// idle with an empty client set.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	idleWindow time.Duration
}

func NewRegistry(idleWindow time.Duration) *Registry {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		idleWindow: idleWindow,
	}
}

// Get returns the session for id, creating it with an empty scene when it
// does not exist. All session access goes through here; a read on a session
// nobody wrote to simply sees the fresh empty scene.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

// Join resolves the session for id and registers c on it while still holding
// the registry mutex. An idle sweep cannot fire between the lookup and the
// registration, so the client can never land on an instance the registry has
// already dropped.
func (r *Registry) Join(id string, c *Client) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getLocked(id)
	s.Join(c)
	return s
}

func (r *Registry) getLocked(id string) *Session {
	if s, ok := r.sessions[id]; ok {
		return s
	}

	s := newSession(id)
	r.sessions[id] = s
	metrics.ActiveSessions.Inc()
	logrus.WithField("session_id", id).Info("session created")
	return s
}

// ScheduleSweep arms a deletion check for id after the idle window. The check
// re-reads emptiness at fire time instead of trusting the scheduling intent,
// so a client that reconnected inside the window keeps the session alive
// without any timer bookkeeping.
func (r *Registry) ScheduleSweep(id string) {
	time.AfterFunc(r.idleWindow, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		s, ok := r.sessions[id]
		if !ok || s.ClientCount() > 0 {
			return
		}

		delete(r.sessions, id)
		metrics.ActiveSessions.Dec()
		logrus.WithField("session_id", id).Info("idle session removed")
	})
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ClientTotal returns the number of connections across all sessions.
func (r *Registry) ClientTotal() int {
	total := 0
	for _, s := range r.Sessions() {
		total += s.ClientCount()
	}
	return total
}

// Sessions returns the live sessions ordered by id.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
