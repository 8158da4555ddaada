package pane

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/migueldeicaza/Pane/internal/wire"
)

// ErrSessionNotFound is returned by Lookup/Attach/Destroy for an unknown id.
var ErrSessionNotFound = errors.New("session not found")

// Registry maps session id to session. Session identity is a UUID string
// (the open question in §9 resolved here; see DESIGN.md).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logf     LogFunc
}

// NewRegistry constructs an empty registry.
func NewRegistry(logf LogFunc) *Registry {
	return &Registry{sessions: make(map[string]*Session), logf: logf}
}

// Create allocates an id, starts the child, and inserts the session. If
// the child fails to start, nothing is inserted and the error is returned.
// Names are non-unique.
func (r *Registry) Create(name string, commandLine []string, cols, rows uint16) (wire.SessionInfo, error) {
	id := uuid.NewString()
	session, err := newSession(id, name, commandLine, cols, rows, r.logf)
	if err != nil {
		return wire.SessionInfo{}, err
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	return session.Info(), nil
}

// List returns every session's info, sorted ascending by creation time
// (ties broken by id).
func (r *Registry) List() []wire.SessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.createdAt.Equal(b.createdAt) {
			return a.id < b.id
		}
		return a.createdAt.Before(b.createdAt)
	})

	infos := make([]wire.SessionInfo, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	return infos
}

// Lookup returns the session handle for id, used during attach.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Attach returns the session handle the server wires a subscriber onto.
func (r *Registry) Attach(id string) (*Session, error) {
	s, ok := r.Lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Destroy removes and terminates the session. A session with an exited
// child is kept alive until this is called (§9: keep-alive is the default).
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.Terminate()
}

// Ping reports registry liveness; it never fails, it exists so the server's
// ping dispatch has a registry-level call to make rather than a bare
// literal response.
func (r *Registry) Ping() bool {
	return true
}

// Shutdown terminates every session, for server shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Terminate()
	}
}
