package overlay

import (
	"net/url"
	"sync"
)

// Registry tracks open widget sessions so acknowledgements and audio
// requests can find them.
type Registry struct {
	notifyURL string
	basePath  string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. basePath prefixes the audio URLs handed to
// pages, e.g. "/widget/sessions".
func NewRegistry(notifyURL, basePath string) *Registry {
	return &Registry{
		notifyURL: notifyURL,
		basePath:  basePath,
		sessions:  make(map[string]*Session),
	}
}

// Open registers a new session for recipient.
func (r *Registry) Open(recipient string) *Session {
	session := newSession(recipient, r.notifyURL, r.audioPath)
	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()
	return session
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Close ends and forgets the session with id.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		session.Close()
	}
}

// Len reports how many sessions are open.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) audioPath(sessionID, token string) string {
	return r.basePath + "/" + url.PathEscape(sessionID) + "/audio/" + url.PathEscape(token)
}
