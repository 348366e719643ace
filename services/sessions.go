package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagrab/models"
)

// SessionStore issues and validates anonymous session tokens with a
// fixed time-to-live.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	ttl      time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		ttl:      ttl,
	}
}

// Create generates a fresh session and returns its id.
func (s *SessionStore) Create() string {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session.ID
}

// Get returns the session if present and unexpired. An expired record
// is deleted on read, so the reaper only has to catch sessions nobody
// asked about again.
func (s *SessionStore) Get(id string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	if session.Expired(time.Now()) {
		delete(s.sessions, id)
		return models.Session{}, false
	}
	return *session, true
}

// SweepExpired removes every expired session and reports how many.
func (s *SessionStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
