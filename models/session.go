package models

import "time"

// Session is an anonymous, time-bounded token scoping which jobs a
// caller may see. Sessions are read-only after creation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session's TTL has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
