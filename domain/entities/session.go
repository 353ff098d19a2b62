package entities

import (
	"time"
)

// Session is the conversational continuity token exchanged with the dialogue service.
// An empty ID is valid and means the next turn is anonymous.
type Session struct {
	ID          string     `json:"session_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	LastReplyAt *time.Time `json:"last_reply_at,omitempty"`
	Turns       int        `json:"turns"`
}

// NewSession creates an anonymous session
func NewSession() *Session {
	return &Session{
		StartedAt: time.Now(),
	}
}

// HasID reports whether the dialogue service has assigned an identifier yet
func (s *Session) HasID() bool {
	return s.ID != ""
}

// ApplyReply records a successful reply. The identifier only changes when the
// reply carries one, so the last successful reply wins.
func (s *Session) ApplyReply(sessionID string) {
	now := time.Now()
	s.LastReplyAt = &now
	s.Turns++
	if sessionID != "" {
		s.ID = sessionID
	}
}

// Snapshot returns a copy that is safe to hand to other goroutines
func (s *Session) Snapshot() Session {
	cp := *s
	if s.LastReplyAt != nil {
		t := *s.LastReplyAt
		cp.LastReplyAt = &t
	}
	return cp
}
