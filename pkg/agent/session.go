package agent

import (
	"sync"
	"time"
)

// Session is one conversation with the agent. The thread id is assigned by
// the client on the first successful thread creation; the history is owned
// by the caller.
type Session struct {
	mu       sync.RWMutex
	threadID string
	history  []Message
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// ThreadID returns the remote thread id, or "" before the first send.
func (s *Session) ThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

// bindThread sets the thread id once. It returns the id in effect, which is
// the existing one if another caller got there first.
func (s *Session) bindThread(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadID == "" {
		s.threadID = id
	}
	return s.threadID
}

// History returns a copy of the local history.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Append adds a message to the local history.
func (s *Session) Append(role Role, text string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Message{Role: role, Text: text, Time: at})
}

// Len returns the number of history entries.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
