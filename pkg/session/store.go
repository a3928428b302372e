package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/zombinator/internal/observability"
	"github.com/harun/zombinator/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("session not found")
	// ErrBusy is returned when a send is already in flight for the session.
	ErrBusy = errors.New("a message is already being processed for this session")
	// ErrPaced is matched by PacedError.
	ErrPaced = errors.New("messages are being sent too quickly")
)

// PacedError is returned by Allow when the session must wait before sending.
type PacedError struct {
	RetryAfter time.Duration
}

func (e *PacedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrPaced, e.RetryAfter.Round(100*time.Millisecond))
}

func (e *PacedError) Is(target error) bool {
	return target == ErrPaced
}

// Info describes a session for listings.
type Info struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id,omitempty"`
	Messages int       `json:"messages"`
	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"last_seen"`
	Busy     bool      `json:"busy"`
}

type entry struct {
	sess     *agent.Session
	limiter  *rate.Limiter
	busy     bool
	created  time.Time
	lastSeen time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithMinInterval sets the minimum time between two sends on one session.
// Zero disables pacing.
func WithMinInterval(d time.Duration) StoreOption {
	return func(s *Store) { s.minInterval = d }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Store maps session ids to agent sessions.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*entry
	minInterval time.Duration
	now         func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	observability.EnsureRegistered()

	s := &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) newEntry() *entry {
	now := s.now()
	e := &entry{sess: agent.NewSession(), created: now, lastSeen: now}
	if s.minInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(s.minInterval), 1)
	}
	return e
}

// Create starts a new session and returns its id.
func (s *Store) Create() (string, *agent.Session, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	e := s.newEntry()

	s.mu.Lock()
	s.entries[id] = e
	n := len(s.entries)
	s.mu.Unlock()

	observability.RecordSessionCreated()
	observability.SetActiveSessions(n)
	log.Debug().Str("session_id", id).Msg("Session created")

	return id, e.sess, nil
}

// Get returns the session for id and marks it as seen.
func (s *Store) Get(id string) (*agent.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.sess, true
}

// GetOrCreate returns the session for id, creating a new one (with a new id)
// when id is unknown.
func (s *Store) GetOrCreate(id string) (string, *agent.Session, error) {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return id, sess, nil
		}
	}
	return s.Create()
}

// Reset replaces the session's conversation with a fresh one, so the next
// send starts a new thread. The id stays valid.
func (s *Store) Reset(id string) (*agent.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.busy {
		return nil, ErrBusy
	}

	e.sess = agent.NewSession()
	e.lastSeen = s.now()
	log.Debug().Str("session_id", id).Msg("Session reset")

	return e.sess, nil
}

// Delete removes a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	n := len(s.entries)
	s.mu.Unlock()

	observability.SetActiveSessions(n)
}

// List returns all sessions ordered by creation time.
func (s *Store) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Info{
			ID:       id,
			ThreadID: e.sess.ThreadID(),
			Messages: e.sess.Len(),
			Created:  e.created,
			LastSeen: e.lastSeen,
			Busy:     e.busy,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Begin marks a send as in flight. The returned release must be called when
// the send finishes, whatever its outcome.
func (s *Store) Begin(id string) (*agent.Session, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if e.busy {
		observability.RecordRejectedSend("busy")
		return nil, nil, ErrBusy
	}
	e.busy = true
	e.lastSeen = s.now()

	var once sync.Once
	return e.sess, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			e.busy = false
			e.lastSeen = s.now()
		})
	}, nil
}

// Allow consumes the session's send allowance, or returns a *PacedError
// saying how long to wait.
func (s *Store) Allow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.limiter == nil {
		return nil
	}

	now := s.now()
	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		observability.RecordRejectedSend("paced")
		return &PacedError{RetryAfter: delay}
	}
	return nil
}

// Expire removes sessions idle for at least ttl. Busy sessions are kept.
func (s *Store) Expire(ttl time.Duration) int {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if e.busy || now.Sub(e.lastSeen) < ttl {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	n := len(s.entries)
	s.mu.Unlock()

	if removed > 0 {
		observability.RecordSessionExpired(removed)
	}
	observability.SetActiveSessions(n)
	return removed
}
