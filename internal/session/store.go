// Package session keeps one progression engine per learner session.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/ledger/internal/content"
	"github.com/p-n-ai/ledger/internal/progression"
)

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

// State is the mutable part of a session. It is only reachable inside
// Session.Do.
type State struct {
	Engine   *progression.Engine
	XP       int
	Attempts int
	// Scripts holds the last script submitted to each challenge, keyed by
	// node title. It lives and dies with the session.
	Scripts map[string]string
}

// Session is one learner's run through the course.
type Session struct {
	ID        string
	CreatedAt time.Time

	lastSeen atomic.Int64
	mu       sync.Mutex
	state    State
}

func newSession(id string, tree *content.Tree, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		state:     State{Engine: progression.New(tree), Scripts: map[string]string{}},
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Do runs fn with exclusive access to the session state, so a grade and
// the advance it triggers happen as one step.
func (s *Session) Do(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return fn(&s.state)
}

// LastSeenAt returns when the session was last used.
func (s *Session) LastSeenAt() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// Store holds live sessions.
type Store interface {
	Create(tree *content.Tree) (*Session, error)
	Get(id string) (*Session, error)
	Delete(id string) error
	Len() int
	Sweep(now time.Time, ttl time.Duration) int
}

// MemoryStore is an in-memory implementation of Store. Sessions do not
// survive a restart.
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (s *MemoryStore) Create(tree *content.Tree) (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	sess := newSession(id.String(), tree, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemoryStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than ttl and returns how many
// were removed.
func (s *MemoryStore) Sweep(now time.Time, ttl time.Duration) int {
	cutoff := now.Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.LastSeenAt().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
