package session

import (
	"errors"
	"sync"
	"time"

	"github.com/grabtube/grabtube/internal/model/convo"
)

var ErrSessionNotFound = errors.New("session not found")

// Service holds the in-memory conversation state, keyed by Telegram user
// id. State is process-local: a restart drops all in-flight conversations
// and the user simply resends the URL. Running more than one worker
// process breaks session affinity; see DESIGN.md.
type Service struct {
	mu       sync.RWMutex
	sessions map[int64]convo.Session
}

// NewService bootstraps the in-memory session store.
func NewService() *Service {
	return &Service{sessions: make(map[int64]convo.Session)}
}

// Put stores the session for userID, replacing any previous one. A new
// URL from a user always supersedes whatever conversation was in flight.
func (s *Service) Put(userID int64, sess convo.Session) {
	sess.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()
}

// Get retrieves the session for userID.
func (s *Service) Get(userID int64) (convo.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Update applies fn to userID's session atomically with respect to other
// events for the same user. Returns ErrSessionNotFound when no session
// exists, leaving the store untouched.
func (s *Service) Update(userID int64, fn func(*convo.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return ErrSessionNotFound
	}
	fn(&sess)
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[userID] = sess
	return nil
}

// Take removes and returns userID's session in one step, so a session can
// trigger at most one dispatch even under concurrent button presses.
func (s *Service) Take(userID int64) (convo.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if ok {
		delete(s.sessions, userID)
	}
	return sess, ok
}

// Remove discards userID's session if present.
func (s *Service) Remove(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepStale evicts sessions idle for longer than ttl and reports how
// many were removed. Bounds memory growth from abandoned conversations.
func (s *Service) SweepStale(ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed
}
