package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/modelmux/modelmux/internal/domain/session"
)

// liveSession is the store's record for one in-flight pipeline.
type liveSession struct {
	status  session.Status
	pending []session.Entry // buffered entries not yet drained
	created time.Time
	touched time.Time // last append or drain, for idle expiry
}

// SessionStore is the live-session registry shared by all concurrently
// running pipelines. Each pipeline owns exactly one key; every per-key
// operation is atomic with respect to the polling consumer of that key.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*liveSession
	now      func() time.Time // for testing
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*liveSession),
		now:      time.Now,
	}
}

// Create registers a live session with empty logs and processing status.
func (s *SessionStore) Create(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sessions[id] = &liveSession{
		status:  session.StatusProcessing,
		created: now,
		touched: now,
	}
}

// Append buffers a log entry for the session. No-op if the session no
// longer exists.
func (s *SessionStore) Append(id string, e session.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.sessions[id]
	if !ok {
		return
	}
	ls.pending = append(ls.pending, e)
	ls.touched = s.now()
}

// SetStatus updates the session status. No-op if the session no longer exists.
func (s *SessionStore) SetStatus(id string, st session.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ls, ok := s.sessions[id]; ok {
		ls.status = st
		ls.touched = s.now()
	}
}

// Drain returns the rendered entries buffered since the last drain and
// clears the buffer. ok is false when the session no longer exists, which
// the polling consumer treats as end of stream.
func (s *SessionStore) Drain(id string) (logs []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, exists := s.sessions[id]
	if !exists {
		return nil, false
	}

	logs = make([]string, len(ls.pending))
	for i, e := range ls.pending {
		logs[i] = e.Render()
	}
	ls.pending = nil
	ls.touched = s.now()
	return logs, true
}

// Destroy removes the session unconditionally. Safe to call on an already
// removed id.
func (s *SessionStore) Destroy(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartSweeper launches a goroutine that expires sessions untouched for ttl,
// bounding buffer growth when a consumer abandons its stream. It stops when
// ctx is cancelled.
func (s *SessionStore) StartSweeper(ctx context.Context, ttl, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ttl)
			}
		}
	}()
}

func (s *SessionStore) sweep(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	for id, ls := range s.sessions {
		if ls.touched.Before(cutoff) {
			delete(s.sessions, id)
			slog.Warn("expired idle session", "session_id", id, "age", s.now().Sub(ls.created))
		}
	}
}
