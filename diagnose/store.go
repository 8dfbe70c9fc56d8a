package diagnose

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"agriaid/logger"
	"agriaid/wizard"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one user's wizard. Its context outlives requests so background
// step fetches keep running, and is cancelled on eviction.
type Session struct {
	ID         string
	Controller *wizard.Controller

	ctx      context.Context
	cancel   context.CancelFunc
	lastSeen time.Time
}

// Context carries the session id for logging and ends when the session does.
func (s *Session) Context() context.Context { return s.ctx }

// Store keeps sessions in memory and evicts the ones idle longer than ttl.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	log      logger.Logger
}

func NewStore(ttl time.Duration, log logger.Logger) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{sessions: map[string]*Session{}, ttl: ttl, now: time.Now, log: log}
}

func (s *Store) Create() *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(logger.WithSession(context.Background(), id))
	sess := &Session{
		ID:         id,
		Controller: wizard.NewController(),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.mu.Lock()
	sess.lastSeen = s.now()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session and refreshes its idle timer.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.now()
	return sess, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	cutoff := s.now().Add(-s.ttl)
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.cancel()
		sess.Controller.Close()
		s.log.Debugf(sess.ctx, "session evicted after %s idle", s.ttl)
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Infof(ctx, "evicted %d idle sessions", n)
			}
		}
	}
}

func (s *Store) closeAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = map[string]*Session{}
	s.mu.Unlock()
	for _, sess := range all {
		sess.cancel()
		sess.Controller.Close()
	}
}
