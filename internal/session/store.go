package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/fault"
	"github.com/kozaktomas/face-finder/internal/similarity"
)

// Store manages session lifecycle: creation, TTL-based eviction, audit
// logging, and file cleanup. It is the only mutable shared structure in the
// process; all mutation goes through its methods.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	tempDir     string
	ttl         time.Duration
	deleteAfter time.Duration

	// now is a clock hook for tests.
	now func() time.Time

	started     bool
	stopSweeper chan struct{}
	sweeperDone chan struct{}
	stopOnce    sync.Once
}

// NewStore creates a session store writing session images under tempDir.
// Call Start to run the background sweeper and Close to release everything.
func NewStore(tempDir string) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		tempDir:     tempDir,
		ttl:         constants.SessionTTL,
		deleteAfter: constants.SessionDeleteAfter,
		now:         time.Now,
		stopSweeper: make(chan struct{}),
		sweeperDone: make(chan struct{}),
	}
}

// Start launches the expiry sweeper.
func (s *Store) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.sweep(constants.SweepInterval)
}

// Close stops the sweeper and releases every tracked session.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopSweeper)
		s.mu.RLock()
		started := s.started
		s.mu.RUnlock()
		if started {
			<-s.sweeperDone
		}
	})

	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.DeleteSession(id, "")
	}
}

// Create opens a new session around a user embedding. The session starts in
// the processing state with no results.
func (s *Store) Create(embedding []float32, threshold float64, ip string) (*Session, error) {
	if err := similarity.ValidateEmbedding(embedding); err != nil {
		return nil, err
	}
	if err := similarity.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	id, err := generateID()
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "could not create session", err)
	}

	now := s.now()
	sess := &Session{
		ID:          id,
		Embedding:   embedding,
		Status:      StatusProcessing,
		Threshold:   threshold,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		DeleteAfter: now.Add(s.deleteAfter),
		ImagePath:   filepath.Join(s.tempDir, id+"_image.jpg"),
	}
	sess.AccessLog = append(sess.AccessLog, s.logEntry(OpCreate, DataEmbedding, true, ip))

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	return snapshot(sess), nil
}

// Get returns a snapshot of a session, enforcing TTL. Reading an expired
// session evicts it.
func (s *Store) Get(id, ip string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fault.New(fault.CodeSessionNotFound, "session not found")
	}
	if sess.Expired(s.now()) {
		s.mu.Unlock()
		s.DeleteSession(id, ip)
		return nil, fault.New(fault.CodeSessionExpired, "session has expired")
	}
	sess.AccessLog = append(sess.AccessLog, s.logEntry(OpRead, DataResults, true, ip))
	snap := snapshot(sess)
	s.mu.Unlock()
	return snap, nil
}

// UpdateStatus moves a session to completed or error. No other transition
// is permitted.
func (s *Store) UpdateStatus(id string, status Status, ip string) error {
	if status != StatusCompleted && status != StatusError {
		return fault.Newf(fault.CodeValidation, "invalid status transition to %q", status)
	}

	return s.withLive(id, func(sess *Session) error {
		sess.Status = status
		sess.AccessLog = append(sess.AccessLog, s.logEntry(OpUpdate, DataResults, true, ip))
		return nil
	})
}

// UpdateThreshold validates the new threshold and re-filters the stored
// results without recomputing any similarity. Matches below the new
// threshold are dropped from the session; every stored result keeps
// satisfying score >= threshold.
func (s *Store) UpdateThreshold(id string, threshold float64, ip string) ([]similarity.Match, error) {
	if err := similarity.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	var updated []similarity.Match
	err := s.withLive(id, func(sess *Session) error {
		kept, err := similarity.Rethreshold(sess.Results, threshold)
		if err != nil {
			return err
		}
		sess.Threshold = threshold
		sess.Results = kept
		sess.AccessLog = append(sess.AccessLog, s.logEntry(OpUpdate, DataResults, true, ip))
		updated = append([]similarity.Match(nil), kept...)
		return nil
	})
	return updated, err
}

// UpdateResults replaces a session's results. The list must already be
// sorted descending by score.
func (s *Store) UpdateResults(id string, results []similarity.Match, ip string) error {
	if !similarity.IsSorted(results) {
		return fault.New(fault.CodeValidation, "results must be sorted by score")
	}

	return s.withLive(id, func(sess *Session) error {
		sess.Results = append([]similarity.Match(nil), results...)
		sess.AccessLog = append(sess.AccessLog, s.logEntry(OpUpdate, DataResults, true, ip))
		return nil
	})
}

// StoreImage writes the user image to the session's file with restricted
// permissions and returns the path.
func (s *Store) StoreImage(id string, data []byte, ip string) (string, error) {
	var path string
	err := s.withLive(id, func(sess *Session) error {
		if err := os.MkdirAll(s.tempDir, 0o700); err != nil {
			return fault.Wrap(fault.CodeInternal, "could not prepare temp directory", err)
		}
		if err := os.WriteFile(sess.ImagePath, data, 0o600); err != nil {
			return fault.Wrap(fault.CodeInternal, "could not store image", err)
		}
		path = sess.ImagePath
		sess.AccessLog = append(sess.AccessLog, s.logEntry(OpCreate, DataImage, true, ip))
		return nil
	})
	return path, err
}

// DeleteSession removes a session, its image file, and its in-memory state.
// It is idempotent: deleting an unknown id succeeds.
func (s *Store) DeleteSession(id, ip string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	if sess.ImagePath != "" {
		if err := os.Remove(sess.ImagePath); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to remove session image %s: %v", sess.ImagePath, err)
		}
	}
	// The entry is gone from the map; log the delete for the audit trail.
	log.Printf("session %s deleted (%s)", id, auditIP(ip))
}

// ListActive returns snapshots of all non-expired sessions.
func (s *Store) ListActive() []*Session {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Session
	for _, sess := range s.sessions {
		if !sess.Expired(now) {
			active = append(active, snapshot(sess))
		}
	}
	return active
}

// Count returns the number of tracked sessions, expired or not.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sweep periodically evicts expired sessions until the store is closed.
func (s *Store) sweep(interval time.Duration) {
	defer close(s.sweeperDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopSweeper:
			return
		}
	}
}

// evictExpired removes every session past its TTL.
func (s *Store) evictExpired() {
	now := s.now()
	s.mu.Lock()
	var expired []string
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.DeleteSession(id, "")
	}
	if len(expired) > 0 {
		log.Printf("sweeper evicted %d expired session(s)", len(expired))
	}
}

// withLive runs fn on a live (present and unexpired) session under the
// write lock.
func (s *Store) withLive(id string, fn func(*Session) error) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fault.New(fault.CodeSessionNotFound, "session not found")
	}
	if sess.Expired(s.now()) {
		s.mu.Unlock()
		s.DeleteSession(id, "")
		return fault.New(fault.CodeSessionExpired, "session has expired")
	}
	defer s.mu.Unlock()
	return fn(sess)
}

func (s *Store) logEntry(op Operation, data DataType, success bool, ip string) AccessLogEntry {
	return AccessLogEntry{
		Timestamp: s.now(),
		Operation: op,
		DataType:  data,
		Success:   success,
		IPAddress: ip,
	}
}

// snapshot copies a session so callers never share mutable state with the
// store.
func snapshot(sess *Session) *Session {
	cp := *sess
	cp.Results = append([]similarity.Match(nil), sess.Results...)
	cp.AccessLog = append([]AccessLogEntry(nil), sess.AccessLog...)
	cp.Embedding = append([]float32(nil), sess.Embedding...)
	return &cp
}

// generateID produces an opaque, URL-safe session id.
func generateID() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("could not generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func auditIP(ip string) string {
	if ip == "" {
		return "internal"
	}
	return ip
}
