package storage

import (
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

// SessionStore keeps recent scans in memory
type SessionStore struct {
	sessions map[string]*models.ScanSession
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.ScanSession),
	}
}

func (s *SessionStore) Get(scanID string) (*models.ScanSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[scanID]
	return session, exists
}

func (s *SessionStore) Set(scanID string, session *models.ScanSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[scanID] = session
}

// GetAll returns every scan, newest first
func (s *SessionStore) GetAll() []*models.ScanSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.ScanSession, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *SessionStore) Delete(scanID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, scanID)
}
