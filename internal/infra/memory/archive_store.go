package memory

import (
	"context"
	"sync"

	"duel-quiz-service/internal/domain"
)

// ArchiveStore is an in-memory implementation of app.ArchiveStore.
type ArchiveStore struct {
	mu      sync.Mutex
	records map[string]domain.SessionRecord
	rated   map[string]bool
}

func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		records: make(map[string]domain.SessionRecord),
		rated:   make(map[string]bool),
	}
}

func (s *ArchiveStore) SaveRecord(_ context.Context, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.AlreadyRated = s.rated[rec.SessionID]
	s.records[rec.SessionID] = rec
	return nil
}

// MarkRated claims the already-rated marker; only the first caller wins.
func (s *ArchiveStore) MarkRated(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rated[sessionID] {
		return false, nil
	}
	s.rated[sessionID] = true
	if rec, ok := s.records[sessionID]; ok {
		rec.AlreadyRated = true
		s.records[sessionID] = rec
	}
	return true, nil
}

// Record returns the archived record for a session, if present.
func (s *ArchiveStore) Record(sessionID string) (domain.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	return rec, ok
}
