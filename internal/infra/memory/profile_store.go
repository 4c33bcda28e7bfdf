package memory

import (
	"context"
	"sync"

	"duel-quiz-service/internal/domain"
)

// ProfileStore is an in-memory implementation of app.ProfileStore. Players
// without a stored profile start at the default rating.
type ProfileStore struct {
	mu    sync.RWMutex
	stats map[string]domain.PlayerStats
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{stats: make(map[string]domain.PlayerStats)}
}

func (s *ProfileStore) GetRating(_ context.Context, playerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stats, ok := s.stats[playerID]; ok {
		return stats.Rating, nil
	}
	return domain.DefaultRating, nil
}

func (s *ProfileStore) GetStats(_ context.Context, playerID string) (domain.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stats, ok := s.stats[playerID]; ok {
		return stats, nil
	}
	return domain.PlayerStats{PlayerID: playerID, Rating: domain.DefaultRating}, nil
}

func (s *ProfileStore) SaveStats(_ context.Context, stats domain.PlayerStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.PlayerID] = stats
	return nil
}
