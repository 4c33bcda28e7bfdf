package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"duel-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ArchiveStore persists finished session records in Redis. The already-rated
// marker is a SETNX key, so claiming it is atomic across retries and
// instances.
type ArchiveStore struct {
	client *redis.Client
}

func NewArchiveStore(client *redis.Client) *ArchiveStore {
	return &ArchiveStore{client: client}
}

func (s *ArchiveStore) SaveRecord(ctx context.Context, rec domain.SessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := s.client.Set(ctx, s.recordKey(rec.SessionID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// MarkRated claims the already-rated marker; only the first caller wins.
func (s *ArchiveStore) MarkRated(ctx context.Context, sessionID string) (bool, error) {
	claimed, err := s.client.SetNX(ctx, s.ratedKey(sessionID), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("mark rated: %w", err)
	}
	return claimed, nil
}

// LoadRecord returns the archived record for a session.
func (s *ArchiveStore) LoadRecord(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	raw, err := s.client.Get(ctx, s.recordKey(sessionID)).Bytes()
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("load record: %w", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}
	if n, err := s.client.Exists(ctx, s.ratedKey(sessionID)).Result(); err == nil {
		rec.AlreadyRated = n > 0
	}
	return rec, nil
}

func (s *ArchiveStore) recordKey(sessionID string) string {
	return "duel:archive:" + sessionID
}

func (s *ArchiveStore) ratedKey(sessionID string) string {
	return "duel:rated:" + sessionID
}
