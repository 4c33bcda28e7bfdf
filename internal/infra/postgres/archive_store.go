package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"duel-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ArchiveStore persists finished session records in Postgres. The
// already_rated column is claimed with a guarded UPDATE so rating
// application stays exactly-once even across process restarts.
type ArchiveStore struct {
	pool *pgxpool.Pool
}

func NewArchiveStore(pool *pgxpool.Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

func (s *ArchiveStore) SaveRecord(ctx context.Context, rec domain.SessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO match_archive (id, data, already_rated)
		VALUES ($1, $2, false)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		rec.SessionID, raw)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// MarkRated claims the already-rated marker; only the first caller wins.
func (s *ArchiveStore) MarkRated(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE match_archive SET already_rated = true
		WHERE id = $1 AND NOT already_rated`,
		sessionID)
	if err != nil {
		return false, fmt.Errorf("mark rated: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LoadRecord returns the archived record for a session.
func (s *ArchiveStore) LoadRecord(ctx context.Context, sessionID string) (domain.SessionRecord, error) {
	var raw []byte
	var rated bool
	err := s.pool.QueryRow(ctx, `SELECT data, already_rated FROM match_archive WHERE id=$1`, sessionID).Scan(&raw, &rated)
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("load record: %w", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}
	rec.AlreadyRated = rated
	return rec, nil
}
