package app

import (
	"time"

	"duel-quiz-service/internal/domain"
)

const (
	ratingHistoryCap = 50
	recentFormCap    = 5
	recentHistoryCap = 10
)

// StatsAggregator folds one finished result into a player's aggregate
// profile: counters, streaks, bounded history buffers, and achievements.
// Apply is pure over its inputs so re-running it against a fresh snapshot
// is safe; the achievement set only grows.
type StatsAggregator struct {
	QuestionCount int
}

// Apply returns the updated stats for one player of a finished session.
func (a StatsAggregator) Apply(stats domain.PlayerStats, entry domain.PlayerResult, update domain.RatingUpdate, opponentID, sessionID string, now time.Time) domain.PlayerStats {
	stats.GamesPlayed++
	switch entry.Result {
	case domain.ResultWin:
		stats.Won++
		stats.CurrentWinStreak++
		stats.CurrentLossStreak = 0
		if stats.CurrentWinStreak > stats.MaxWinStreak {
			stats.MaxWinStreak = stats.CurrentWinStreak
		}
	case domain.ResultLoss:
		stats.Lost++
		stats.CurrentLossStreak++
		stats.CurrentWinStreak = 0
		if stats.CurrentLossStreak > stats.MaxLossStreak {
			stats.MaxLossStreak = stats.CurrentLossStreak
		}
	default:
		stats.Tied++
		stats.CurrentWinStreak = 0
		stats.CurrentLossStreak = 0
	}

	stats.TotalScore += entry.Score
	stats.AverageScore = stats.TotalScore / float64(stats.GamesPlayed)
	if stats.GamesPlayed == 1 || entry.Score > stats.BestScore {
		stats.BestScore = entry.Score
	}
	if stats.GamesPlayed == 1 || entry.Score < stats.WorstScore {
		stats.WorstScore = entry.Score
	}

	stats.Rating = update.After
	stats.RatingHistory = pushRatingRecord(stats.RatingHistory, domain.RatingRecord{
		Rating:     update.After,
		Delta:      update.Delta,
		OpponentID: opponentID,
		Result:     entry.Result,
		SessionID:  sessionID,
		RecordedAt: now,
	})

	recent := domain.RecentResult{
		Result:      entry.Result,
		OpponentID:  opponentID,
		Score:       entry.Score,
		RatingDelta: update.Delta,
		PlayedAt:    now,
	}
	stats.RecentForm = pushRecentResult(stats.RecentForm, recent, recentFormCap)
	stats.RecentHistory = pushRecentResult(stats.RecentHistory, recent, recentHistoryCap)

	stats.Achievements = append(stats.Achievements, a.newlyUnlocked(stats, sessionID, now)...)
	stats.UpdatedAt = now
	return stats
}

// pushRatingRecord appends FIFO and evicts the oldest entry past capacity.
func pushRatingRecord(history []domain.RatingRecord, rec domain.RatingRecord) []domain.RatingRecord {
	history = append(history, rec)
	if len(history) > ratingHistoryCap {
		history = append([]domain.RatingRecord(nil), history[len(history)-ratingHistoryCap:]...)
	}
	return history
}

// pushRecentResult front-inserts and trims the tail past capacity.
func pushRecentResult(list []domain.RecentResult, rec domain.RecentResult, capacity int) []domain.RecentResult {
	list = append([]domain.RecentResult{rec}, list...)
	if len(list) > capacity {
		list = list[:capacity]
	}
	return list
}

// newlyUnlocked evaluates the monotonic achievement predicates against the
// updated counters and returns those that are true and not already present.
func (a StatsAggregator) newlyUnlocked(stats domain.PlayerStats, sessionID string, now time.Time) []domain.Achievement {
	checks := []struct {
		kind domain.AchievementType
		met  bool
	}{
		{domain.AchievementFirstWin, stats.Won >= 1},
		{domain.AchievementWinStreak3, stats.MaxWinStreak >= 3},
		{domain.AchievementWinStreak5, stats.MaxWinStreak >= 5},
		{domain.AchievementGames10, stats.GamesPlayed >= 10},
		{domain.AchievementGames50, stats.GamesPlayed >= 50},
		{domain.AchievementRating1400, stats.Rating >= 1400},
		{domain.AchievementRating1600, stats.Rating >= 1600},
		{domain.AchievementPerfectScore, a.QuestionCount > 0 && stats.BestScore >= float64(a.QuestionCount)},
	}

	var unlocked []domain.Achievement
	for _, check := range checks {
		if check.met && !stats.HasAchievement(check.kind) {
			unlocked = append(unlocked, domain.Achievement{
				Type:       check.kind,
				UnlockedAt: now,
				SessionID:  sessionID,
			})
		}
	}
	return unlocked
}
