package app

import (
	"fmt"
	"testing"
	"time"

	"duel-quiz-service/internal/domain"
)

func applyResult(agg StatsAggregator, stats domain.PlayerStats, result domain.MatchResult, score float64, after, delta int, session string) domain.PlayerStats {
	return agg.Apply(stats,
		domain.PlayerResult{PlayerID: "p1", Score: score, Result: result},
		domain.RatingUpdate{PlayerID: "p1", Before: after - delta, After: after, Delta: delta},
		"p2", session, time.Now())
}

func TestStatsCountersAndStreaks(t *testing.T) {
	agg := StatsAggregator{QuestionCount: 10}
	stats := domain.PlayerStats{PlayerID: "p1", Rating: domain.DefaultRating}

	stats = applyResult(agg, stats, domain.ResultWin, 6, 1216, 16, "s1")
	stats = applyResult(agg, stats, domain.ResultWin, 7, 1232, 16, "s2")
	stats = applyResult(agg, stats, domain.ResultLoss, 2, 1216, -16, "s3")
	stats = applyResult(agg, stats, domain.ResultDraw, 5, 1216, 0, "s4")

	if stats.GamesPlayed != 4 || stats.Won != 2 || stats.Lost != 1 || stats.Tied != 1 {
		t.Fatalf("counters wrong: %+v", stats)
	}
	if stats.MaxWinStreak != 2 || stats.CurrentWinStreak != 0 {
		t.Fatalf("win streak wrong: max=%d current=%d", stats.MaxWinStreak, stats.CurrentWinStreak)
	}
	if stats.CurrentLossStreak != 0 {
		t.Fatalf("draw must reset the loss streak, got %d", stats.CurrentLossStreak)
	}
	if stats.TotalScore != 20 || stats.AverageScore != 5 {
		t.Fatalf("score aggregates wrong: total=%v avg=%v", stats.TotalScore, stats.AverageScore)
	}
	if stats.BestScore != 7 || stats.WorstScore != 2 {
		t.Fatalf("best/worst wrong: best=%v worst=%v", stats.BestScore, stats.WorstScore)
	}
}

func TestFirstGameInitializesBestAndWorst(t *testing.T) {
	agg := StatsAggregator{QuestionCount: 10}
	stats := domain.PlayerStats{PlayerID: "p1", Rating: domain.DefaultRating}

	// A negative score must become both best and worst, not compare against zero.
	stats = applyResult(agg, stats, domain.ResultLoss, -2, 1184, -16, "s1")
	if stats.BestScore != -2 || stats.WorstScore != -2 {
		t.Fatalf("first game must seed both bounds: best=%v worst=%v", stats.BestScore, stats.WorstScore)
	}
}

func TestRatingHistoryEvictsOldest(t *testing.T) {
	agg := StatsAggregator{QuestionCount: 10}
	stats := domain.PlayerStats{PlayerID: "p1", Rating: domain.DefaultRating}

	for i := 1; i <= ratingHistoryCap+1; i++ {
		stats = applyResult(agg, stats, domain.ResultDraw, 5, 1200, 0, fmt.Sprintf("s%d", i))
	}

	if len(stats.RatingHistory) != ratingHistoryCap {
		t.Fatalf("history length = %d, want %d", len(stats.RatingHistory), ratingHistoryCap)
	}
	if stats.RatingHistory[0].SessionID != "s2" {
		t.Fatalf("oldest entry must be evicted, got %s first", stats.RatingHistory[0].SessionID)
	}
	if stats.RatingHistory[len(stats.RatingHistory)-1].SessionID != fmt.Sprintf("s%d", ratingHistoryCap+1) {
		t.Fatalf("newest entry missing from tail")
	}
}

func TestRecentBuffersAreNewestFirst(t *testing.T) {
	agg := StatsAggregator{QuestionCount: 10}
	stats := domain.PlayerStats{PlayerID: "p1", Rating: domain.DefaultRating}

	for i := 1; i <= recentHistoryCap+3; i++ {
		stats = applyResult(agg, stats, domain.ResultDraw, float64(i), 1200, 0, fmt.Sprintf("s%d", i))
	}

	if len(stats.RecentForm) != recentFormCap {
		t.Fatalf("recent form length = %d, want %d", len(stats.RecentForm), recentFormCap)
	}
	if len(stats.RecentHistory) != recentHistoryCap {
		t.Fatalf("recent history length = %d, want %d", len(stats.RecentHistory), recentHistoryCap)
	}
	if stats.RecentForm[0].Score != float64(recentHistoryCap+3) {
		t.Fatalf("newest result must sit at the front, got score %v", stats.RecentForm[0].Score)
	}
}

func TestAchievementsUnlockOnceAndNeverRevoke(t *testing.T) {
	agg := StatsAggregator{QuestionCount: 10}
	stats := domain.PlayerStats{PlayerID: "p1", Rating: domain.DefaultRating}

	stats = applyResult(agg, stats, domain.ResultWin, 10, 1216, 16, "s1")
	if !stats.HasAchievement(domain.AchievementFirstWin) {
		t.Fatalf("first win must unlock first_win")
	}
	if !stats.HasAchievement(domain.AchievementPerfectScore) {
		t.Fatalf("score 10 of 10 must unlock perfect_score")
	}

	firstWins := 0
	stats = applyResult(agg, stats, domain.ResultWin, 8, 1232, 16, "s2")
	for _, a := range stats.Achievements {
		if a.Type == domain.AchievementFirstWin {
			firstWins++
		}
	}
	if firstWins != 1 {
		t.Fatalf("first_win unlocked %d times, want once", firstWins)
	}

	// Streak achievements key off the historical maximum, so losing later
	// never takes them back.
	stats = applyResult(agg, stats, domain.ResultWin, 9, 1248, 16, "s3")
	if !stats.HasAchievement(domain.AchievementWinStreak3) {
		t.Fatalf("three straight wins must unlock win_streak_3")
	}
	stats = applyResult(agg, stats, domain.ResultLoss, 1, 1232, -16, "s4")
	if !stats.HasAchievement(domain.AchievementWinStreak3) {
		t.Fatalf("a loss must not revoke win_streak_3")
	}
}

func TestRatingAchievementThresholds(t *testing.T) {
	agg := StatsAggregator{QuestionCount: 10}
	stats := domain.PlayerStats{PlayerID: "p1", Rating: 1390}

	stats = applyResult(agg, stats, domain.ResultWin, 6, 1406, 16, "s1")
	if !stats.HasAchievement(domain.AchievementRating1400) {
		t.Fatalf("crossing 1400 must unlock rating_1400")
	}
	if stats.HasAchievement(domain.AchievementRating1600) {
		t.Fatalf("rating_1600 must stay locked below 1600")
	}
}
