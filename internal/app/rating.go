package app

import (
	"math"

	"duel-quiz-service/internal/domain"
)

// RatingEngine applies the symmetric two-party Elo-style update. K and Floor
// are configuration; see config.Duel.
type RatingEngine struct {
	K     float64
	Floor int
}

// Update computes both players' rating changes from a finished result set.
// Delta is the applied change, so After == Before + Delta even when the
// floor clips the raw adjustment.
func (e RatingEngine) Update(rs domain.ResultSet, ratings map[string]int) []domain.RatingUpdate {
	if len(rs.Players) != 2 {
		return nil
	}
	a, b := rs.Players[0], rs.Players[1]
	updates := []domain.RatingUpdate{
		e.single(a, ratings[a.PlayerID], ratings[b.PlayerID]),
		e.single(b, ratings[b.PlayerID], ratings[a.PlayerID]),
	}
	return updates
}

func (e RatingEngine) single(entry domain.PlayerResult, rating, opponentRating int) domain.RatingUpdate {
	expected := expectedScore(rating, opponentRating)
	actual := actualScore(entry.Result)
	raw := int(math.Round(e.K * (actual - expected)))

	after := rating + raw
	if after < e.Floor {
		after = e.Floor
	}
	return domain.RatingUpdate{
		PlayerID: entry.PlayerID,
		Before:   rating,
		After:    after,
		Delta:    after - rating,
	}
}

func expectedScore(rating, opponentRating int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponentRating-rating)/400))
}

func actualScore(result domain.MatchResult) float64 {
	switch result {
	case domain.ResultWin:
		return 1
	case domain.ResultDraw:
		return 0.5
	default:
		return 0
	}
}
