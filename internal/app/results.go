package app

import "duel-quiz-service/internal/domain"

// computeStandings assigns rank and result to both players and returns the
// immutable result entries. With a leaver the remaining player wins outright;
// otherwise the higher score ranks first and equal scores draw.
func computeStandings(players []*domain.PlayerState, leaverID string) []domain.PlayerResult {
	if leaverID != "" {
		for _, p := range players {
			if p.PlayerID == leaverID {
				p.Result = domain.ResultLoss
				p.Rank = 2
			} else {
				p.Result = domain.ResultWin
				p.Rank = 1
			}
		}
		return resultEntries(players)
	}

	if len(players) == 2 {
		a, b := players[0], players[1]
		switch {
		case a.Score > b.Score:
			a.Result, a.Rank = domain.ResultWin, 1
			b.Result, b.Rank = domain.ResultLoss, 2
		case b.Score > a.Score:
			b.Result, b.Rank = domain.ResultWin, 1
			a.Result, a.Rank = domain.ResultLoss, 2
		default:
			a.Result, a.Rank = domain.ResultDraw, 1
			b.Result, b.Rank = domain.ResultDraw, 1
		}
	}
	return resultEntries(players)
}

func resultEntries(players []*domain.PlayerState) []domain.PlayerResult {
	entries := make([]domain.PlayerResult, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.PlayerResult{
			PlayerID:       p.PlayerID,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			CorrectCount:   p.CorrectCount,
			IncorrectCount: p.IncorrectCount,
			Rank:           p.Rank,
			Result:         p.Result,
		})
	}
	return entries
}
