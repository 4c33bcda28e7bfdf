package app

import (
	"math/rand"

	"duel-quiz-service/internal/domain"
)

// SampleSequence draws a question sequence honoring the fixed per-domain
// composition, picking without replacement from each pool and shuffling the
// combined order. Infrastructure repositories share this after loading pools.
func SampleSequence(rnd *rand.Rand, pools map[string][]domain.Question, quotas []domain.DomainQuota) ([]domain.Question, error) {
	var sequence []domain.Question
	for _, quota := range quotas {
		pool := pools[quota.Domain]
		if len(pool) < quota.Count {
			return nil, domain.ErrInsufficientQuestions
		}
		for _, idx := range rnd.Perm(len(pool))[:quota.Count] {
			sequence = append(sequence, pool[idx])
		}
	}
	rnd.Shuffle(len(sequence), func(i, j int) {
		sequence[i], sequence[j] = sequence[j], sequence[i]
	})
	return sequence, nil
}
