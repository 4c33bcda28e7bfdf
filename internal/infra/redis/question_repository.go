package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"duel-quiz-service/internal/app"
	"duel-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a domain's question pool from a backing store.
type QuestionLoader interface {
	LoadPool(ctx context.Context, domainTag string) ([]domain.Question, error)
}

// QuestionRepository caches per-domain question pools in Redis as JSON blobs
// (key duel:questions:{domain}) and falls back to a loader on cache miss.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FetchSequence loads each quota's pool (cache first) and samples from them.
func (r *QuestionRepository) FetchSequence(ctx context.Context, quotas []domain.DomainQuota) ([]domain.Question, error) {
	pools := make(map[string][]domain.Question, len(quotas))
	for _, quota := range quotas {
		pool, err := r.getPool(ctx, quota.Domain)
		if err != nil {
			return nil, err
		}
		pools[quota.Domain] = pool
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return app.SampleSequence(r.rnd, pools, quotas)
}

func (r *QuestionRepository) getPool(ctx context.Context, domainTag string) ([]domain.Question, error) {
	key := r.poolKey(domainTag)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
		var pool []domain.Question
		if err := json.Unmarshal(raw, &pool); err == nil {
			return pool, nil
		}
	}

	result, err, _ := r.sf.Do(domainTag, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
			var pool []domain.Question
			if err := json.Unmarshal(raw, &pool); err == nil {
				return pool, nil
			}
		}

		pool, err := r.loader.LoadPool(ctx, domainTag)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(pool); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) poolKey(domainTag string) string {
	return "duel:questions:" + domainTag
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
