package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"duel-quiz-service/internal/app"
	"duel-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a domain's question pool from a backing store.
type QuestionLoader interface {
	LoadPool(ctx context.Context, domainTag string) ([]domain.Question, error)
}

// QuestionRepository caches per-domain pools with TTL to avoid repeated DB
// hits, then samples balanced sequences from them.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

// FetchSequence loads the pools the composition names and samples from them.
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
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[domainTag]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(domainTag, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[domainTag]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		pool, err := r.loader.LoadPool(ctx, domainTag)
		if err != nil {
			return nil, err
		}

		expiresAt := now.Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[domainTag] = cachedPool{
			questions: pool,
			expiresAt: expiresAt,
		}
		r.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	jitter := time.Duration(r.rnd.Int63n(jitterMax + 1))
	r.mu.Unlock()
	return r.ttl + jitter
}

// StaticQuestionLoader serves pools from an in-memory map (tests/demos).
type StaticQuestionLoader struct {
	pools map[string][]domain.Question
}

func NewStaticQuestionLoader(pools map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{pools: pools}
}

func (l *StaticQuestionLoader) LoadPool(_ context.Context, domainTag string) ([]domain.Question, error) {
	if pool, ok := l.pools[domainTag]; ok {
		return pool, nil
	}
	return nil, domain.ErrInsufficientQuestions
}
