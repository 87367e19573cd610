package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"timed-quiz-service/internal/domain"
)

// QuestionLoader fetches question sets from the backing store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, testID string) ([]domain.Question, error)
}

// QuestionCache caches question sets per test id with TTL to avoid repeated
// store hits. Admin edits call Invalidate, so the TTL only bounds memory.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	gen   uint64
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, testID string) ([]domain.Question, error) {
	if qs, ok := c.lookup(testID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(testID, func() (interface{}, error) {
		if qs, ok := c.lookup(testID); ok {
			return qs, nil
		}

		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		qs, err := c.loader.ListQuestions(ctx, testID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// An invalidation during the load means qs may already be stale.
		if gen == c.gen {
			c.cache[testID] = cachedQuestions{
				questions: qs,
				expiresAt: c.clock().Add(c.ttlWithJitter()),
			}
		}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result.([]domain.Question)), nil
}

// Invalidate drops every cached set.
func (c *QuestionCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	c.gen++
	c.cache = make(map[string]cachedQuestions)
	c.mu.Unlock()
	return nil
}

func (c *QuestionCache) lookup(testID string) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[testID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return clone(entry.questions), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func clone(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	return out
}
