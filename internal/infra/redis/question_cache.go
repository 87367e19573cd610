package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"timed-quiz-service/internal/domain"
)

// QuestionLoader fetches question sets from the backing store.
type QuestionLoader interface {
	ListQuestions(ctx context.Context, testID string) ([]domain.Question, error)
}

// QuestionCache caches question sets in Redis and falls back to a loader on
// cache miss. Each set is stored as JSON under the current generation:
//
//	GET questions:gen                        -> N (missing means 0)
//	SET questions:{N}:test:{testID} [...]    (questions:{N}:all for every question)
//
// Invalidate bumps the generation, so a load that started before it writes
// under a key nobody reads anymore.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, testID string) ([]domain.Question, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return c.loader.ListQuestions(ctx, testID)
	}
	key := c.key(gen, testID)
	if qs, ok := c.lookup(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.lookup(ctx, key); ok {
			return qs, nil
		}

		qs, err := c.loader.ListQuestions(ctx, testID)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(qs)
		if err == nil {
			// best-effort; a failed write only costs a reload
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate starts a new generation and deletes every cached question set.
func (c *QuestionCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, genKey).Err(); err != nil {
		return err
	}
	iter := c.client.Scan(ctx, 0, "questions:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		if iter.Val() != genKey {
			keys = append(keys, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

const genKey = "questions:gen"

func (c *QuestionCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *QuestionCache) lookup(ctx context.Context, key string) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (c *QuestionCache) key(gen int64, testID string) string {
	prefix := "questions:" + strconv.FormatInt(gen, 10)
	if testID == "" {
		return prefix + ":all"
	}
	return prefix + ":test:" + testID
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
