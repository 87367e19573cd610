package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"timed-quiz-service/internal/infra/memory"
)

// SessionRegistry keeps admin sessions in Redis so several server instances
// share them. Each token is a key holding its issue time; validation applies
// the same lazy age check as the in-memory registry and deletes stale keys.
// The Redis TTL only reclaims keys nobody asks about again.
//
//	SET admin:session:{token} {issuedAtUnixNano} EX ttl
type SessionRegistry struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration) *SessionRegistry {
	return NewSessionRegistryWithClock(client, ttl, time.Now)
}

// NewSessionRegistryWithClock is test-only for deterministic expiry.
func NewSessionRegistryWithClock(client *redis.Client, ttl time.Duration, clock func() time.Time) *SessionRegistry {
	if ttl <= 0 {
		ttl = memory.DefaultSessionTTL
	}
	return &SessionRegistry{client: client, ttl: ttl, clock: clock}
}

func (r *SessionRegistry) Issue(ctx context.Context) (string, error) {
	token, err := memory.NewToken()
	if err != nil {
		return "", err
	}
	issuedAt := strconv.FormatInt(r.clock().UnixNano(), 10)
	if err := r.client.Set(ctx, r.key(token), issuedAt, r.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Validate fails closed: any Redis error makes the token invalid.
func (r *SessionRegistry) Validate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	raw, err := r.client.Get(ctx, r.key(token)).Result()
	if err != nil {
		return false
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || r.clock().Sub(time.Unix(0, nanos)) > r.ttl {
		_ = r.client.Del(ctx, r.key(token)).Err()
		return false
	}
	return true
}

func (r *SessionRegistry) Revoke(ctx context.Context, token string) {
	_ = r.client.Del(ctx, r.key(token)).Err()
}

func (r *SessionRegistry) key(token string) string {
	return "admin:session:" + token
}
