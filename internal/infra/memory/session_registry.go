package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an admin session stays valid.
const DefaultSessionTTL = 24 * time.Hour

// SessionRegistry is an in-memory implementation of app.SessionRegistry.
// Expired tokens are evicted lazily when validated; nothing sweeps in the
// background. A process restart forgets every session.
type SessionRegistry struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	return NewSessionRegistryWithClock(ttl, time.Now)
}

// NewSessionRegistryWithClock is test-only for deterministic expiry.
func NewSessionRegistryWithClock(ttl time.Duration, clock func() time.Time) *SessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRegistry{
		ttl:      ttl,
		clock:    clock,
		sessions: make(map[string]time.Time),
	}
}

func (r *SessionRegistry) Issue(_ context.Context) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.sessions[token] = r.clock()
	r.mu.Unlock()
	return token, nil
}

func (r *SessionRegistry) Validate(_ context.Context, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	issuedAt, ok := r.sessions[token]
	if !ok {
		return false
	}
	if r.clock().Sub(issuedAt) > r.ttl {
		delete(r.sessions, token)
		return false
	}
	return true
}

func (r *SessionRegistry) Revoke(_ context.Context, token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// Len reports how many sessions are held, expired ones included.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
