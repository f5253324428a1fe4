package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList answers whether a bearer token was revoked before it expired.
// Revocations are written by the identity service on logout; the engine reads
// them and writes them only in tests and operator tooling.
type RevocationList interface {
	// IsRevoked reports whether the token with this jti was revoked
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// IsUserRevoked reports whether every token of userID issued at or
	// before the revocation time was invalidated
	IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
}

const revocationKeyPrefix = "jwt:blacklist:"

// RedisRevocationList reads revocations from Redis
type RedisRevocationList struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRevocationList wraps an existing client
func NewRedisRevocationList(client *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{client: client, keyPrefix: revocationKeyPrefix}
}

func (r *RedisRevocationList) jtiKey(jti string) string {
	return r.keyPrefix + "jti:" + jti
}

func (r *RedisRevocationList) userKey(userID string) string {
	return r.keyPrefix + "user:" + userID
}

// IsRevoked implements RevocationList
func (r *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// IsUserRevoked implements RevocationList
func (r *RedisRevocationList) IsUserRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, err := r.client.Get(ctx, r.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user revocation: %w", err)
	}
	revokedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("failed to parse revocation timestamp: %w", err)
	}
	return issuedAt.Unix() <= revokedAt, nil
}

// Revoke implements RevocationList. ttl should be the token's remaining lifetime.
func (r *RedisRevocationList) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeUser implements RevocationList
func (r *RedisRevocationList) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.userKey(userID), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

var _ RevocationList = (*RedisRevocationList)(nil)

// InMemoryRevocationList is a single-process RevocationList
type InMemoryRevocationList struct {
	mu    sync.Mutex
	jtis  map[string]time.Time // jti -> entry expiry
	users map[string]time.Time // user -> revocation time
}

// NewInMemoryRevocationList creates an empty list
func NewInMemoryRevocationList() *InMemoryRevocationList {
	return &InMemoryRevocationList{
		jtis:  make(map[string]time.Time),
		users: make(map[string]time.Time),
	}
}

// IsRevoked implements RevocationList
func (l *InMemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiry, ok := l.jtis[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(l.jtis, jti)
		return false, nil
	}
	return true, nil
}

// IsUserRevoked implements RevocationList
func (l *InMemoryRevocationList) IsUserRevoked(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	revokedAt, ok := l.users[userID]
	if !ok {
		return false, nil
	}
	return !issuedAt.After(revokedAt), nil
}

// Revoke implements RevocationList
func (l *InMemoryRevocationList) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jtis[jti] = time.Now().Add(ttl)
	return nil
}

// RevokeUser implements RevocationList. The ttl is ignored.
func (l *InMemoryRevocationList) RevokeUser(_ context.Context, userID string, _ time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[userID] = time.Now()
	return nil
}

var _ RevocationList = (*InMemoryRevocationList)(nil)
