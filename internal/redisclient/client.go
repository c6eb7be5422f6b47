package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pos-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// ErrSessionNotFound is returned when a principal has no live session document.
var ErrSessionNotFound = errors.New("session not found")

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewWithRedis wraps an existing go-redis client.
func NewWithRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection for the readiness check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func sessionKey(principalID string) string {
	return "session:" + principalID
}

// PutSession writes the principal's session document, replacing any prior one.
// The key expires together with the session.
func (c *Client) PutSession(ctx context.Context, s *models.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session for %s already expired", s.PrincipalID)
	}

	if err := c.rdb.Set(ctx, sessionKey(s.PrincipalID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// GetSession returns the principal's live session document
func (c *Client) GetSession(ctx context.Context, principalID string) (*models.Session, error) {
	payload, err := c.rdb.Get(ctx, sessionKey(principalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// DeleteSession removes the principal's session document
func (c *Client) DeleteSession(ctx context.Context, principalID string) error {
	return c.rdb.Del(ctx, sessionKey(principalID)).Err()
}

func revokedKey(app, principalID string) string {
	return fmt.Sprintf("identity:revoked:%s:%s", app, principalID)
}

// RevokeCredentials marks every credential of the principal issued up to now
// as invalid. The mark is kept in microseconds and lives as long as the
// longest credential could.
func (c *Client) RevokeCredentials(ctx context.Context, app, principalID string, now time.Time, ttl time.Duration) error {
	return c.rdb.Set(ctx, revokedKey(app, principalID), now.UnixMicro(), ttl).Err()
}

// RevokedAt returns the revocation instant for the principal, zero if none.
func (c *Client) RevokedAt(ctx context.Context, app, principalID string) (time.Time, error) {
	val, err := c.rdb.Get(ctx, revokedKey(app, principalID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt revocation mark: %w", err)
	}
	return time.UnixMicro(ts), nil
}

// ClaimIdempotencyKey records key for ttl. It returns false if the key was
// already claimed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Result()
}

// GetIdempotencyKey returns the value stored for key, empty if absent
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// ReleaseIdempotencyKey frees a claimed key after a failed attempt
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}
