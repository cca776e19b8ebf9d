package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotationKeyPrefix = "rt:rot:"
	issuedKeyPrefix   = "rt:tok:"
)

// Rotation records that oldJTI was already rotated into NewJTI. Keyed by the
// old jti for the duration of the grace window.
type Rotation struct {
	NewJTI string `json:"new_jti"`
}

// IssuedToken carries the successor token produced by a rotation so a
// duplicate refresh inside the grace window can return the identical pair.
type IssuedToken struct {
	Plaintext string    `json:"plaintext"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReplayCache is the short-TTL store that makes near-simultaneous duplicate
// refresh calls idempotent. Best effort only: a miss sends the caller down
// the theft-response path. The session row in the database stays
// authoritative.
type ReplayCache struct {
	rdb redis.UniversalClient
}

func New(rdb redis.UniversalClient) *ReplayCache {
	return &ReplayCache{rdb: rdb}
}

func (c *ReplayCache) PutRotation(ctx context.Context, oldJTI, newJTI string, ttl time.Duration) error {
	payload, err := json.Marshal(Rotation{NewJTI: newJTI})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, rotationKeyPrefix+oldJTI, payload, ttl).Err()
}

// GetRotation returns the successor jti for oldJTI, or "" on a miss.
func (c *ReplayCache) GetRotation(ctx context.Context, oldJTI string) (string, error) {
	raw, err := c.rdb.Get(ctx, rotationKeyPrefix+oldJTI).Bytes()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	var rot Rotation
	if err := json.Unmarshal(raw, &rot); err != nil {
		return "", err
	}
	return rot.NewJTI, nil
}

func (c *ReplayCache) PutIssued(ctx context.Context, jti string, tok IssuedToken, ttl time.Duration) error {
	payload, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, issuedKeyPrefix+jti, payload, ttl).Err()
}

// GetIssued returns the cached successor token for jti, or nil on a miss.
func (c *ReplayCache) GetIssued(ctx context.Context, jti string) (*IssuedToken, error) {
	raw, err := c.rdb.Get(ctx, issuedKeyPrefix+jti).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var tok IssuedToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}
