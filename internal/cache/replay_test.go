package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReplayCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb), mr
}

func TestReplayCache_RotationRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRotation(ctx, "old-jti", "new-jti", 30*time.Second))

	got, err := c.GetRotation(ctx, "old-jti")
	require.NoError(t, err)
	assert.Equal(t, "new-jti", got)
}

func TestReplayCache_MissReturnsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	got, err := c.GetRotation(ctx, "never-seen")
	require.NoError(t, err)
	assert.Empty(t, got)

	tok, err := c.GetIssued(ctx, "never-seen")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestReplayCache_IssuedRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	expiry := time.Now().Add(14 * 24 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, c.PutIssued(ctx, "new-jti", IssuedToken{
		Plaintext: "new-jti.secret",
		ExpiresAt: expiry,
	}, 30*time.Second))

	tok, err := c.GetIssued(ctx, "new-jti")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "new-jti.secret", tok.Plaintext)
	assert.True(t, tok.ExpiresAt.Equal(expiry))
}

func TestReplayCache_EntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutRotation(ctx, "old-jti", "new-jti", 30*time.Second))
	require.NoError(t, c.PutIssued(ctx, "new-jti", IssuedToken{Plaintext: "p"}, 30*time.Second))

	mr.FastForward(31 * time.Second)

	got, err := c.GetRotation(ctx, "old-jti")
	require.NoError(t, err)
	assert.Empty(t, got)

	tok, err := c.GetIssued(ctx, "new-jti")
	require.NoError(t, err)
	assert.Nil(t, tok)
}
