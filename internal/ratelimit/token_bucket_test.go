package ratelimit

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisTokenBucketValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewRedisTokenBucket(nil, 10, time.Minute, "")
	require.Error(t, err)
	_, err = NewRedisTokenBucket(client, 0, time.Minute, "")
	require.Error(t, err)
	_, err = NewRedisTokenBucket(client, 10, 0, "")
	require.Error(t, err)

	limiter, err := NewRedisTokenBucket(client, 60, time.Minute, " ")
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyPrefix, limiter.keyPrefix)
	assert.InDelta(t, 0.001, limiter.refillPerMS, 1e-12)
	assert.Equal(t, 2*time.Minute, limiter.ttl)
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{int64(7), 7},
		{3, 3},
		{float64(2.9), 2},
		{"42", 42},
	}
	for _, tc := range cases {
		got, err := toInt64(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := toInt64("x")
	assert.Error(t, err)
	_, err = toInt64([]byte("1"))
	assert.Error(t, err)
}

func TestTokenCostIsClampedToBucket(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewRedisTokenBucket(client, 20, time.Minute, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), limiter.tokenCost(0))
	assert.Equal(t, int64(1), limiter.tokenCost(-4))
	assert.Equal(t, int64(8), limiter.tokenCost(8))
	assert.Equal(t, int64(20), limiter.tokenCost(500))
}

func TestBucketKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewRedisTokenBucket(client, 5, time.Minute, "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, "tenant-a:u1:/v1/print", limiter.bucketKey(" u1:/v1/print "))
	assert.Equal(t, "tenant-a:anonymous", limiter.bucketKey(""))
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision([]any{int64(0), int64(3), int64(2500)})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(3), d.Remaining)
	assert.Equal(t, 2500*time.Millisecond, d.RetryAfter)

	d, err = parseDecision([]any{int64(1), "7", int64(0)})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(7), d.Remaining)

	_, err = parseDecision([]any{int64(1)})
	assert.Error(t, err)
	_, err = parseDecision("OK")
	assert.Error(t, err)
	_, err = parseDecision([]any{int64(1), []byte("x"), int64(0)})
	assert.Error(t, err)
}
