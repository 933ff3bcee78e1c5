package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces bucket keys in Redis; the subject follows it.
const DefaultKeyPrefix = "printflow:ratelimit"

// Decision is the outcome of one weighted token request against a subject's
// bucket.
type Decision struct {
	Allowed    bool
	Cost       int64
	Remaining  int64
	RetryAfter time.Duration
}

// takeTokens refills the bucket for the elapsed time and then tries to take
// ARGV[4] tokens. The bucket is a hash of the token balance and the time it
// was last touched.
var takeTokens = redis.NewScript(`
local bucket = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call("HMGET", bucket, "tokens", "ts")
local balance = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now

balance = math.min(capacity, balance + math.max(0, now - last) * rate)

local granted = 0
local wait = 0
if balance >= cost then
  balance = balance - cost
  granted = 1
else
  wait = math.ceil((cost - balance) / rate)
end

redis.call("HSET", bucket, "tokens", balance, "ts", now)
redis.call("PEXPIRE", bucket, ttl)

return {granted, math.floor(balance), wait}
`)

// RedisTokenBucket is a weighted token bucket shared by every API replica.
// Capacity tokens refill evenly over one window.
type RedisTokenBucket struct {
	client      redis.UniversalClient
	capacity    int64
	refillPerMS float64
	ttl         time.Duration
	keyPrefix   string
	now         func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("redis client is required")
	case capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive")
	case window <= 0:
		return nil, fmt.Errorf("window must be positive")
	}

	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:      client,
		capacity:    int64(capacity),
		refillPerMS: float64(capacity) / float64(max(1, window.Milliseconds())),
		ttl:         2 * window,
		keyPrefix:   keyPrefix,
		now:         time.Now,
	}, nil
}

// Allow takes cost tokens from the subject's bucket. Subjects are typically
// "<user>:<route>" and the cost reflects how expensive the route is, so a
// full print render drains the bucket faster than a mask preview.
func (l *RedisTokenBucket) Allow(ctx context.Context, subject string, cost int) (Decision, error) {
	tokens := l.tokenCost(cost)

	raw, err := takeTokens.Run(
		ctx,
		l.client,
		[]string{l.bucketKey(subject)},
		l.capacity,
		l.refillPerMS,
		l.now().UTC().UnixMilli(),
		tokens,
		l.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		return Decision{}, err
	}
	decision.Cost = tokens
	return decision, nil
}

// tokenCost keeps a request satisfiable: a cost above capacity would never
// be granted, so it is capped to a full bucket.
func (l *RedisTokenBucket) tokenCost(cost int) int64 {
	return min(max(1, int64(cost)), l.capacity)
}

func (l *RedisTokenBucket) bucketKey(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":" + subject
}

func parseDecision(raw any) (Decision, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("invalid token bucket response %v", raw)
	}

	var parsed [3]int64
	for i, name := range []string{"allow", "remaining", "retry-after"} {
		v, err := toInt64(values[i])
		if err != nil {
			return Decision{}, fmt.Errorf("parse %s value: %w", name, err)
		}
		parsed[i] = v
	}

	return Decision{
		Allowed:    parsed[0] == 1,
		Remaining:  parsed[1],
		RetryAfter: time.Duration(parsed[2]) * time.Millisecond,
	}, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
