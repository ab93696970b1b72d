package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares session generations across processes and survives restarts.
// A TTL bounds growth for abandoned subjects; an expired counter reads as 0 and the
// next Advance resumes above the caller's floor.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration // 0 disables expiry
}

var _ GenStore = (*RedisGenStore)(nil)

// NewRedisGenStore creates a Redis-backed generation store. If ttl <= 0, keys do not expire.
func NewRedisGenStore(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisGenStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisGenStore{rdb: client, ns: namespace, ttl: ttl}
}

func (s *RedisGenStore) key(subject string) string { return "vox:session:" + s.ns + ":" + subject }

func (s *RedisGenStore) Current(ctx context.Context, subject string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(subject)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis gen parse: %w", err)
	}
	return u, nil
}

func (s *RedisGenStore) CurrentMany(ctx context.Context, subjects []string) (map[string]uint64, error) {
	if len(subjects) == 0 {
		return map[string]uint64{}, nil
	}
	keys := make([]string, len(subjects))
	for i, k := range subjects {
		keys[i] = s.key(k)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]uint64, len(subjects))
	for i, v := range vals {
		if v == nil {
			out[subjects[i]] = 0
			continue
		}
		u, err := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis gen parse at %s: %w", subjects[i], err)
		}
		out[subjects[i]] = u
	}
	return out, nil
}

// advanceScript raises the counter to at least the floor, increments it and
// refreshes the TTL in one atomic step.
var advanceScript = redis.NewScript(`
local v = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if v < floor then v = floor end
v = v + 1
redis.call("SET", KEYS[1], v)
local ttl = tonumber(ARGV[2])
if ttl > 0 then redis.call("PEXPIRE", KEYS[1], ttl) end
return v
`)

// Advance runs advanceScript (EVALSHA, falling back to EVAL).
func (s *RedisGenStore) Advance(ctx context.Context, subject string, floor uint64) (uint64, error) {
	v, err := advanceScript.Run(ctx, s.rdb, []string{s.key(subject)},
		strconv.FormatUint(floor, 10), s.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (s *RedisGenStore) Forget(ctx context.Context, subject string) error {
	return s.rdb.Del(ctx, s.key(subject)).Err()
}

// Cleanup is not applicable; Redis expires keys when a TTL is set.
func (s *RedisGenStore) Cleanup(time.Duration) {}

// Close does not close the client; its owner does.
func (s *RedisGenStore) Close(context.Context) error { return nil }
