package otp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// expiredRetention keeps an expired record around long enough that a late
// verify still reports it as expired rather than missing.
const expiredRetention = time.Hour

var compareAndDeleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'hash') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Returns the ConsumeResult ordinal.
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'hash', 'exp')
if not v[1] then
  return 0
end
if tonumber(ARGV[2]) > tonumber(v[2]) then
  redis.call('DEL', KEYS[1])
  return 1
end
if v[1] ~= ARGV[1] then
  return 2
end
redis.call('DEL', KEYS[1])
return 3
`)

// RedisStore shares OTP records between instances. Each phone maps to one
// hash key `<namespace>:otp:<phone>` holding the code hash and expiry in
// unix milliseconds.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) key(phone string) string {
	return s.namespace + ":otp:" + phone
}

func (s *RedisStore) Put(ctx context.Context, phone string, rec Record) error {
	key := s.key(phone)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", rec.Hash, "exp", rec.ExpiresAt.UnixMilli())
		pipe.PExpireAt(ctx, key, rec.ExpiresAt.Add(expiredRetention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put otp: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, phone string) (Record, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key(phone)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("redis get otp: %w", err)
	}
	if len(values) == 0 {
		return Record{}, false, nil
	}
	exp, err := strconv.ParseInt(values["exp"], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("redis otp expiry: %w", err)
	}
	return Record{Hash: values["hash"], ExpiresAt: time.UnixMilli(exp)}, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	return s.client.Del(ctx, s.key(phone)).Err()
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, phone, hash string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{s.key(phone)}, hash).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare and delete otp: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Consume(ctx context.Context, phone, hash string, now time.Time) (ConsumeResult, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(phone)}, hash, now.UnixMilli()).Int()
	if err != nil {
		return ConsumeNotFound, fmt.Errorf("redis consume otp: %w", err)
	}
	return ConsumeResult(n), nil
}
