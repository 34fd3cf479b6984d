package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
)

// compareAndSwapScript 只在目前值等於 ARGV[1] 時寫入 ARGV[2]
//
// KEYS[1]: 目標 key
// ARGV[1]: 預期的舊值
// ARGV[2]: 新值
// ARGV[3]: 過期毫秒數，0 代表不過期
var compareAndSwapScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// compareAndDeleteScript 只在目前值等於 ARGV[1] 時刪除，用於釋放鎖
var compareAndDeleteScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// sAddAppendScript 成員真的加入 KEYS[1] 時才把 ARGV[2] 附加到 KEYS[2]
//
// KEYS[3]: 只讀取大小的集合
// ARGV[3]: 過期毫秒數，0 代表不過期
// 回傳 {added, SCARD KEYS[1], SCARD KEYS[3]}
var sAddAppendScript = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
if added == 1 then
  redis.call('RPUSH', KEYS[2], ARGV[2])
  local ttl = tonumber(ARGV[3])
  if ttl > 0 then
    redis.call('PEXPIRE', KEYS[1], ttl)
    redis.call('PEXPIRE', KEYS[2], ttl)
  end
end
return {added, redis.call('SCARD', KEYS[1]), redis.call('SCARD', KEYS[3])}
`)

// RedisStore 以 Redis 實作的 SharedStore
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient 依設定建立客戶端並確認連線
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore 包裝既有的客戶端
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func nilToErrNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNil
	}
	return err
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	return v, nilToErrNil(err)
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	n, err := compareAndSwapScript.Run(ctx, s.client, []string{key}, expected, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, expected).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	return s.client.SAdd(ctx, key, toArgs(members)...).Result()
}

// SAddAppend 以 Lua 腳本在單一指令內完成加入、附加與計數
func (s *RedisStore) SAddAppend(ctx context.Context, op SetAppend) (SetAppendResult, error) {
	vals, err := sAddAppendScript.Run(ctx, s.client,
		[]string{op.SetKey, op.ListKey, op.CountKey},
		op.Member, op.Entry, op.TTL.Milliseconds()).Int64Slice()
	if err != nil {
		return SetAppendResult{}, err
	}
	if len(vals) != 3 {
		return SetAppendResult{}, fmt.Errorf("storage: unexpected SAddAppend reply %v", vals)
	}
	return SetAppendResult{Added: vals[0] == 1, SetSize: vals[1], CountSize: vals[2]}, nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	return s.client.SRem(ctx, key, toArgs(members)...).Result()
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	return s.client.SCard(ctx, key).Result()
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	return v, nilToErrNil(err)
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	return s.client.HDel(ctx, key, fields...).Result()
}

func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	return s.client.RPush(ctx, key, toArgs(values)...).Result()
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe 使用 PSUBSCRIBE；等到伺服器確認訂閱後才返回
func (s *RedisStore) Subscribe(ctx context.Context, pattern string) (Subscription, error) {
	ps := s.client.PSubscribe(ctx, pattern)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := &redisSubscription{ps: ps, ch: make(chan Message, 256)}
	go sub.forward()
	return sub, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisSubscription struct {
	ps *redis.PubSub
	ch chan Message
}

func (r *redisSubscription) forward() {
	defer close(r.ch)
	for msg := range r.ps.Channel() {
		r.ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (r *redisSubscription) Channel() <-chan Message { return r.ch }

func (r *redisSubscription) Close() error { return r.ps.Close() }

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
