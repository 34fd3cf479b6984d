package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
)

// setupRedis 啟動 Redis 測試容器；沒有 Docker 時略過
func setupRedis(t *testing.T) *storage.RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	require.NoError(t, client.Ping(ctx).Err())

	s := storage.NewRedisStore(client)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_Primitives(t *testing.T) {
	s := setupRedis(t)
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "lock:room:1", "token-a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "lock:room:1", "token-b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := s.CompareAndDelete(ctx, "lock:room:1", "token-b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = s.CompareAndDelete(ctx, "lock:room:1", "token-a")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.Get(ctx, "lock:room:1")
	assert.ErrorIs(t, err, storage.ErrNil)

	require.NoError(t, s.Set(ctx, "room:1", `{"version":1}`, 0))
	swapped, err := s.CompareAndSwap(ctx, "room:1", `{"version":0}`, `{"version":2}`, 0)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = s.CompareAndSwap(ctx, "room:1", `{"version":1}`, `{"version":2}`, time.Minute)
	require.NoError(t, err)
	assert.True(t, swapped)

	_, err = s.SAdd(ctx, "quiz:q:1:participants", "x", "y")
	require.NoError(t, err)
	op := storage.SetAppend{
		SetKey:   "quiz:q:1:submitted",
		Member:   "x",
		ListKey:  "quiz:log:x",
		Entry:    `{"questionNumber":1}`,
		CountKey: "quiz:q:1:participants",
		TTL:      time.Minute,
	}
	res, err := s.SAddAppend(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, storage.SetAppendResult{Added: true, SetSize: 1, CountSize: 2}, res)

	res, err = s.SAddAppend(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, storage.SetAppendResult{Added: false, SetSize: 1, CountSize: 2}, res)

	log, err := s.LRange(ctx, "quiz:log:x", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{op.Entry}, log)
}

func TestRedisStore_PublishSubscribe(t *testing.T) {
	s := setupRedis(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "room.*")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Publish(ctx, "room.r1", []byte("hello")))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "room.r1", msg.Channel)
		assert.Equal(t, "hello", string(msg.Payload))
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}
