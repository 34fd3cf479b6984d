package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
)

func TestMemoryStore_SetNXAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	s := storage.NewMemoryStore(clock)

	ok, err := s.SetNX(ctx, "lock:room:1", "a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "lock:room:1", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "key still held")

	clock.Advance(time.Second)

	_, err = s.Get(ctx, "lock:room:1")
	assert.ErrorIs(t, err, storage.ErrNil)

	ok, err = s.SetNX(ctx, "lock:room:1", "b", 0)
	require.NoError(t, err)
	assert.True(t, ok, "expired key can be taken again")
}

func TestMemoryStore_CompareAndSwapAndDelete(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	require.NoError(t, s.Set(ctx, "k", "v1", 0))

	ok, err := s.CompareAndSwap(ctx, "k", "stale", "v2", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSwap(ctx, "k", "v1", "v2", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndDelete(ctx, "k", "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndDelete(ctx, "k", "v2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndDelete(ctx, "k", "v2")
	require.NoError(t, err)
	assert.False(t, ok, "deleting twice is a no-op")
}

func TestMemoryStore_SAddAppendIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)

	const n = 50
	for i := 0; i < n; i++ {
		_, err := s.SAdd(ctx, "participants", string(rune('A'+i)))
		require.NoError(t, err)
	}

	sizes := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			member := string(rune('A' + i))
			res, err := s.SAddAppend(ctx, storage.SetAppend{
				SetKey:   "submitted",
				Member:   member,
				ListKey:  "log:" + member,
				Entry:    "answer",
				CountKey: "participants",
			})
			assert.NoError(t, err)
			assert.True(t, res.Added)
			assert.Equal(t, int64(n), res.CountSize)
			sizes <- res.SetSize
		}(i)
	}
	wg.Wait()
	close(sizes)

	seen := make(map[int64]bool)
	for size := range sizes {
		assert.False(t, seen[size], "size %d observed twice", size)
		seen[size] = true
	}
	assert.Len(t, seen, n)

	// 重複加入不會再附加紀錄
	res, err := s.SAddAppend(ctx, storage.SetAppend{SetKey: "submitted", Member: "A", ListKey: "log:A", Entry: "again", CountKey: "participants"})
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.Equal(t, int64(n), res.SetSize)

	log, err := s.LRange(ctx, "log:A", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"answer"}, log)
}

func TestMemoryStore_SAddAppendWritesNothingOnTypeError(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)
	require.NoError(t, s.Set(ctx, "log:A", "not a list", 0))

	_, err := s.SAddAppend(ctx, storage.SetAppend{SetKey: "submitted", Member: "A", ListKey: "log:A", Entry: "x", CountKey: "participants"})
	require.Error(t, err)

	member, err := s.SIsMember(ctx, "submitted", "A")
	require.NoError(t, err)
	assert.False(t, member)
}

func TestMemoryStore_SAddAppendTTL(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	s := storage.NewMemoryStore(clock)

	_, err := s.SAddAppend(ctx, storage.SetAppend{SetKey: "submitted", Member: "A", ListKey: "log:A", Entry: "x", CountKey: "participants", TTL: time.Minute})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	size, err := s.SCard(ctx, "submitted")
	require.NoError(t, err)
	assert.Zero(t, size)
	log, err := s.LRange(ctx, "log:A", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestMemoryStore_ListAndHash(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)

	_, err := s.RPush(ctx, "log", "a", "b", "c")
	require.NoError(t, err)

	all, err := s.LRange(ctx, "log", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, all)

	tail, err := s.LRange(ctx, "log", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, tail)

	require.NoError(t, s.HSet(ctx, "h", "f", "v"))
	v, err := s.HGet(ctx, "h", "f")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	_, err = s.HGet(ctx, "h", "missing")
	assert.ErrorIs(t, err, storage.ErrNil)

	_, err = s.HDel(ctx, "h", "f")
	require.NoError(t, err)
	m, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Empty(t, m)

	_, err = s.SAdd(ctx, "h2", "x")
	require.NoError(t, err)
	assert.Error(t, s.HSet(ctx, "h2", "f", "v"), "wrong kind")
}

func TestMemoryStore_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStore(nil)

	sub, err := s.Subscribe(ctx, "room.*")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Publish(ctx, "quiz.q1.updates", []byte("skip")))
	require.NoError(t, s.Publish(ctx, "room.r1", []byte("hello")))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "room.r1", msg.Channel)
		assert.Equal(t, "hello", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	require.NoError(t, sub.Close())
	_, open := <-sub.Channel()
	assert.False(t, open)
}
