package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNil 表示 key 不存在
var ErrNil = errors.New("storage: key does not exist")

// Message 訂閱收到的一則發布
type Message struct {
	Channel string
	Payload []byte
}

// Subscription 一個模式訂閱；Close 後 Channel 會被關閉
type Subscription interface {
	Channel() <-chan Message
	Close() error
}

// SetAppend 一次原子寫入：Member 加入 SetKey，且只有真的加入時才把 Entry 附加到 ListKey；
// 兩個 key 都設為 TTL，並同時讀取 CountKey 的集合大小
type SetAppend struct {
	SetKey   string
	Member   string
	ListKey  string
	Entry    string
	CountKey string
	TTL      time.Duration
}

type SetAppendResult struct {
	Added     bool
	SetSize   int64
	CountSize int64
}

// SharedStore 所有節點共用的鍵值儲存。
// ttl 為 0 代表不過期。
type SharedStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndSwap 只有在目前值等於 expected 時才寫入 value
	CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete 只有在目前值等於 expected 時才刪除
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	// SAddAppend 原子地執行 op：成員加入集合時才附加紀錄，並回傳兩個集合的大小
	SAddAppend(ctx context.Context, op SetAppend) (SetAppendResult, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)

	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe 以 glob 模式訂閱頻道，例如 room.*
	Subscribe(ctx context.Context, pattern string) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}
