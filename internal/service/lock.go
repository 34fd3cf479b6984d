package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

const releaseTimeout = 2 * time.Second

func roomLockKey(roomID string) string { return "lock:room:" + roomID }

// LockCoordinator 以共享儲存實作具租約的具名互斥鎖
type LockCoordinator struct {
	store         storage.SharedStore
	clock         clockwork.Clock
	retryInterval time.Duration
	log           zerolog.Logger
}

// Lock 一把已取得的鎖，只有持有 token 的一方能釋放
type Lock struct {
	key   string
	token string
	c     *LockCoordinator
}

func NewLockCoordinator(store storage.SharedStore, clock clockwork.Clock, retryInterval time.Duration, log zerolog.Logger) *LockCoordinator {
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &LockCoordinator{
		store:         store,
		clock:         clock,
		retryInterval: retryInterval,
		log:           log.With().Str("component", "lock").Logger(),
	}
}

// Acquire 在 wait 時間內反覆嘗試取得鎖，lease 到期後鎖會自動失效。
// 超過等待時間回傳可重試的 ErrLockBusy。
func (c *LockCoordinator) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Lock, error) {
	token := uuid.NewString()
	deadline := c.clock.Now().Add(wait)

	for {
		ok, err := c.store.SetNX(ctx, key, token, lease)
		if err != nil {
			return nil, apperr.Infra(err)
		}
		if ok {
			return &Lock{key: key, token: token, c: c}, nil
		}

		if !c.clock.Now().Before(deadline) {
			return nil, apperr.ErrLockBusy.WithDetails("lock %s", key)
		}

		select {
		case <-ctx.Done():
			return nil, apperr.ErrLockBusy.WithDetails("lock %s: %v", key, ctx.Err())
		case <-c.clock.After(c.retryInterval):
		}
	}
}

// Release 釋放鎖；鎖已被釋放或租約已過期時不做任何事
func (l *Lock) Release(ctx context.Context) error {
	released, err := l.c.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return apperr.Infra(err)
	}
	if !released {
		l.c.log.Debug().Str("lock_key", l.key).Msg("lock already released or lease expired")
	}
	return nil
}

// WithLock 取得鎖後執行 fn，不論 fn 成功、失敗或 panic 都會釋放鎖
func (c *LockCoordinator) WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func(ctx context.Context) error) error {
	lock, err := c.Acquire(ctx, key, wait, lease)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			c.log.Error().Err(err).Str("lock_key", key).Msg("failed to release lock")
		}
	}()

	return fn(ctx)
}
