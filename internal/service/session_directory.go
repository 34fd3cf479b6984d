package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

const (
	DirectoryMemory = "memory"
	DirectoryStore  = "store"
)

// SessionDirectory 保存 identity → 會話 的對應與終止標記
type SessionDirectory interface {
	Put(ctx context.Context, info models.SessionInfo) error
	// Get 找不到時回傳 nil, nil
	Get(ctx context.Context, identity, sessionID string) (*models.SessionInfo, error)
	List(ctx context.Context, identity string) ([]models.SessionInfo, error)
	Identities(ctx context.Context) ([]string, error)
	// Delete 回傳是否真的刪除了紀錄
	Delete(ctx context.Context, identity, sessionID string) (bool, error)
	MarkTerminated(ctx context.Context, sessionID string, ttl time.Duration) error
	IsTerminated(ctx context.Context, sessionID string) (bool, error)
}

// NewSessionDirectory 依設定選擇實作，只在啟動時呼叫一次
func NewSessionDirectory(kind string, store storage.SharedStore, clock clockwork.Clock) (SessionDirectory, error) {
	switch kind {
	case DirectoryMemory:
		return NewMemoryDirectory(clock), nil
	case DirectoryStore, "":
		return NewStoreDirectory(store), nil
	default:
		return nil, fmt.Errorf("unknown session directory %q", kind)
	}
}

// memoryDirectory 行程內的目錄，只適用單節點部署
type memoryDirectory struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	sessions map[string]map[string]models.SessionInfo
	markers  map[string]time.Time
}

func NewMemoryDirectory(clock clockwork.Clock) SessionDirectory {
	return &memoryDirectory{
		clock:    clock,
		sessions: make(map[string]map[string]models.SessionInfo),
		markers:  make(map[string]time.Time),
	}
}

func (d *memoryDirectory) Put(_ context.Context, info models.SessionInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sessions[info.Identity] == nil {
		d.sessions[info.Identity] = make(map[string]models.SessionInfo)
	}
	d.sessions[info.Identity][info.SessionID] = info
	return nil
}

func (d *memoryDirectory) Get(_ context.Context, identity, sessionID string) (*models.SessionInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info, ok := d.sessions[identity][sessionID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (d *memoryDirectory) List(_ context.Context, identity string) ([]models.SessionInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.SessionInfo, 0, len(d.sessions[identity]))
	for _, info := range d.sessions[identity] {
		out = append(out, info)
	}
	return out, nil
}

func (d *memoryDirectory) Identities(context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		out = append(out, id)
	}
	return out, nil
}

func (d *memoryDirectory) Delete(_ context.Context, identity, sessionID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	byID, ok := d.sessions[identity]
	if !ok {
		return false, nil
	}
	if _, ok := byID[sessionID]; !ok {
		return false, nil
	}
	delete(byID, sessionID)
	if len(byID) == 0 {
		delete(d.sessions, identity)
	}
	return true, nil
}

func (d *memoryDirectory) MarkTerminated(_ context.Context, sessionID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.markers[sessionID] = d.clock.Now().Add(ttl)
	return nil
}

func (d *memoryDirectory) IsTerminated(_ context.Context, sessionID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	until, ok := d.markers[sessionID]
	if !ok {
		return false, nil
	}
	if !d.clock.Now().Before(until) {
		delete(d.markers, sessionID)
		return false, nil
	}
	return true, nil
}

// storeDirectory 以共享儲存保存，多節點共用
//
//	session:{identity}           hash  sessionId → SessionInfo JSON
//	session:identities           set   所有有會話的 identity
//	session:terminate:{session}  string，帶 TTL 的終止標記
type storeDirectory struct {
	store storage.SharedStore
}

const sessionIdentitiesKey = "session:identities"

func sessionKey(identity string) string    { return "session:" + identity }
func terminateKey(sessionID string) string { return "session:terminate:" + sessionID }

func NewStoreDirectory(store storage.SharedStore) SessionDirectory {
	return &storeDirectory{store: store}
}

func (d *storeDirectory) Put(ctx context.Context, info models.SessionInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal)
	}
	if err := d.store.HSet(ctx, sessionKey(info.Identity), info.SessionID, string(raw)); err != nil {
		return apperr.Infra(err)
	}
	if _, err := d.store.SAdd(ctx, sessionIdentitiesKey, info.Identity); err != nil {
		return apperr.Infra(err)
	}
	return nil
}

func (d *storeDirectory) Get(ctx context.Context, identity, sessionID string) (*models.SessionInfo, error) {
	raw, err := d.store.HGet(ctx, sessionKey(identity), sessionID)
	if errors.Is(err, storage.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Infra(err)
	}
	var info models.SessionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal)
	}
	return &info, nil
}

func (d *storeDirectory) List(ctx context.Context, identity string) ([]models.SessionInfo, error) {
	all, err := d.store.HGetAll(ctx, sessionKey(identity))
	if err != nil {
		return nil, apperr.Infra(err)
	}
	out := make([]models.SessionInfo, 0, len(all))
	for _, raw := range all {
		var info models.SessionInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrInternal)
		}
		out = append(out, info)
	}
	return out, nil
}

func (d *storeDirectory) Identities(ctx context.Context) ([]string, error) {
	ids, err := d.store.SMembers(ctx, sessionIdentitiesKey)
	if err != nil {
		return nil, apperr.Infra(err)
	}
	return ids, nil
}

func (d *storeDirectory) Delete(ctx context.Context, identity, sessionID string) (bool, error) {
	n, err := d.store.HDel(ctx, sessionKey(identity), sessionID)
	if err != nil {
		return false, apperr.Infra(err)
	}

	rest, err := d.store.HGetAll(ctx, sessionKey(identity))
	if err != nil {
		return n > 0, apperr.Infra(err)
	}
	if len(rest) == 0 {
		if _, err := d.store.SRem(ctx, sessionIdentitiesKey, identity); err != nil {
			return n > 0, apperr.Infra(err)
		}
	}
	return n > 0, nil
}

func (d *storeDirectory) MarkTerminated(ctx context.Context, sessionID string, ttl time.Duration) error {
	return apperr.Infra(d.store.Set(ctx, terminateKey(sessionID), "1", ttl))
}

func (d *storeDirectory) IsTerminated(ctx context.Context, sessionID string) (bool, error) {
	_, err := d.store.Get(ctx, terminateKey(sessionID))
	if errors.Is(err, storage.ErrNil) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Infra(err)
	}
	return true, nil
}
