package storage

import (
	"context"
	"errors"
	"path"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var errWrongType = errors.New("storage: operation against a key holding the wrong kind of value")

type entryKind int

const (
	kindString entryKind = iota
	kindSet
	kindHash
	kindList
)

type entry struct {
	kind     entryKind
	str      string
	set      map[string]struct{}
	hash     map[string]string
	list     []string
	expireAt time.Time
}

// MemoryStore 單節點的 SharedStore 實作，用於開發與測試。
// 過期採用惰性刪除，時間來源可注入。
type MemoryStore struct {
	mu    sync.Mutex
	clock clockwork.Clock
	data  map[string]*entry
	subs  map[*memorySubscription]struct{}
}

// NewMemoryStore 建立記憶體儲存；clock 為 nil 時使用真實時鐘
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock: clock,
		data:  make(map[string]*entry),
		subs:  make(map[*memorySubscription]struct{}),
	}
}

// live 回傳未過期的 entry；呼叫端必須持有鎖
func (s *MemoryStore) live(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && !s.clock.Now().Before(e.expireAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *MemoryStore) ensure(key string, kind entryKind) (*entry, error) {
	e := s.live(key)
	if e == nil {
		e = &entry{kind: kind}
		switch kind {
		case kindSet:
			e.set = make(map[string]struct{})
		case kindHash:
			e.hash = make(map[string]string)
		}
		s.data[key] = e
		return e, nil
	}
	if e.kind != kind {
		return nil, errWrongType
	}
	return e, nil
}

func (s *MemoryStore) lookup(key string, kind entryKind) (*entry, error) {
	e := s.live(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kind {
		return nil, errWrongType
	}
	return e, nil
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindString)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNil
	}
	return e.str, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &entry{kind: kindString, str: value, expireAt: s.deadline(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(key) != nil {
		return false, nil
	}
	s.data[key] = &entry{kind: kindString, str: value, expireAt: s.deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindString)
	if err != nil {
		return false, err
	}
	if e == nil || e.str != expected {
		return false, nil
	}
	s.data[key] = &entry{kind: kindString, str: value, expireAt: s.deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindString)
	if err != nil {
		return false, err
	}
	if e == nil || e.str != expected {
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		e.expireAt = s.deadline(ttl)
	}
	return nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.ensure(key, kindSet)
	if err != nil {
		return 0, err
	}
	var added int64
	for _, m := range members {
		if _, ok := e.set[m]; !ok {
			e.set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *MemoryStore) SAddAppend(_ context.Context, op SetAppend) (SetAppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 先確認型別，避免寫到一半失敗
	if _, err := s.lookup(op.ListKey, kindList); err != nil {
		return SetAppendResult{}, err
	}
	count, err := s.lookup(op.CountKey, kindSet)
	if err != nil {
		return SetAppendResult{}, err
	}
	set, err := s.ensure(op.SetKey, kindSet)
	if err != nil {
		return SetAppendResult{}, err
	}

	var res SetAppendResult
	if _, exists := set.set[op.Member]; !exists {
		set.set[op.Member] = struct{}{}
		list, _ := s.ensure(op.ListKey, kindList)
		list.list = append(list.list, op.Entry)
		if op.TTL > 0 {
			set.expireAt = s.deadline(op.TTL)
			list.expireAt = s.deadline(op.TTL)
		}
		res.Added = true
	}
	res.SetSize = int64(len(set.set))
	if op.CountKey == op.SetKey {
		res.CountSize = res.SetSize
	} else if count != nil {
		res.CountSize = int64(len(count.set))
	}
	return res, nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindSet)
	if err != nil || e == nil {
		return 0, err
	}
	var removed int64
	for _, m := range members {
		if _, ok := e.set[m]; ok {
			delete(e.set, m)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(s.data, key)
	}
	return removed, nil
}

func (s *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindSet)
	if err != nil || e == nil {
		return false, err
	}
	_, ok := e.set[member]
	return ok, nil
}

func (s *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindSet)
	if err != nil || e == nil {
		return nil, err
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindSet)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.set)), nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.ensure(key, kindHash)
	if err != nil {
		return err
	}
	e.hash[field] = value
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindHash)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNil
	}
	v, ok := e.hash[field]
	if !ok {
		return "", ErrNil
	}
	return v, nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	e, err := s.lookup(key, kindHash)
	if err != nil || e == nil {
		return out, err
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindHash)
	if err != nil || e == nil {
		return 0, err
	}
	var removed int64
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			removed++
		}
	}
	if len(e.hash) == 0 {
		delete(s.data, key)
	}
	return removed, nil
}

func (s *MemoryStore) RPush(_ context.Context, key string, values ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.ensure(key, kindList)
	if err != nil {
		return 0, err
	}
	e.list = append(e.list, values...)
	return int64(len(e.list)), nil
}

func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(key, kindList)
	if err != nil || e == nil {
		return nil, err
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

// Publish 投遞給所有模式相符的訂閱；訂閱緩衝已滿時丟棄
func (s *MemoryStore) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		if ok, _ := path.Match(sub.pattern, channel); !ok {
			continue
		}
		select {
		case sub.ch <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, pattern string) (Subscription, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &memorySubscription{store: s, pattern: pattern, ch: make(chan Message, 256)}
	s.subs[sub] = struct{}{}
	return sub, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		delete(s.subs, sub)
		close(sub.ch)
	}
	return nil
}

type memorySubscription struct {
	store   *MemoryStore
	pattern string
	ch      chan Message
}

func (m *memorySubscription) Channel() <-chan Message { return m.ch }

func (m *memorySubscription) Close() error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	if _, ok := m.store.subs[m]; ok {
		delete(m.store.subs, m)
		close(m.ch)
	}
	return nil
}
