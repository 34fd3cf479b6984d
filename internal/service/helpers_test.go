package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
)

type published struct {
	topic   string
	payload []byte
}

// recordingBus 同步記錄每一次發布
type recordingBus struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (b *recordingBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.msgs = append(b.msgs, published{topic: topic, payload: payload})
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string, func(string, []byte)) (func() error, error) {
	return func() error { return nil }, nil
}

func (b *recordingBus) quizEvents(t *testing.T, typ models.MessageType) []models.QuizEvent {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.QuizEvent
	for _, m := range b.msgs {
		if !strings.HasPrefix(m.topic, "quiz.") {
			continue
		}
		var ev models.QuizEvent
		require.NoError(t, json.Unmarshal(m.payload, &ev))
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (b *recordingBus) roomMessages(t *testing.T, roomID string) []models.RoomMessage {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.RoomMessage
	for _, m := range b.msgs {
		if m.topic != "room."+roomID {
			continue
		}
		var msg models.RoomMessage
		require.NoError(t, json.Unmarshal(m.payload, &msg))
		out = append(out, msg)
	}
	return out
}

func (b *recordingBus) lastRoomMessage(t *testing.T, roomID string) models.RoomMessage {
	t.Helper()
	msgs := b.roomMessages(t, roomID)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

var errStoreDown = errors.New("connection reset by peer")

// flakyStore 讓指定的儲存操作在接下來的 n 次呼叫失敗
type flakyStore struct {
	storage.SharedStore

	mu    sync.Mutex
	fails map[string]int
}

func newFlakyStore(inner storage.SharedStore) *flakyStore {
	return &flakyStore{SharedStore: inner, fails: make(map[string]int)}
}

func (s *flakyStore) failNext(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[op] = n
}

func (s *flakyStore) shouldFail(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails[op] == 0 {
		return false
	}
	s.fails[op]--
	return true
}

func (s *flakyStore) SAddAppend(ctx context.Context, op storage.SetAppend) (storage.SetAppendResult, error) {
	if s.shouldFail("SAddAppend") {
		return storage.SetAppendResult{}, errStoreDown
	}
	return s.SharedStore.SAddAppend(ctx, op)
}

func (s *flakyStore) CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	if s.shouldFail("CompareAndSwap") {
		return false, errStoreDown
	}
	return s.SharedStore.CompareAndSwap(ctx, key, expected, value, ttl)
}
