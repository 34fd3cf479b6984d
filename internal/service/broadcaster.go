package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
)

const LobbyTopic = "lobby.users"

// 閘道訂閱的主題模式；store 與 NATS 兩種傳輸都能理解
var gatewayPatterns = []string{"room.*", "quiz.*.updates", LobbyTopic}

func RoomTopic(roomID string) string { return "room." + roomID }

func QuizTopic(quizID string) string { return "quiz." + quizID + ".updates" }

// Bus 跨節點的發布/訂閱傳輸
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe 以模式訂閱，handler 在傳輸的投遞 goroutine 中被呼叫；回傳的函式取消訂閱
	Subscribe(ctx context.Context, pattern string, handler func(topic string, payload []byte)) (func() error, error)
}

// Broadcaster 將狀態快照序列化後發布到固定命名的主題
type Broadcaster struct {
	bus   Bus
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewBroadcaster(bus Bus, clock clockwork.Clock, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{bus: bus, clock: clock, log: log.With().Str("component", "broadcaster").Logger()}
}

func (b *Broadcaster) nowMillis() int64 { return b.clock.Now().UnixMilli() }

func (b *Broadcaster) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := b.bus.Publish(ctx, topic, payload); err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("publish failed")
		return err
	}
	return nil
}

// Room 發布到 room.{roomId}
func (b *Broadcaster) Room(ctx context.Context, msg models.RoomMessage) error {
	if msg.TimestampMillis == 0 {
		msg.TimestampMillis = b.nowMillis()
	}
	return b.publish(ctx, RoomTopic(msg.RoomID), msg)
}

// Quiz 發布到 quiz.{quizId}.updates
func (b *Broadcaster) Quiz(ctx context.Context, ev models.QuizEvent) error {
	if ev.TimestampMillis == 0 {
		ev.TimestampMillis = b.nowMillis()
	}
	return b.publish(ctx, QuizTopic(ev.QuizID), ev)
}

// Lobby 發布到 lobby.users
func (b *Broadcaster) Lobby(ctx context.Context, msg models.LobbyMessage) error {
	if msg.TimestampMillis == 0 {
		msg.TimestampMillis = b.nowMillis()
	}
	return b.publish(ctx, LobbyTopic, msg)
}

// storeBus 使用共享儲存本身的 publish/subscribe
type storeBus struct {
	store storage.SharedStore
	log   zerolog.Logger
}

func NewStoreBus(store storage.SharedStore, log zerolog.Logger) Bus {
	return &storeBus{store: store, log: log}
}

func (b *storeBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.store.Publish(ctx, topic, payload)
}

func (b *storeBus) Subscribe(ctx context.Context, pattern string, handler func(string, []byte)) (func() error, error) {
	sub, err := b.store.Subscribe(ctx, pattern)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range sub.Channel() {
			handler(msg.Channel, msg.Payload)
		}
		b.log.Debug().Str("pattern", pattern).Msg("subscription closed")
	}()

	return func() error {
		err := sub.Close()
		wg.Wait()
		return err
	}, nil
}

// natsBus 以 NATS subject 承載同名主題
type natsBus struct {
	conn *nats.Conn
}

func NewNATSBus(conn *nats.Conn) Bus {
	return &natsBus{conn: conn}
}

func (b *natsBus) Publish(_ context.Context, topic string, payload []byte) error {
	return b.conn.Publish(topic, payload)
}

func (b *natsBus) Subscribe(_ context.Context, pattern string, handler func(string, []byte)) (func() error, error) {
	sub, err := b.conn.Subscribe(pattern, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}
