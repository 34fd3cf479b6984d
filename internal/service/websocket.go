package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/models"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256

	lobbyOnlineKey = "lobby:online"
)

var errSessionEnded = errors.New("session ended")

// outbound 待送出的訊框；closeAfter 為 true 時送出後關閉連線
type outbound struct {
	payload    []byte
	closeAfter bool
}

// Client 一條 WebSocket 連線
type Client struct {
	Conn      *websocket.Conn
	Identity  string
	SessionID string

	handshake models.Handshake
	send      chan outbound
	topics    map[string]bool // 由 WebSocketManager.mu 保護
}

// WebSocketManager 連線閘道：把匯流排上的主題轉送給訂閱的連線，
// 並在每個訊框與每次心跳時檢查會話是否仍然有效
type WebSocketManager struct {
	sessions    *SessionRegistry
	broadcaster *Broadcaster
	bus         Bus
	store       storage.SharedStore
	clock       clockwork.Clock
	heartbeat   time.Duration
	log         zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client          // sessionID → client
	topics  map[string]map[*Client]bool // topic → clients
	cancels []func() error
}

func NewWebSocketManager(sessions *SessionRegistry, broadcaster *Broadcaster, bus Bus, store storage.SharedStore,
	clock clockwork.Clock, heartbeat time.Duration, log zerolog.Logger) *WebSocketManager {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	m := &WebSocketManager{
		sessions:    sessions,
		broadcaster: broadcaster,
		bus:         bus,
		store:       store,
		clock:       clock,
		heartbeat:   heartbeat,
		log:         log.With().Str("component", "gateway").Logger(),
		clients:     make(map[string]*Client),
		topics:      make(map[string]map[*Client]bool),
	}
	sessions.OnExpired(m.onSessionExpired)
	return m
}

// Start 訂閱匯流排上所有閘道負責的主題
func (m *WebSocketManager) Start(ctx context.Context) error {
	for _, pattern := range gatewayPatterns {
		cancel, err := m.bus.Subscribe(ctx, pattern, m.dispatch)
		if err != nil {
			_ = m.Close()
			return err
		}
		m.mu.Lock()
		m.cancels = append(m.cancels, cancel)
		m.mu.Unlock()
	}
	m.log.Info().Strs("patterns", gatewayPatterns).Msg("gateway subscribed")
	return nil
}

// Close 取消訂閱並關閉所有連線
func (m *WebSocketManager) Close() error {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = nil
	conns := make([]*websocket.Conn, 0, len(m.clients))
	for _, c := range m.clients {
		conns = append(conns, c.Conn)
	}
	m.mu.Unlock()

	var firstErr error
	for _, cancel := range cancels {
		if err := cancel(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, conn := range conns {
		_ = conn.Close()
	}
	return firstErr
}

// HandleClient 註冊會話後處理連線直到斷線；會阻塞
func (m *WebSocketManager) HandleClient(ctx context.Context, conn *websocket.Conn, hs models.Handshake, token string) {
	client := &Client{
		Conn:      conn,
		Identity:  hs.Identity,
		SessionID: uuid.NewString(),
		handshake: hs,
		send:      make(chan outbound, sendBuffer),
		topics:    make(map[string]bool),
	}
	logger := m.log.With().Str("identity", client.Identity).Str("session_id", client.SessionID).Logger()

	if _, err := m.sessions.Register(ctx, client.Identity, client.SessionID, token, hs.Expiry); err != nil {
		logger.Error().Err(err).Msg("session register failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	m.addClient(client)
	m.presence(ctx, client.Identity, true)
	logger.Info().Msg("client connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		m.writePump(ctx, client)
	}()

	m.readPump(ctx, client)

	// 確保連接關閉時清理資源
	m.removeClient(client)
	close(client.send)
	<-writerDone
	_ = conn.Close()

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeWait)
	defer cancel()
	if err := m.sessions.Remove(cleanupCtx, client.Identity, client.SessionID); err != nil {
		logger.Error().Err(err).Msg("session remove failed")
	}
	m.presence(cleanupCtx, client.Identity, false)
	logger.Info().Msg("client disconnected")
}

// readPump 持續處理客戶端送來的訊框
func (m *WebSocketManager) readPump(ctx context.Context, c *Client) {
	pongWait := m.heartbeat * 10 / 9
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	// 只聽不說的客戶端也靠心跳的 pong 延長會話
	c.Conn.SetPongHandler(func(string) error {
		if !m.keepAlive(ctx, c) {
			return errSessionEnded
		}
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Warn().Err(err).Str("session_id", c.SessionID).Msg("websocket unexpected close")
			}
			return
		}

		if !m.admit(ctx, c) {
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			m.notify(c, models.Notice{Type: models.MessageError, Content: "malformed frame"}, false)
			continue
		}
		m.handleFrame(c, frame)
	}
}

// admit 驗證附在連線上的簽章、終止標記並延長會話；不通過時通知客戶端並回傳 false
func (m *WebSocketManager) admit(ctx context.Context, c *Client) bool {
	if !m.sessions.VerifyHandshake(c.handshake) {
		m.notify(c, models.Notice{Type: models.MessageError, Content: "session signature mismatch"}, true)
		return false
	}

	terminated, err := m.sessions.ShouldTerminate(ctx, c.SessionID)
	if err != nil {
		m.log.Error().Err(err).Str("session_id", c.SessionID).Msg("terminate marker check failed")
		m.notify(c, models.Notice{Type: models.MessageError, Content: "session check unavailable"}, false)
		return true
	}
	if terminated {
		m.notify(c, models.Notice{Type: models.MessageSessionTerminated, Content: "signed in from another connection"}, true)
		return false
	}

	alive, err := m.sessions.Refresh(ctx, c.Identity, c.SessionID)
	if err != nil {
		m.log.Error().Err(err).Str("session_id", c.SessionID).Msg("session refresh failed")
		return true
	}
	if !alive {
		m.notify(c, models.Notice{Type: models.MessageSessionExpired}, true)
		return false
	}
	return true
}

// keepAlive 收到 pong 時延長會話；會話已不存在時通知客戶端並回傳 false
func (m *WebSocketManager) keepAlive(ctx context.Context, c *Client) bool {
	alive, err := m.sessions.Refresh(ctx, c.Identity, c.SessionID)
	if err != nil {
		m.log.Error().Err(err).Str("session_id", c.SessionID).Msg("session refresh on pong failed")
		return true
	}
	if !alive {
		m.notify(c, models.Notice{Type: models.MessageSessionExpired}, true)
		return false
	}
	return true
}

func (m *WebSocketManager) handleFrame(c *Client, frame models.ClientFrame) {
	switch frame.Action {
	case models.ActionSubscribe:
		if !allowedTopic(frame.Topic) {
			m.notify(c, models.Notice{Type: models.MessageError, Content: "unknown topic", Topic: frame.Topic}, false)
			return
		}
		m.subscribe(c, frame.Topic)
	case models.ActionUnsubscribe:
		m.unsubscribe(c, frame.Topic)
	case models.ActionPing:
		m.notify(c, models.Notice{Type: models.MessagePong}, false)
	default:
		m.notify(c, models.Notice{Type: models.MessageError, Content: "unknown action"}, false)
	}
}

// writePump 唯一寫入連線的 goroutine；同時負責心跳與終止標記檢查
func (m *WebSocketManager) writePump(ctx context.Context, c *Client) {
	ticker := m.clock.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
				_ = c.Conn.Close()
				return
			}
			if msg.closeAfter {
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.Conn.Close()
				return
			}

		case <-ticker.Chan():
			terminated, err := m.sessions.ShouldTerminate(ctx, c.SessionID)
			if err != nil {
				m.log.Warn().Err(err).Str("session_id", c.SessionID).Msg("terminate marker check failed")
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if terminated {
				payload, _ := json.Marshal(models.Notice{
					Type:            models.MessageSessionTerminated,
					Content:         "signed in from another connection",
					TimestampMillis: m.clock.Now().UnixMilli(),
				})
				_ = c.Conn.WriteMessage(websocket.TextMessage, payload)
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.Conn.Close()
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Conn.Close()
				return
			}
		}
	}
}

// dispatch 匯流排投遞的主題訊息轉送給訂閱者
func (m *WebSocketManager) dispatch(topic string, payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for c := range m.topics[topic] {
		m.enqueue(c, outbound{payload: payload})
	}
}

// enqueue 需持有 m.mu；佇列已滿的連線直接關閉
func (m *WebSocketManager) enqueue(c *Client, msg outbound) {
	select {
	case c.send <- msg:
	default:
		m.log.Warn().Str("session_id", c.SessionID).Msg("send queue full, dropping client")
		_ = c.Conn.Close()
	}
}

func (m *WebSocketManager) notify(c *Client, n models.Notice, closeAfter bool) {
	if n.TimestampMillis == 0 {
		n.TimestampMillis = m.clock.Now().UnixMilli()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.clients[c.SessionID]; !ok {
		return
	}
	m.enqueue(c, outbound{payload: payload, closeAfter: closeAfter})
}

// onSessionExpired 清掃到過期會話時，若連線在本節點上就通知並斷線
func (m *WebSocketManager) onSessionExpired(info models.SessionInfo) {
	m.mu.RLock()
	c, ok := m.clients[info.SessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.notify(c, models.Notice{Type: models.MessageSessionExpired}, true)
}

func (m *WebSocketManager) subscribe(c *Client, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.topics[topic] == nil {
		m.topics[topic] = make(map[*Client]bool)
	}
	m.topics[topic][c] = true
	c.topics[topic] = true
}

func (m *WebSocketManager) unsubscribe(c *Client, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropTopic(c, topic)
}

func (m *WebSocketManager) dropTopic(c *Client, topic string) {
	delete(c.topics, topic)
	if subs, ok := m.topics[topic]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(m.topics, topic)
		}
	}
}

func (m *WebSocketManager) addClient(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.SessionID] = c
}

func (m *WebSocketManager) removeClient(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for topic := range c.topics {
		m.dropTopic(c, topic)
	}
	delete(m.clients, c.SessionID)
}

// ClientCount 本節點上的連線數
func (m *WebSocketManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// presence 維護大廳在線名單；身分的最後一條會話結束才算離線
func (m *WebSocketManager) presence(ctx context.Context, identity string, online bool) {
	typ := models.MessageUserOnline
	if online {
		if _, err := m.store.SAdd(ctx, lobbyOnlineKey, identity); err != nil {
			m.log.Error().Err(err).Str("identity", identity).Msg("failed to mark online")
			return
		}
	} else {
		still, err := m.sessions.HasSessions(ctx, identity)
		if err != nil || still {
			return
		}
		if _, err := m.store.SRem(ctx, lobbyOnlineKey, identity); err != nil {
			m.log.Error().Err(err).Str("identity", identity).Msg("failed to mark offline")
			return
		}
		typ = models.MessageUserOffline
	}

	users, err := m.store.SMembers(ctx, lobbyOnlineKey)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to read online users")
		return
	}
	_ = m.broadcaster.Lobby(ctx, models.LobbyMessage{Type: typ, MemberID: identity, Users: users})
}

func allowedTopic(topic string) bool {
	for _, pattern := range gatewayPatterns {
		if ok, _ := path.Match(pattern, topic); ok {
			return true
		}
	}
	return false
}
