package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/service"
)

// WebSocketHandler 處理 WebSocket 連線升級
type WebSocketHandler struct {
	wsManager *service.WebSocketManager
	sessions  *service.SessionRegistry
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewWebSocketHandler(wsManager *service.WebSocketManager, sessions *service.SessionRegistry,
	allowedOrigins []string, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager: wsManager,
		sessions:  sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket 以 ?token= 的短效憑證完成握手後升級連線
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	hs, err := h.sessions.Handshake(token)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("identity", hs.Identity).Msg("websocket upgrade failed")
		return
	}

	h.wsManager.HandleClient(c.Request.Context(), conn, *hs, token)
}
