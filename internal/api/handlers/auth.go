package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/service"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/utils"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

// AuthHandler 簽發 WebSocket 連線用的短效憑證
type AuthHandler struct {
	userService *service.UserService
	tokens      *utils.TokenManager
	ttl         time.Duration
	log         zerolog.Logger
}

func NewAuthHandler(userService *service.UserService, tokens *utils.TokenManager, ttl time.Duration, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, tokens: tokens, ttl: ttl, log: log}
}

// IssueWSToken 已通過 Bearer 驗證的成員換取一張 WebSocket 憑證
func (h *AuthHandler) IssueWSToken(c *gin.Context) {
	id := memberID(c)
	if err := h.userService.EnsureMember(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}

	token, err := h.tokens.GenerateToken(id, h.ttl)
	if err != nil {
		respondError(c, h.log, apperr.Wrap(err, apperr.ErrInternal))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int(h.ttl.Seconds()),
	})
}
