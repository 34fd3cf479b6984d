package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/apperr"
)

// statusFor 依錯誤分類決定 HTTP 狀態碼
func statusFor(e *apperr.AppError) int {
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict, apperr.KindConcurrency:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuthorization:
		if e.Code == apperr.ErrInvalidCredential.Code || e.Code == apperr.ErrSessionInvalid.Code {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case apperr.KindInfra:
		if e.Code == apperr.ErrStoreUnavailable.Code {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondError 基礎設施錯誤在這裡記錄一次，客戶端只拿到通用訊息
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	appErr := apperr.From(err)
	body := gin.H{
		"code":      appErr.Code,
		"error":     appErr.Message,
		"retryable": appErr.Retryable(),
	}

	if appErr.Kind == apperr.KindInfra {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("code", appErr.Code).
			Msg("request failed")
	} else if appErr.Details != "" {
		body["details"] = appErr.Details
	}

	c.AbortWithStatusJSON(statusFor(appErr), body)
}

// bindJSON 解析請求體；optional 為 true 時允許空的請求體
func bindJSON(c *gin.Context, v any, optional bool) error {
	err := c.ShouldBindJSON(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return apperr.ErrInvalidRequest.WithDetails("%v", err)
}

// memberID 由 AuthMiddleware 設定
func memberID(c *gin.Context) string {
	return c.GetString("userID")
}
