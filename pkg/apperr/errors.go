// Package apperr 提供應用程式錯誤處理
//
// 每個錯誤都帶有穩定的錯誤碼（Code）與分類（Kind），
// 呼叫端透過 errors.Is 比對錯誤碼，HTTP 層依分類決定狀態碼。
package apperr

import (
	"errors"
	"fmt"
)

// Kind 錯誤分類
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindConcurrency   Kind = "concurrency"
	KindInfra         Kind = "infrastructure"
)

// AppError 應用程式錯誤
type AppError struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼比對
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Retryable 回報呼叫端是否可以稍後重試
func (e *AppError) Retryable() bool {
	return e.Kind == KindConcurrency
}

// New 創建新的應用程式錯誤
func New(kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap 以既有的錯誤定義包裝底層錯誤，不會修改預定義錯誤本身
func Wrap(err error, def *AppError) *AppError {
	return &AppError{
		Kind:    def.Kind,
		Code:    def.Code,
		Message: def.Message,
		Err:     err,
	}
}

// WithDetails 回傳附帶詳細資訊的副本
func (e *AppError) WithDetails(format string, args ...any) *AppError {
	cp := *e
	cp.Details = fmt.Sprintf(format, args...)
	return &cp
}

// Infra 將儲存層錯誤包裝成基礎設施錯誤；已經是 AppError 的直接返回
func Infra(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return Wrap(err, ErrStoreUnavailable)
}

// From 取出錯誤鏈中的 AppError，找不到時以 ErrInternal 包裝
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, ErrInternal)
}

// KindOf 回傳錯誤分類
func KindOf(err error) Kind {
	return From(err).Kind
}

// IsRetryable 檢查錯誤是否屬於可重試的並行衝突
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}
	return false
}

// 預定義錯誤
var (
	// 驗證
	ErrInvalidRequest        = New(KindValidation, "INVALID_REQUEST", "invalid request")
	ErrInvalidCapacity       = New(KindValidation, "INVALID_CAPACITY", "capacity must be between 2 and 8")
	ErrInvalidTitle          = New(KindValidation, "INVALID_TITLE", "room title is required")
	ErrInvalidPassword       = New(KindValidation, "INVALID_PASSWORD", "malformed room password")
	ErrInvalidQuestionNumber = New(KindValidation, "INVALID_QUESTION_NUMBER", "question number out of range")

	// 衝突
	ErrRoomFull              = New(KindConflict, "ROOM_IS_FULL", "room is full")
	ErrMemberBlacklisted     = New(KindConflict, "MEMBER_BLACKLISTED", "member is blacklisted from this room")
	ErrAlreadyBlacklisted    = New(KindConflict, "ALREADY_BLACKLISTED", "member is already blacklisted")
	ErrRoomEmpty             = New(KindConflict, "ROOM_EMPTY", "room has no players")
	ErrNotAllReady           = New(KindConflict, "NOT_ALL_READY", "not every player is ready")
	ErrPlayerLeftDuringStart = New(KindConflict, "PLAYER_LEFT_DURING_START", "a player left during start, retry")
	ErrGameAlreadyStarted    = New(KindConflict, "GAME_ALREADY_STARTED", "game already started")
	ErrGameNotStarted        = New(KindConflict, "GAME_NOT_STARTED", "game is not in progress")
	ErrAlreadySubmitted      = New(KindConflict, "ALREADY_SUBMITTED", "answer already submitted for this question")
	ErrQuestionNotOpen       = New(KindConflict, "QUESTION_NOT_OPEN", "question is not open for submissions")
	ErrQuizAlreadyOpen       = New(KindConflict, "QUIZ_ALREADY_OPEN", "quiz round already exists")

	// 找不到
	ErrRoomNotFound     = New(KindNotFound, "ROOM_NOT_FOUND", "room not found")
	ErrMemberNotInRoom  = New(KindNotFound, "MEMBER_NOT_IN_ROOM", "member is not in this room")
	ErrNotBlacklisted   = New(KindNotFound, "NOT_BLACKLISTED", "member is not blacklisted")
	ErrQuizNotFound     = New(KindNotFound, "QUIZ_NOT_FOUND", "quiz not found")
	ErrMemberNotFound   = New(KindNotFound, "MEMBER_NOT_FOUND", "member not found")
	ErrQuestionNotFound = New(KindNotFound, "QUESTION_NOT_FOUND", "quiz content not found")

	// 權限
	ErrNotRoomOwner         = New(KindAuthorization, "NOT_ROOM_OWNER", "only the room owner can do this")
	ErrWrongPassword        = New(KindAuthorization, "WRONG_PASSWORD", "wrong room password")
	ErrCannotBlacklistOwner = New(KindAuthorization, "CANNOT_BLACKLIST_OWNER", "the owner cannot be blacklisted")
	ErrNotParticipant       = New(KindAuthorization, "NOT_PARTICIPANT", "member is not a participant of this quiz")
	ErrInvalidCredential    = New(KindAuthorization, "INVALID_CREDENTIAL", "invalid or expired credential")
	ErrSessionInvalid       = New(KindAuthorization, "SESSION_INVALID", "session is no longer valid")

	// 並行
	ErrLockBusy        = New(KindConcurrency, "LOCK_BUSY", "resource is busy, retry later")
	ErrVersionConflict = New(KindConcurrency, "VERSION_CONFLICT", "state changed concurrently, retry")

	// 基礎設施
	ErrStoreUnavailable = New(KindInfra, "STORE_UNAVAILABLE", "shared store unavailable")
	ErrInternal         = New(KindInfra, "INTERNAL_ERROR", "internal error")
)
