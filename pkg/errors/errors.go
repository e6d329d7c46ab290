// Package errors 提供應用程式錯誤處理
//
// 所有協議層錯誤都帶有穩定的錯誤碼，傳輸層會把 Code 與 Message
// 原樣回傳給發起請求的一方。
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeRoomNotFound 房間不存在或已拆除
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	// ErrCodeRoomFull 房間已滿
	ErrCodeRoomFull = "ROOM_FULL"
	// ErrCodeUnauthorized 非房主執行房主操作
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeNotReady 玩家人數不足
	ErrCodeNotReady = "NOT_READY"
	// ErrCodeGameNotStarted 遊戲尚未開始
	ErrCodeGameNotStarted = "GAME_NOT_STARTED"
	// ErrCodeNotInRoom 發送者不在房間中
	ErrCodeNotInRoom = "NOT_IN_ROOM"
	// ErrCodeAlreadyInRoom 玩家已在其他房間
	ErrCodeAlreadyInRoom = "ALREADY_IN_ROOM"
	// ErrCodeInvalidMessage 無效的消息
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	// ErrCodeRateLimited 發送過於頻繁
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 依賴服務（例如 Redis）不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
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

// Is 實現 errors.Is，以錯誤碼比較
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶有詳細資訊的副本
//
// 預定義錯誤是共享的，所以這裡不修改接收者。
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	ErrRoomNotFound   = New(ErrCodeRoomNotFound, "room not found")
	ErrRoomFull       = New(ErrCodeRoomFull, "room is full")
	ErrUnauthorized   = New(ErrCodeUnauthorized, "only the host can start the game")
	ErrNotReady       = New(ErrCodeNotReady, "two players are required")
	ErrGameNotStarted = New(ErrCodeGameNotStarted, "game has not started")
	ErrNotInRoom      = New(ErrCodeNotInRoom, "not a participant of this room")
	ErrAlreadyInRoom  = New(ErrCodeAlreadyInRoom, "already in a room")
	ErrInvalidMessage = New(ErrCodeInvalidMessage, "invalid message")
	ErrRateLimited    = New(ErrCodeRateLimited, "too many messages")
	ErrInternal       = New(ErrCodeInternal, "internal error")
)

// CodeOf 取得錯誤碼，非 AppError 一律視為內部錯誤
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsRoomNotFound 檢查是否為房間不存在錯誤
func IsRoomNotFound(err error) bool {
	return CodeOf(err) == ErrCodeRoomNotFound
}

// IsRoomFull 檢查是否為房間已滿錯誤
func IsRoomFull(err error) bool {
	return CodeOf(err) == ErrCodeRoomFull
}
