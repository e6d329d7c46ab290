// Package handler 提供健康檢查與統計 HTTP 介面
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/koopa0/pong-arena/pkg/errors"

	"github.com/koopa0/pong-arena/internal/session"
)

// RoomDirectory 房間查詢
type RoomDirectory interface {
	Stats() map[string]any
	Get(roomID string) (*session.Room, error)
}

// ConnectionCounter 連接統計
type ConnectionCounter interface {
	Count() int
	CountByTransport() map[string]int
}

// Handler HTTP 請求處理器
type Handler struct {
	rooms   RoomDirectory
	conns   ConnectionCounter
	logger  *slog.Logger
	started time.Time
	now     func() time.Time
}

// NewHandler 創建 HTTP 處理器
func NewHandler(rooms RoomDirectory, conns ConnectionCounter, logger *slog.Logger) *Handler {
	return &Handler{
		rooms:   rooms,
		conns:   conns,
		logger:  logger,
		started: time.Now(),
		now:     time.Now,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))
	mux.HandleFunc("GET /rooms/{room_id}", wrap(h.getRoom))

	return mux
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	h.jsonResponse(w, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(now.Sub(h.started).Seconds()),
		"connections":    h.conns.Count(),
		"time":           now.Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.rooms.Stats()
	stats["connections"] = h.conns.CountByTransport()
	h.jsonResponse(w, stats, http.StatusOK)
}

// getRoom 房間詳情
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Get(r.PathValue("room_id"))
	if err != nil {
		h.appError(w, err)
		return
	}
	h.jsonResponse(w, room.Snapshot(), http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// appError 依錯誤碼選擇狀態碼
func (h *Handler) appError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeRoomNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeInvalidMessage:
		status = http.StatusBadRequest
	}
	h.jsonResponse(w, map[string]any{
		"code":  apperrors.CodeOf(err),
		"error": err.Error(),
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
