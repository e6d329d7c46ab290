// Package transport 管理客戶端連接
//
// 兩種傳輸方式共用同一個 Hub：
//   - WebSocket：持久雙向連接（首選）
//   - Long-polling：WebSocket 無法建立時的備援
//
// 每個連接的 ID 即玩家 ID；連接關閉時由 MessageHandler 拆除房間。
package transport

import (
	"context"
	"log/slog"
	"sync"
)

// MessageHandler 處理已解框的客戶端消息
type MessageHandler interface {
	Handle(ctx context.Context, participantID string, raw []byte)
	Disconnect(ctx context.Context, participantID string)
}

// sink 單一連接的發送端
type sink interface {
	// enqueue 非阻塞入隊，佇列滿或已關閉返回 false
	enqueue(msg []byte) bool
	close()
	kind() string
}

// Hub 連接中心
//
// 系統設計考量：
//
//  1. 投遞不阻塞：每個連接有自己的緩衝佇列，慢客戶端只會丟自己的消息
//  2. 並發安全：RWMutex，投遞頻繁（讀鎖），註冊/註銷少（寫鎖）
type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu    sync.RWMutex
	sinks map[string]sink

	// active 尚未完成清理的連接，Stop 等待它歸零
	active sync.WaitGroup
}

// NewHub 創建連接中心
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		sinks:  make(map[string]sink),
	}
}

// Context 連接處理使用的 context，Stop 後取消
func (h *Hub) Context() context.Context {
	return h.ctx
}

// register 登記連接；連接清理完成後必須呼叫一次 finish
func (h *Hub) register(id string, s sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[id] = s
	h.active.Add(1)
}

func (h *Hub) finish() {
	h.active.Done()
}

// unregister 只移除同一個 sink，返回是否真的移除
func (h *Hub) unregister(id string, s sink) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.sinks[id]; ok && cur == s {
		delete(h.sinks, id)
		return true
	}
	return false
}

// Send 投遞消息給玩家，實現 relay.Notifier
func (h *Hub) Send(participantID string, message []byte) bool {
	h.mu.RLock()
	s, ok := h.sinks[participantID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	if !s.enqueue(message) {
		h.logger.Warn("連接緩衝區滿，丟棄消息",
			"participant_id", participantID,
			"transport", s.kind())
		return false
	}
	return true
}

// Count 當前連接數
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// CountByTransport 各傳輸方式的連接數
func (h *Hub) CountByTransport() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int)
	for _, s := range h.sinks {
		out[s.kind()]++
	}
	return out
}

// Stop 關閉所有連接並等待各自的清理流程（註銷、拆除房間）結束，
// 之後才取消 Context
//
// ctx 先結束時不再等待，返回 ctx.Err()。
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.RLock()
	sinks := make([]sink, 0, len(h.sinks))
	for _, s := range h.sinks {
		sinks = append(sinks, s)
	}
	h.mu.RUnlock()

	for _, s := range sinks {
		s.close()
	}
	defer h.cancel()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("連接中心已停止", "connections", len(sinks))
		return nil
	case <-ctx.Done():
		h.logger.Warn("等待連接清理逾時", "remaining", h.Count())
		return ctx.Err()
	}
}
