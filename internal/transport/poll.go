package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Long-polling 備援傳輸
//
//	POST   /poll        建立會話，返回 {"sid": "..."}
//	POST   /poll/{sid}  送出一則消息（信封原文）
//	GET    /poll/{sid}  等待消息，最多 PollWait，返回 JSON 陣列
//	DELETE /poll/{sid}  關閉會話
//
// 超過 PollIdle 沒有 GET 的會話視為斷線，由清理 goroutine 關閉。
// 等待中的 GET 會把連接的讀寫期限延長到 PollWait + WriteWait，
// 不受伺服器全域 ReadTimeout、WriteTimeout 限制。

var errSessionClosed = errors.New("poll session closed")

// pollSession 一個 long-polling 會話
type pollSession struct {
	id       string
	maxQueue int

	mu       sync.Mutex
	queue    [][]byte
	closed   bool
	lastSeen time.Time
	notify   chan struct{}

	// handleMu 串行處理同一會話的消息，保留發送順序；
	// 關閉會話也要持有它，斷線處理不會與進行中的消息交錯
	handleMu sync.Mutex
}

func (ps *pollSession) enqueue(msg []byte) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed || len(ps.queue) >= ps.maxQueue {
		return false
	}
	ps.queue = append(ps.queue, msg)

	select {
	case ps.notify <- struct{}{}:
	default:
	}
	return true
}

func (ps *pollSession) close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}
	ps.closed = true
	select {
	case ps.notify <- struct{}{}:
	default:
	}
}

func (ps *pollSession) isClosed() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.closed
}

// requeue 回應寫入失敗時把消息放回佇列前端
func (ps *pollSession) requeue(msgs [][]byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}
	ps.queue = append(msgs, ps.queue...)
}

func (ps *pollSession) kind() string { return "polling" }

func (ps *pollSession) touch() {
	ps.mu.Lock()
	ps.lastSeen = time.Now()
	ps.mu.Unlock()
}

func (ps *pollSession) idleSince() time.Time {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastSeen
}

// drain 取出所有排隊消息；佇列為空時等待到有消息、會話關閉或 ctx 結束
//
// 會話關閉時先返回剩餘消息，下一次才返回 errSessionClosed。
func (ps *pollSession) drain(ctx context.Context) ([][]byte, error) {
	for {
		ps.mu.Lock()
		ps.lastSeen = time.Now()
		if len(ps.queue) > 0 {
			out := ps.queue
			ps.queue = nil
			ps.mu.Unlock()
			return out, nil
		}
		if ps.closed {
			ps.mu.Unlock()
			return nil, errSessionClosed
		}
		ps.mu.Unlock()

		select {
		case <-ps.notify:
		case <-ctx.Done():
			return nil, nil
		}
	}
}

// PollServer long-polling 伺服器
type PollServer struct {
	hub     *Hub
	handler MessageHandler
	cfg     Config
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*pollSession

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPollServer 創建 long-polling 伺服器並啟動閒置清理
func NewPollServer(hub *Hub, handler MessageHandler, cfg Config, logger *slog.Logger) *PollServer {
	s := &PollServer{
		hub:      hub,
		handler:  handler,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sessions: make(map[string]*pollSession),
		stopCh:   make(chan struct{}),
	}

	s.wg.Add(1)
	go s.reapLoop()

	return s
}

// Routes 註冊路由
func (s *PollServer) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /poll", s.open)
	mux.HandleFunc("POST /poll/{sid}", s.post)
	mux.HandleFunc("GET /poll/{sid}", s.poll)
	mux.HandleFunc("DELETE /poll/{sid}", s.remove)
}

func (s *PollServer) open(w http.ResponseWriter, r *http.Request) {
	ps := &pollSession{
		id:       uuid.NewString(),
		maxQueue: s.cfg.PollMaxQueue,
		lastSeen: time.Now(),
		notify:   make(chan struct{}, 1),
	}

	s.mu.Lock()
	s.sessions[ps.id] = ps
	s.mu.Unlock()
	s.hub.register(ps.id, ps)

	s.logger.Info("Polling 會話建立",
		"participant_id", ps.id,
		"remote_addr", r.RemoteAddr)

	writeJSON(w, http.StatusCreated, map[string]string{"sid": ps.id})
}

func (s *PollServer) lookup(w http.ResponseWriter, r *http.Request) (*pollSession, bool) {
	s.mu.RLock()
	ps, ok := s.sessions[r.PathValue("sid")]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "會話不存在"})
	}
	return ps, ok
}

func (s *PollServer) post(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ps.touch()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "消息過大"})
		return
	}

	ps.handleMu.Lock()
	defer ps.handleMu.Unlock()
	if ps.isClosed() {
		writeJSON(w, http.StatusGone, map[string]string{"error": "會話已關閉"})
		return
	}
	s.handler.Handle(s.hub.Context(), ps.id, body)

	w.WriteHeader(http.StatusNoContent)
}

func (s *PollServer) poll(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookup(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	deadline := time.Now().Add(s.cfg.PollWait + s.cfg.WriteWait)
	if err := rc.SetReadDeadline(deadline); err != nil {
		s.logger.Debug("延長讀取期限失敗", "participant_id", ps.id, "error", err)
	}
	if err := rc.SetWriteDeadline(deadline); err != nil {
		s.logger.Debug("延長寫入期限失敗", "participant_id", ps.id, "error", err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PollWait)
	defer cancel()

	msgs, err := ps.drain(ctx)
	if errors.Is(err, errSessionClosed) {
		writeJSON(w, http.StatusGone, map[string]string{"error": "會話已關閉"})
		return
	}

	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	writeJSON(w, http.StatusOK, out)
	if err := rc.Flush(); err != nil && len(msgs) > 0 {
		s.logger.Warn("回應寫入失敗，消息放回佇列",
			"participant_id", ps.id,
			"count", len(msgs),
			"error", err)
		ps.requeue(msgs)
	}
}

func (s *PollServer) remove(w http.ResponseWriter, r *http.Request) {
	ps, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.closeSession(ps, "客戶端關閉")
	w.WriteHeader(http.StatusNoContent)
}

// closeSession 關閉會話並拆除玩家所在房間
func (s *PollServer) closeSession(ps *pollSession, reason string) {
	s.mu.Lock()
	_, ok := s.sessions[ps.id]
	delete(s.sessions, ps.id)
	s.mu.Unlock()
	if !ok {
		return
	}

	ps.handleMu.Lock()
	ps.close()
	if s.hub.unregister(ps.id, ps) {
		s.handler.Disconnect(s.hub.Context(), ps.id)
	}
	ps.handleMu.Unlock()
	s.hub.finish()

	s.logger.Info("Polling 會話關閉",
		"participant_id", ps.id,
		"reason", reason)
}

// reapLoop 定期關閉閒置會話
func (s *PollServer) reapLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollIdle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reap(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

func (s *PollServer) reap(now time.Time) {
	s.mu.RLock()
	var idle []*pollSession
	for _, ps := range s.sessions {
		if now.Sub(ps.idleSince()) > s.cfg.PollIdle {
			idle = append(idle, ps)
		}
	}
	s.mu.RUnlock()

	for _, ps := range idle {
		s.closeSession(ps, "閒置逾時")
	}
}

// Count 當前會話數
func (s *PollServer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop 停止清理並關閉所有會話
func (s *PollServer) Stop() {
	close(s.stopCh)
	s.wg.Wait()

	s.mu.RLock()
	all := make([]*pollSession, 0, len(s.sessions))
	for _, ps := range s.sessions {
		all = append(all, ps)
	}
	s.mu.RUnlock()

	for _, ps := range all {
		s.closeSession(ps, "伺服器關閉")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
