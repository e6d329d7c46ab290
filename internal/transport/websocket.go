package transport

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketServer 接受 WebSocket 連接
type WebSocketServer struct {
	hub      *Hub
	handler  MessageHandler
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketServer 創建 WebSocket 伺服器
func NewWebSocketServer(hub *Hub, handler MessageHandler, cfg Config, logger *slog.Logger) *WebSocketServer {
	cfg = cfg.withDefaults()
	s := &WebSocketServer{
		hub:     hub,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin 未設定白名單時允許所有來源
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// Peer 一條 WebSocket 連接
type Peer struct {
	ID     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	server *WebSocketServer
	// closeOnce 確保 done 只關閉一次
	closeOnce sync.Once
}

// ServeHTTP 升級連接並啟動讀寫 goroutine
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	peer := &Peer{
		ID:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, s.cfg.SendBuffer),
		done:   make(chan struct{}),
		server: s,
	}
	s.hub.register(peer.ID, peer)

	go peer.writePump()
	go peer.readPump()

	s.logger.Info("WebSocket 連接建立",
		"participant_id", peer.ID,
		"remote_addr", r.RemoteAddr)
}

func (p *Peer) enqueue(msg []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

func (p *Peer) kind() string { return "websocket" }

// readPump 讀取客戶端消息
//
// 同一連接的消息依序同步處理，保留發送順序；速率限制由 handler 負責。
// 60 秒內沒有任何消息（包括 Pong）就關閉連接。
func (p *Peer) readPump() {
	s := p.server
	defer func() {
		if s.hub.unregister(p.ID, p) {
			s.handler.Disconnect(s.hub.Context(), p.ID)
		}
		s.hub.finish()
		p.close()
		p.conn.Close()
		s.logger.Info("WebSocket 連接關閉", "participant_id", p.ID)
	}()

	p.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	if err := p.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		s.logger.Error("設置讀取期限失敗", "error", err)
	}
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		messageType, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"participant_id", p.ID)
			}
			return
		}

		// 任何應用層消息都算存活
		if err := p.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		s.handler.Handle(s.hub.Context(), p.ID, message)
	}
}

// writePump 寫入消息並定時發送 Ping
func (p *Peer) writePump() {
	s := p.server
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message := <-p.send:
			if err := p.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(p.send)
			for i := 0; i < n; i++ {
				if err := p.conn.WriteMessage(websocket.TextMessage, <-p.send); err != nil {
					s.logger.Warn("發送消息失敗", "participant_id", p.ID, "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := p.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
				return
			}
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.done:
			// 先送出已排隊的消息（例如 player-disconnected），再優雅關閉
			_ = p.conn.SetWriteDeadline(time.Now().Add(time.Second))
			for n := len(p.send); n > 0; n-- {
				if err := p.conn.WriteMessage(websocket.TextMessage, <-p.send); err != nil {
					return
				}
			}
			_ = p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
