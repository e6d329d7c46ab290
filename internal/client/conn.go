// Package client 客戶端同步：WebSocket 連接、房主比賽循環與客人播放
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koopa0/pong-arena/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	eventsBuffer = 64
)

// Sender 發送一則協議消息
type Sender interface {
	Send(event string, payload any) error
}

// Conn 到 relay 伺服器的 WebSocket 連接
//
// 讀取 goroutine 把收到的信封送進 Events()，連接關閉時關閉該 channel。
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	events chan protocol.Envelope
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial 連接伺服器
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("連接 %s: %w", url, err)
	}

	c := &Conn{
		ws:     ws,
		logger: logger,
		events: make(chan protocol.Envelope, eventsBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events 收到的消息
func (c *Conn) Events() <-chan protocol.Envelope {
	return c.events
}

// Send 發送消息，可並發呼叫
func (c *Conn) Send(event string, payload any) error {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Close 優雅關閉連接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("讀取伺服器消息失敗", "error", err)
			}
			return
		}

		env, err := protocol.DecodeEnvelope(msg)
		if err != nil {
			c.logger.Warn("無法解析伺服器消息", "error", err)
			continue
		}

		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}
