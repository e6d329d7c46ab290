package client

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/koopa0/pong-arena/internal/game"
	"github.com/koopa0/pong-arena/internal/protocol"
)

const (
	// DefaultServeDelay 得分後到下一次發球的等待時間
	DefaultServeDelay = time.Second

	ballInterval   = time.Duration(protocol.BallSyncIntervalMs) * time.Millisecond
	paddleInterval = time.Duration(protocol.PaddleResyncIntervalMs) * time.Millisecond
)

// Match 房主端的比賽循環
//
// 房主是球和比分的唯一權威：每一幀推進物理，
// 穩定飛行時最多每 16ms 發送一次球狀態，碰撞或得分時立即發送。
//
//	Idle → Running → (得分) Resetting → (倒數結束，送出 ready) Idle → ...
//
// 全員準備（all-players-ready）後由 Begin 發球。
type Match struct {
	roomID     string
	sender     Sender
	logger     *slog.Logger
	serveDelay time.Duration

	mu       sync.Mutex
	engine   *game.Engine
	state    game.State
	running  bool
	over     bool
	serveTo  game.Slot
	lastBall time.Time
	paddle   paddleSync

	countdown game.Countdown
}

// NewMatch 創建房主比賽循環，jitter 為 nil 時不加擾動
func NewMatch(roomID string, sender Sender, jitter game.Jitter, serveDelay time.Duration, logger *slog.Logger) *Match {
	if serveDelay <= 0 {
		serveDelay = DefaultServeDelay
	}
	return &Match{
		roomID:     roomID,
		sender:     sender,
		logger:     logger,
		serveDelay: serveDelay,
		engine:     game.NewEngine(jitter),
		state:      game.NewState(),
		serveTo:    game.Guest,
	}
}

// Begin 全員準備後發球，比分以伺服器為準
func (m *Match) Begin(server game.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.over {
		return
	}
	m.countdown.Cancel()
	m.state.Score = server.Score
	m.engine.Reset(&m.state)
	m.engine.Serve(&m.state, m.serveTo)
	m.running = true
	m.lastBall = time.Time{}

	m.logger.Debug("發球", "room_id", m.roomID, "towards", m.serveTo.String())
}

// Restart 新的一場比賽（再次 start-game 之後）
func (m *Match) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.countdown.Cancel()
	m.over = false
	m.running = false
	m.serveTo = game.Guest
	m.state.ResetMatch()
}

// Stop 比賽結束或對手離開，取消待執行的重新發球
func (m *Match) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.countdown.Cancel()
	m.running = false
	m.over = true
}

// Running 球是否在飛行中
func (m *Match) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// State 目前狀態副本
func (m *Match) State() game.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetPaddle 本地球拍位置
func (m *Match) SetPaddle(p game.Paddle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.X = game.ClampPaddleX(p.X)
	m.state.Paddles[game.Host] = p
}

// SetOpponentPaddle 客人球拍（來自 opponent-paddle-move）
func (m *Match) SetOpponentPaddle(p game.Paddle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.X = game.ClampPaddleX(p.X)
	m.state.Paddles[game.Guest] = p
}

// Tick 推進一幀並發送需要同步的消息
func (m *Match) Tick(now time.Time, dt time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error

	errs = append(errs, m.paddle.sync(m.sender, m.roomID, m.state.Paddles[game.Host], now))

	if !m.running {
		return errors.Join(errs...)
	}

	var (
		collided bool
		scored   *game.Event
	)
	for _, ev := range m.engine.Step(&m.state, dt) {
		if ev.Collision() {
			collided = true
		}
		if ev.Kind == game.EventScored {
			scored = &ev
		}
	}

	if collided || scored != nil || now.Sub(m.lastBall) >= ballInterval {
		errs = append(errs, m.sendBallLocked())
		m.lastBall = now
	}

	if scored != nil {
		m.running = false
		m.serveTo = scored.Slot.Opponent()
		errs = append(errs, m.sender.Send(protocol.EventScoreUpdate, protocol.ScoreUpdate{
			RoomID: m.roomID,
			Score:  m.state.Score,
		}))
		m.countdown.Schedule(m.serveDelay, m.nextRound)

		m.logger.Debug("得分",
			"room_id", m.roomID,
			"scorer", scored.Slot.String(),
			"score", m.state.Score)
	}

	return errors.Join(errs...)
}

// nextRound 倒數結束：球回中心並送出 ready
func (m *Match) nextRound() {
	m.mu.Lock()
	if m.over {
		m.mu.Unlock()
		return
	}
	m.engine.Reset(&m.state)
	err := errors.Join(
		m.sendBallLocked(),
		m.sender.Send(protocol.EventReady, protocol.RoomRef{RoomID: m.roomID}),
	)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("送出下一回合準備失敗", "room_id", m.roomID, "error", err)
	}
}

func (m *Match) sendBallLocked() error {
	return m.sender.Send(protocol.EventBallUpdate, protocol.BallUpdate{
		RoomID:    m.roomID,
		BallState: m.state.Ball,
	})
}

// paddleSync 球拍同步：移動時每幀發送，靜止時每 500ms 重新同步
type paddleSync struct {
	sent game.Paddle
	at   time.Time
}

func (ps *paddleSync) sync(sender Sender, roomID string, p game.Paddle, now time.Time) error {
	if p == ps.sent && now.Sub(ps.at) < paddleInterval {
		return nil
	}
	ps.sent = p
	ps.at = now
	return sender.Send(protocol.EventPaddleMove, protocol.PaddleMove{
		RoomID:   roomID,
		Position: p.X,
		Velocity: p.Velocity,
	})
}
