package client

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/koopa0/pong-arena/internal/game"
	"github.com/koopa0/pong-arena/internal/protocol"
)

// Phase 玩家視角的比賽階段
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseWaiting      Phase = "waiting"
	PhaseLobby        Phase = "lobby"
	PhasePlaying      Phase = "playing"
	PhaseOver         Phase = "over"
	PhaseDisconnected Phase = "disconnected"
)

// Player 把伺服器事件分派給房主的 Match 或客人的 Playback
type Player struct {
	sender     Sender
	jitter     game.Jitter
	serveDelay time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	roomID    string
	slot      game.Slot
	phase     Phase
	match     *Match
	playback  *Playback
	paddleOut paddleSync
	result    *protocol.GameOver

	// 客人得分後延遲送出 ready，比賽結束時取消
	readyLater game.Countdown
}

// NewPlayer 創建玩家
func NewPlayer(sender Sender, jitter game.Jitter, serveDelay time.Duration, logger *slog.Logger) *Player {
	if serveDelay <= 0 {
		serveDelay = DefaultServeDelay
	}
	return &Player{
		sender:     sender,
		jitter:     jitter,
		serveDelay: serveDelay,
		logger:     logger,
		phase:      PhaseIdle,
		playback:   NewPlayback(0),
	}
}

// CreateRoom 建立房間
func (p *Player) CreateRoom() error {
	return p.sender.Send(protocol.EventCreateRoom, nil)
}

// JoinRoom 加入房間
func (p *Player) JoinRoom(code string) error {
	return p.sender.Send(protocol.EventJoinRoom, protocol.RoomRef{RoomID: code})
}

// StartGame 房主開始遊戲
func (p *Player) StartGame() error {
	return p.sender.Send(protocol.EventStartGame, protocol.RoomRef{RoomID: p.RoomID()})
}

// RoomID 目前房間
func (p *Player) RoomID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID
}

// Slot 自己的位置，game-start 之後有效
func (p *Player) Slot() game.Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slot
}

// Phase 目前階段
func (p *Player) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Result 比賽結果，未結束時為 nil
func (p *Player) Result() *protocol.GameOver {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Ball 本地看到的球
func (p *Player) Ball() game.Ball {
	p.mu.Lock()
	match := p.match
	p.mu.Unlock()

	if match != nil {
		return match.State().Ball
	}
	return p.playback.Ball()
}

// Score 本地看到的比分
func (p *Player) Score() game.Score {
	p.mu.Lock()
	match := p.match
	p.mu.Unlock()

	if match != nil {
		return match.State().Score
	}
	return p.playback.Score()
}

// Tick 推進一幀：房主跑物理，客人只同步球拍
func (p *Player) Tick(now time.Time, dt time.Duration, paddle game.Paddle) error {
	paddle.X = game.ClampPaddleX(paddle.X)

	p.mu.Lock()
	if p.phase != PhasePlaying {
		p.mu.Unlock()
		return nil
	}
	match := p.match
	roomID := p.roomID

	if match == nil {
		err := p.paddleOut.sync(p.sender, roomID, paddle, now)
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	match.SetPaddle(paddle)
	return match.Tick(now, dt)
}

// Handle 處理一則伺服器消息
func (p *Player) Handle(env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventRoomCreated:
		msg, err := protocol.DecodeData[protocol.RoomCreated](env)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.roomID = msg.RoomID
		p.phase = PhaseWaiting
		p.mu.Unlock()
		p.logger.Info("房間已建立", "room_id", msg.RoomID)

	case protocol.EventPlayerJoined:
		msg, err := protocol.DecodeData[protocol.PlayerJoined](env)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.roomID = msg.RoomID
		p.phase = PhaseLobby
		p.mu.Unlock()
		p.logger.Info("玩家已加入", "room_id", msg.RoomID, "participants", msg.Participants)

	case protocol.EventGameStart:
		msg, err := protocol.DecodeData[protocol.GameStart](env)
		if err != nil {
			return err
		}
		return p.onGameStart(msg)

	case protocol.EventAllPlayersReady:
		msg, err := protocol.DecodeData[protocol.AllPlayersReady](env)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.phase = PhasePlaying
		match := p.match
		p.mu.Unlock()

		if match != nil {
			match.Begin(msg.State)
		} else {
			p.playback.Reset(msg.State)
		}

	case protocol.EventBallSync:
		ball, err := protocol.DecodeData[game.Ball](env)
		if err != nil {
			return err
		}
		p.playback.ApplyBall(ball)

	case protocol.EventOpponentPaddleMove:
		msg, err := protocol.DecodeData[protocol.OpponentPaddleMove](env)
		if err != nil {
			return err
		}
		paddle := game.Paddle{X: msg.Position, Velocity: msg.Velocity}
		p.mu.Lock()
		match := p.match
		p.mu.Unlock()
		if match != nil {
			match.SetOpponentPaddle(paddle)
		} else {
			p.playback.ApplyOpponent(paddle)
		}

	case protocol.EventScoreSync:
		score, err := protocol.DecodeData[game.Score](env)
		if err != nil {
			return err
		}
		p.playback.ApplyScore(score)

		p.mu.Lock()
		isGuest := p.match == nil
		roomID := p.roomID
		p.mu.Unlock()

		if isGuest {
			p.readyLater.Schedule(p.serveDelay/2, func() {
				if err := p.sender.Send(protocol.EventReady, protocol.RoomRef{RoomID: roomID}); err != nil {
					p.logger.Warn("送出 ready 失敗", "room_id", roomID, "error", err)
				}
			})
		}

	case protocol.EventGameOver:
		msg, err := protocol.DecodeData[protocol.GameOver](env)
		if err != nil {
			return err
		}
		p.finish(PhaseOver, &msg)
		p.logger.Info("比賽結束", "room_id", msg.RoomID, "winner", msg.Winner, "score", msg.Score)

	case protocol.EventPlayerDisconnected:
		p.finish(PhaseDisconnected, nil)
		p.logger.Info("對手已離線", "room_id", p.RoomID())

	case protocol.EventError:
		msg, err := protocol.DecodeData[protocol.Error](env)
		if err != nil {
			return err
		}
		return fmt.Errorf("伺服器錯誤 %s: %s", msg.Code, msg.Message)

	case protocol.EventPong:

	default:
		p.logger.Debug("忽略未知事件", "event", env.Event)
	}
	return nil
}

func (p *Player) onGameStart(msg protocol.GameStart) error {
	p.mu.Lock()
	p.roomID = msg.RoomID
	p.slot = game.Slot(msg.PlayerIndex)
	p.phase = PhaseLobby
	p.result = nil

	if msg.IsHost {
		if p.match == nil {
			p.match = NewMatch(msg.RoomID, p.sender, p.jitter, p.serveDelay, p.logger)
		} else {
			p.match.Restart()
		}
	}
	p.mu.Unlock()

	p.playback.Reset(msg.State)

	p.logger.Info("遊戲開始",
		"room_id", msg.RoomID,
		"role", game.Slot(msg.PlayerIndex).String())

	return p.sender.Send(protocol.EventReady, protocol.RoomRef{RoomID: msg.RoomID})
}

func (p *Player) finish(phase Phase, result *protocol.GameOver) {
	p.readyLater.Cancel()

	p.mu.Lock()
	p.phase = phase
	p.result = result
	match := p.match
	p.mu.Unlock()

	if match != nil {
		match.Stop()
	}
}
