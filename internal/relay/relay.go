// Package relay 實現同步協議：解碼客戶端消息、授權、修改房間並轉發
//
// 伺服器只是中繼，不執行物理模擬。房主送出的球與比分是唯一權威，
// 客人的同類消息會被靜默丟棄。
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/koopa0/pong-arena/internal/events"
	"github.com/koopa0/pong-arena/internal/game"
	"github.com/koopa0/pong-arena/internal/protocol"
	"github.com/koopa0/pong-arena/internal/session"
	apperrors "github.com/koopa0/pong-arena/pkg/errors"
)

// Notifier 將消息投遞給指定玩家
//
// 投遞是 fire-and-forget：不等待確認，玩家已離線或佇列已滿時返回 false。
type Notifier interface {
	Send(participantID string, message []byte) bool
}

// HandlerFunc 單一事件的處理函數
type HandlerFunc func(ctx context.Context, from string, env protocol.Envelope) error

// Dispatcher 消息分派器
type Dispatcher struct {
	registry  *session.Registry
	notifier  Notifier
	publisher events.Publisher
	logger    *slog.Logger
	handlers  map[string]HandlerFunc

	rateLimit RateLimit
	now       func() time.Time
	quotas    *quotas
}

// Option Dispatcher 選項
type Option func(*Dispatcher)

// WithRateLimit 設定每位玩家的速率限制
func WithRateLimit(r RateLimit) Option {
	return func(d *Dispatcher) { d.rateLimit = r }
}

// WithClock 替換速率限制使用的時鐘
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher 創建分派器，publisher 為 nil 時不發布事件
func NewDispatcher(registry *session.Registry, notifier Notifier, publisher events.Publisher, logger *slog.Logger, opts ...Option) *Dispatcher {
	if publisher == nil {
		publisher = events.Nop{}
	}
	d := &Dispatcher{
		registry:  registry,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		handlers:  make(map[string]HandlerFunc),
		rateLimit: DefaultRateLimit(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.quotas = newQuotas(d.rateLimit, d.now)

	d.Register(protocol.EventCreateRoom, d.createRoom)
	d.Register(protocol.EventJoinRoom, d.joinRoom)
	d.Register(protocol.EventLeaveRoom, d.leaveRoom)
	d.Register(protocol.EventStartGame, d.startGame)
	d.Register(protocol.EventPaddleMove, d.paddleMove)
	d.Register(protocol.EventBallUpdate, d.ballUpdate)
	d.Register(protocol.EventScoreUpdate, d.scoreUpdate)
	d.Register(protocol.EventReady, d.ready)
	d.Register(protocol.EventPing, d.ping)

	return d
}

// Register 註冊（或覆蓋）事件處理函數
func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.handlers[event] = h
}

// Handle 處理一則客戶端消息
//
// 任何失敗（包括 panic）都轉成 error 消息只回給發送者。
func (d *Dispatcher) Handle(ctx context.Context, from string, raw []byte) {
	var event string
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("處理消息時發生 panic",
				"participant_id", from,
				"event", event,
				"panic", r,
				"stack", string(debug.Stack()))
			d.sendError(from, apperrors.ErrInternal)
		}
	}()

	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		if !d.quotas.allow(from, requestMeter) {
			d.sendError(from, apperrors.ErrRateLimited)
			return
		}
		d.sendError(from, apperrors.Wrap(err, apperrors.ErrCodeInvalidMessage, "invalid message"))
		return
	}
	event = env.Event

	if c := classify(env.Event); !d.quotas.allow(from, c) {
		if c == streamMeter {
			d.logger.Debug("串流消息超速，已丟棄",
				"participant_id", from,
				"event", env.Event)
			return
		}
		d.logger.Warn("請求過於頻繁",
			"participant_id", from,
			"event", env.Event)
		d.sendError(from, apperrors.ErrRateLimited.WithDetails(env.Event))
		return
	}

	h, ok := d.handlers[env.Event]
	if !ok {
		d.sendError(from, apperrors.ErrInvalidMessage.WithDetails("unknown event "+env.Event))
		return
	}

	if err := h(ctx, from, env); err != nil {
		d.logger.Debug("消息處理失敗",
			"participant_id", from,
			"event", env.Event,
			"error", err)
		d.sendError(from, err)
	}
}

// Disconnect 玩家連接關閉：拆除房間並通知另一位玩家
func (d *Dispatcher) Disconnect(ctx context.Context, participantID string) {
	d.quotas.forget(participantID)
	d.teardown(ctx, participantID, "斷線")
}

func (d *Dispatcher) teardown(ctx context.Context, participantID, reason string) {
	roomID, others, ok := d.registry.Disconnect(ctx, participantID)
	if !ok {
		return
	}

	msg := protocol.MustEncode(protocol.EventPlayerDisconnected, protocol.PlayerDisconnected{RoomID: roomID})
	for _, id := range others {
		d.notifier.Send(id, msg)
	}

	d.logger.Info("房間已拆除",
		"room_id", roomID,
		"participant_id", participantID,
		"reason", reason)

	// 關機時連接的 ctx 已取消，拆除事件仍要送出
	d.publish(context.WithoutCancel(ctx), events.RoomEvent{
		Type:          events.RoomTornDown,
		RoomID:        roomID,
		ParticipantID: participantID,
	})
}

func (d *Dispatcher) createRoom(ctx context.Context, from string, _ protocol.Envelope) error {
	snap, err := d.registry.CreateRoom(ctx, from)
	if err != nil {
		return err
	}

	d.send(from, protocol.EventRoomCreated, protocol.RoomCreated{
		RoomID:       snap.ID,
		Participants: snap.ParticipantIDs(),
	})
	d.publish(ctx, events.RoomEvent{Type: events.RoomCreated, RoomID: snap.ID, ParticipantID: from})
	return nil
}

func (d *Dispatcher) joinRoom(ctx context.Context, from string, env protocol.Envelope) error {
	req, err := decode[protocol.RoomRef](env)
	if err != nil {
		return err
	}

	snap, err := d.registry.JoinRoom(ctx, req.RoomID, from)
	if err != nil {
		return err
	}

	ids := snap.ParticipantIDs()
	d.broadcast(ids, protocol.EventPlayerJoined, protocol.PlayerJoined{
		RoomID:       snap.ID,
		Participants: ids,
		State:        snap.State,
	})
	d.publish(ctx, events.RoomEvent{Type: events.PlayerJoined, RoomID: snap.ID, ParticipantID: from})
	return nil
}

func (d *Dispatcher) leaveRoom(ctx context.Context, from string, _ protocol.Envelope) error {
	if _, ok := d.registry.RoomOf(from); !ok {
		return apperrors.ErrNotInRoom
	}
	d.teardown(ctx, from, "離開")
	return nil
}

func (d *Dispatcher) startGame(ctx context.Context, from string, env protocol.Envelope) error {
	req, err := decode[protocol.RoomRef](env)
	if err != nil {
		return err
	}
	room, err := d.registry.Get(req.RoomID)
	if err != nil {
		return err
	}

	snap, err := room.Start(from)
	if err != nil {
		return err
	}

	ids := snap.ParticipantIDs()
	for _, p := range snap.Participants {
		d.send(p.ID, protocol.EventGameStart, protocol.GameStart{
			RoomID:       snap.ID,
			State:        snap.State,
			Participants: ids,
			IsHost:       p.Slot == game.Host,
			PlayerIndex:  int(p.Slot),
		})
	}

	d.logger.Info("遊戲開始", "room_id", snap.ID)
	d.publish(ctx, events.RoomEvent{Type: events.GameStarted, RoomID: snap.ID, ParticipantID: from})
	return nil
}

func (d *Dispatcher) paddleMove(_ context.Context, from string, env protocol.Envelope) error {
	req, err := decode[protocol.PaddleMove](env)
	if err != nil {
		return err
	}
	room, err := d.registry.Get(req.RoomID)
	if err != nil {
		return err
	}

	to, paddle, err := room.MovePaddle(from, game.Paddle{X: req.Position, Velocity: req.Velocity})
	if err != nil || to == "" {
		return err
	}

	d.send(to, protocol.EventOpponentPaddleMove, protocol.OpponentPaddleMove{
		Position: paddle.X,
		Velocity: paddle.Velocity,
	})
	return nil
}

func (d *Dispatcher) ballUpdate(_ context.Context, from string, env protocol.Envelope) error {
	req, err := decode[protocol.BallUpdate](env)
	if err != nil {
		return err
	}
	room, err := d.registry.Get(req.RoomID)
	if err != nil {
		return err
	}

	to, ball, err := room.ApplyBall(from, req.BallState)
	if err != nil || to == "" {
		return err
	}

	d.send(to, protocol.EventBallSync, ball)
	return nil
}

func (d *Dispatcher) scoreUpdate(ctx context.Context, from string, env protocol.Envelope) error {
	req, err := decode[protocol.ScoreUpdate](env)
	if err != nil {
		return err
	}
	room, err := d.registry.Get(req.RoomID)
	if err != nil {
		return err
	}

	res, err := room.ApplyScore(from, req.Score)
	if err != nil || !res.Accepted {
		return err
	}

	// 比分同時發給房主，雙方都從同一條消息渲染
	d.broadcast(res.Participants, protocol.EventScoreSync, res.Score)

	score := [2]int(res.Score)
	d.publish(ctx, events.RoomEvent{Type: events.RoundScored, RoomID: room.ID, Score: &score})

	if res.GameOver {
		d.broadcast(res.Participants, protocol.EventGameOver, protocol.GameOver{
			RoomID: room.ID,
			Winner: int(res.Winner),
			Score:  res.Score,
		})
		d.logger.Info("比賽結束",
			"room_id", room.ID,
			"winner", res.Winner.String(),
			"score", fmt.Sprintf("%d:%d", res.Score[0], res.Score[1]))
		d.publish(ctx, events.RoomEvent{Type: events.GameOver, RoomID: room.ID, Score: &score})
	}
	return nil
}

func (d *Dispatcher) ready(_ context.Context, from string, env protocol.Envelope) error {
	req, err := decode[protocol.RoomRef](env)
	if err != nil {
		return err
	}
	room, err := d.registry.Get(req.RoomID)
	if err != nil {
		return err
	}

	res, err := room.Ready(from)
	if err != nil || !res.AllReady {
		return err
	}

	ids := res.Snapshot.ParticipantIDs()
	d.broadcast(ids, protocol.EventAllPlayersReady, protocol.AllPlayersReady{
		RoomID:       res.Snapshot.ID,
		State:        res.Snapshot.State,
		Participants: ids,
	})
	return nil
}

func (d *Dispatcher) ping(_ context.Context, from string, _ protocol.Envelope) error {
	d.send(from, protocol.EventPong, protocol.Pong{Time: time.Now().UnixMilli()})
	return nil
}

// send 編碼並投遞給單一玩家
func (d *Dispatcher) send(to, event string, payload any) {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		d.logger.Error("編碼消息失敗", "event", event, "error", err)
		return
	}
	if !d.notifier.Send(to, msg) {
		d.logger.Debug("消息未投遞", "participant_id", to, "event", event)
	}
}

// broadcast 編碼一次後投遞給多位玩家
func (d *Dispatcher) broadcast(to []string, event string, payload any) {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		d.logger.Error("編碼消息失敗", "event", event, "error", err)
		return
	}
	for _, id := range to {
		d.notifier.Send(id, msg)
	}
}

func (d *Dispatcher) sendError(to string, err error) {
	payload := protocol.Error{
		Code:    apperrors.CodeOf(err),
		Message: apperrors.ErrInternal.Message,
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		payload.Message = appErr.Message
		if appErr.Details != "" {
			payload.Message += ": " + appErr.Details
		}
	} else {
		d.logger.Error("未預期的錯誤", "participant_id", to, "error", err)
	}
	d.send(to, protocol.EventError, payload)
}

func (d *Dispatcher) publish(ctx context.Context, ev events.RoomEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.logger.Warn("發布房間事件失敗",
			"room_id", ev.RoomID,
			"type", ev.Type,
			"error", err)
	}
}

func decode[T any](env protocol.Envelope) (T, error) {
	v, err := protocol.DecodeData[T](env)
	if err != nil {
		return v, apperrors.Wrap(err, apperrors.ErrCodeInvalidMessage, "invalid "+env.Event+" payload")
	}
	return v, nil
}
