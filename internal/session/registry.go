// Package session 管理房間的生命週期
//
// Registry 是房間存在與否的唯一寫入者；房間內容只透過 Room 的方法修改。
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/koopa0/pong-arena/internal/storage"
	apperrors "github.com/koopa0/pong-arena/pkg/errors"
	"github.com/koopa0/pong-arena/pkg/roomcode"
)

// 生成房間碼的最大嘗試次數
const maxCodeAttempts = 16

// Registry 房間註冊表
type Registry struct {
	rooms   map[string]*Room  // roomID -> Room
	members map[string]string // participantID -> roomID
	mu      sync.RWMutex

	codes        roomcode.Generator
	store        storage.CodeStore
	winningScore int
	logger       *slog.Logger
}

// Option Registry 選項
type Option func(*Registry)

// WithCodeGenerator 指定房間碼生成器
func WithCodeGenerator(g roomcode.Generator) Option {
	return func(r *Registry) { r.codes = g }
}

// WithWinningScore 指定勝利分數，0 表示不限
func WithWinningScore(n int) Option {
	return func(r *Registry) { r.winningScore = n }
}

// NewRegistry 創建房間註冊表，store 為 nil 時使用進程內預留
func NewRegistry(store storage.CodeStore, logger *slog.Logger, opts ...Option) *Registry {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	r := &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		codes:   roomcode.Random{},
		store:   store,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom 創建房間，建立者成為房主
//
// 房間碼碰撞時重新生成。
func (m *Registry) CreateRoom(ctx context.Context, participantID string) (Snapshot, error) {
	m.mu.RLock()
	_, inRoom := m.members[participantID]
	m.mu.RUnlock()
	if inRoom {
		return Snapshot{}, apperrors.ErrAlreadyInRoom
	}

	code, err := m.reserveCode(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	if _, inRoom := m.members[participantID]; inRoom {
		m.mu.Unlock()
		m.release(ctx, code)
		return Snapshot{}, apperrors.ErrAlreadyInRoom
	}
	room := NewRoom(code, m.winningScore)
	snap, err := room.Join(participantID)
	if err != nil {
		m.mu.Unlock()
		m.release(ctx, code)
		return Snapshot{}, err
	}
	m.rooms[code] = room
	m.members[participantID] = code
	m.mu.Unlock()

	m.logger.Info("房間已創建",
		"room_id", code,
		"participant_id", participantID)

	return snap, nil
}

// reserveCode 生成並預留一個未使用的房間碼
func (m *Registry) reserveCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := m.codes.Generate()
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "生成房間碼失敗")
		}

		m.mu.RLock()
		_, exists := m.rooms[code]
		m.mu.RUnlock()
		if exists {
			continue
		}

		ok, err := m.store.Reserve(ctx, code)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "預留房間碼失敗")
		}
		if ok {
			return code, nil
		}
		m.logger.Debug("房間碼碰撞，重新生成", "room_id", code, "attempt", attempt)
	}
	return "", apperrors.New(apperrors.ErrCodeInternal, "無法生成唯一的房間碼")
}

// JoinRoom 加入房間
func (m *Registry) JoinRoom(_ context.Context, roomID, participantID string) (Snapshot, error) {
	roomID = roomcode.Normalize(roomID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, inRoom := m.members[participantID]; inRoom {
		return Snapshot{}, apperrors.ErrAlreadyInRoom
	}
	if !roomcode.Valid(roomID) {
		return Snapshot{}, apperrors.ErrRoomNotFound.WithDetails("malformed room code")
	}
	room, ok := m.rooms[roomID]
	if !ok {
		return Snapshot{}, apperrors.ErrRoomNotFound
	}

	snap, err := room.Join(participantID)
	if err != nil {
		return Snapshot{}, err
	}
	m.members[participantID] = roomID

	m.logger.Info("玩家加入房間",
		"room_id", roomID,
		"participant_id", participantID)

	return snap, nil
}

// Get 獲取房間
func (m *Registry) Get(roomID string) (*Room, error) {
	m.mu.RLock()
	room, ok := m.rooms[roomcode.Normalize(roomID)]
	m.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return room, nil
}

// RoomOf 玩家所在房間
func (m *Registry) RoomOf(participantID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roomID, ok := m.members[participantID]
	if !ok {
		return nil, false
	}
	room, ok := m.rooms[roomID]
	return room, ok
}

// RemoveRoom 移除並拆除房間，返回房間內的玩家；重複呼叫不報錯
func (m *Registry) RemoveRoom(ctx context.Context, roomID string) []string {
	roomID = roomcode.Normalize(roomID)

	m.mu.Lock()
	room, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	participants := room.TearDown()
	delete(m.rooms, roomID)
	for _, id := range participants {
		if m.members[id] == roomID {
			delete(m.members, id)
		}
	}
	m.mu.Unlock()

	m.release(ctx, roomID)

	m.logger.Info("房間已移除",
		"room_id", roomID,
		"participants", len(participants))

	return participants
}

// Disconnect 玩家斷線，拆除其所在房間
//
// 返回房間 ID 以及需要通知的其他玩家；玩家不在任何房間時 ok 為 false。
func (m *Registry) Disconnect(ctx context.Context, participantID string) (roomID string, others []string, ok bool) {
	m.mu.RLock()
	roomID, ok = m.members[participantID]
	m.mu.RUnlock()
	if !ok {
		return "", nil, false
	}

	for _, id := range m.RemoveRoom(ctx, roomID) {
		if id != participantID {
			others = append(others, id)
		}
	}
	return roomID, others, true
}

// Stats 統計資訊
func (m *Registry) Stats() map[string]any {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	participants := len(m.members)
	m.mu.RUnlock()

	statusCount := make(map[Status]int)
	for _, room := range rooms {
		statusCount[room.Status()]++
	}

	return map[string]any{
		"total_rooms":        len(rooms),
		"total_participants": participants,
		"rooms_by_status":    statusCount,
	}
}

// Len 活躍房間數
func (m *Registry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *Registry) release(ctx context.Context, code string) {
	// 呼叫方的 ctx 可能已取消（例如連線關閉），釋放仍需完成
	if err := m.store.Release(context.WithoutCancel(ctx), code); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("釋放房間碼失敗", "room_id", code, "error", err)
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
