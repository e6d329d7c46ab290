package session

import (
	"slices"
	"sync"
	"time"

	"github.com/koopa0/pong-arena/internal/game"
	apperrors "github.com/koopa0/pong-arena/pkg/errors"
)

// Status 房間狀態
type Status string

const (
	StatusEmpty            Status = "empty"
	StatusAwaitingOpponent Status = "awaiting_opponent"
	StatusLobby            Status = "lobby"
	StatusStarting         Status = "starting"
	StatusPlaying          Status = "playing"
	StatusRoundReset       Status = "round_reset"
	StatusTornDown         Status = "torn_down"
)

const (
	// MaxParticipants 每個房間的玩家上限
	MaxParticipants = 2
	// DefaultWinningScore 先得 11 分者獲勝
	DefaultWinningScore = 11
)

// Participant 房間中的玩家，Slot 即角色（Host / Guest）
type Participant struct {
	ID   string    `json:"id"`
	Slot game.Slot `json:"slot"`
}

// Role 角色名稱
func (p Participant) Role() string {
	return p.Slot.String()
}

// Room 雙人房間
//
// 房間狀態機：
//
//	Empty → AwaitingOpponent → Lobby → Starting → Playing ⇄ RoundReset
//	任何狀態 → TornDown（斷線，終止狀態）
//
// 所有修改都在 mu 內進行；兩位玩家的處理器會並發呼叫同一個房間。
type Room struct {
	ID           string
	CreatedAt    time.Time
	winningScore int

	mu           sync.Mutex
	participants []Participant
	state        game.State
	status       Status
	active       bool
	ready        map[string]struct{}
	// 開始遊戲後的第一次全員準備會清空比分
	resetScore bool
}

// NewRoom 創建空房間，winningScore <= 0 表示不限分數
func NewRoom(id string, winningScore int) *Room {
	return &Room{
		ID:           id,
		CreatedAt:    time.Now(),
		winningScore: winningScore,
		state:        game.NewState(),
		status:       StatusEmpty,
		ready:        make(map[string]struct{}),
	}
}

// Snapshot 房間狀態副本
type Snapshot struct {
	ID           string        `json:"room_id"`
	Participants []Participant `json:"participants"`
	State        game.State    `json:"state"`
	Status       Status        `json:"status"`
	Active       bool          `json:"active"`
	Ready        []string      `json:"ready"`
}

// ParticipantIDs 依位置排列的玩家 ID
func (s Snapshot) ParticipantIDs() []string {
	ids := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		ids[i] = p.ID
	}
	return ids
}

// Snapshot 取得房間狀態副本
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	ready := make([]string, 0, len(r.ready))
	for _, p := range r.participants {
		if _, ok := r.ready[p.ID]; ok {
			ready = append(ready, p.ID)
		}
	}
	return Snapshot{
		ID:           r.ID,
		Participants: slices.Clone(r.participants),
		State:        r.state,
		Status:       r.status,
		Active:       r.active,
		Ready:        ready,
	}
}

// Status 當前狀態
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// slotOf 查找玩家位置
func (r *Room) slotOf(participantID string) (game.Slot, bool) {
	for _, p := range r.participants {
		if p.ID == participantID {
			return p.Slot, true
		}
	}
	return 0, false
}

// Join 加入房間，第一位玩家為房主
func (r *Room) Join(participantID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusTornDown {
		return Snapshot{}, apperrors.ErrRoomNotFound
	}
	if _, ok := r.slotOf(participantID); ok {
		return Snapshot{}, apperrors.ErrAlreadyInRoom
	}
	if len(r.participants) >= MaxParticipants {
		return Snapshot{}, apperrors.ErrRoomFull
	}

	r.participants = append(r.participants, Participant{
		ID:   participantID,
		Slot: game.Slot(len(r.participants)),
	})

	if len(r.participants) == MaxParticipants {
		// 兩支球拍各自在自己的底線置中
		r.state.Paddles = [2]game.Paddle{}
		r.status = StatusLobby
	} else {
		r.status = StatusAwaitingOpponent
	}

	return r.snapshotLocked(), nil
}

// Start 房主開始遊戲
//
// 失敗時不修改房間狀態。
func (r *Room) Start(participantID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusTornDown {
		return Snapshot{}, apperrors.ErrRoomNotFound
	}
	slot, ok := r.slotOf(participantID)
	if !ok {
		return Snapshot{}, apperrors.ErrNotInRoom
	}
	if slot != game.Host {
		return Snapshot{}, apperrors.ErrUnauthorized
	}
	if len(r.participants) < MaxParticipants {
		return Snapshot{}, apperrors.ErrNotReady
	}

	r.active = true
	r.status = StatusStarting
	r.resetScore = true
	clear(r.ready)

	return r.snapshotLocked(), nil
}

// ReadyResult 準備信號的結果
type ReadyResult struct {
	// AllReady 本次信號使全員準備完畢
	AllReady bool
	Snapshot Snapshot
}

// Ready 玩家準備
//
// 全員準備後重置為回合開始的佈局並進入 Playing。
// Playing 中的重複信號會被忽略。
func (r *Room) Ready(participantID string) (ReadyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusTornDown {
		return ReadyResult{}, apperrors.ErrRoomNotFound
	}
	if _, ok := r.slotOf(participantID); !ok {
		return ReadyResult{}, apperrors.ErrNotInRoom
	}
	if !r.active {
		return ReadyResult{}, apperrors.ErrGameNotStarted
	}
	if r.status == StatusPlaying {
		return ReadyResult{Snapshot: r.snapshotLocked()}, nil
	}

	r.ready[participantID] = struct{}{}
	if len(r.ready) < len(r.participants) {
		return ReadyResult{Snapshot: r.snapshotLocked()}, nil
	}

	if r.resetScore {
		r.state.ResetMatch()
		r.resetScore = false
	} else {
		r.state.ResetRound()
	}
	r.status = StatusPlaying

	return ReadyResult{AllReady: true, Snapshot: r.snapshotLocked()}, nil
}

// MovePaddle 更新發送者的球拍，返回需要轉發的對手 ID
//
// 發送者不在房間時靜默丟棄（返回空字串）。
func (r *Room) MovePaddle(participantID string, paddle game.Paddle) (string, game.Paddle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusTornDown {
		return "", game.Paddle{}, apperrors.ErrRoomNotFound
	}
	slot, ok := r.slotOf(participantID)
	if !ok {
		return "", game.Paddle{}, nil
	}

	paddle.X = game.ClampPaddleX(paddle.X)
	if !isFinite(paddle.Velocity) {
		paddle.Velocity = 0
	}
	r.state.Paddles[slot] = paddle

	return r.opponentLocked(slot), paddle, nil
}

// ApplyBall 房主的球狀態，返回需要轉發的客人 ID
//
// 非房主、房間未開始或數值無效時靜默忽略。
func (r *Room) ApplyBall(participantID string, ball game.Ball) (string, game.Ball, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusTornDown {
		return "", game.Ball{}, apperrors.ErrRoomNotFound
	}
	slot, ok := r.slotOf(participantID)
	if !ok || slot != game.Host || !r.active {
		return "", game.Ball{}, nil
	}
	clean, ok := ball.Sanitize()
	if !ok {
		return "", game.Ball{}, nil
	}

	r.state.Ball = clean
	return r.opponentLocked(slot), clean, nil
}

// ScoreResult 比分更新的結果
type ScoreResult struct {
	// Accepted 為 false 表示被靜默忽略
	Accepted     bool
	Score        game.Score
	Participants []string
	GameOver     bool
	Winner       game.Slot
}

// ApplyScore 房主的比分
//
// 比分必須單調不減且至少一方增加，否則忽略。接受後進入 RoundReset，
// 雙方需重新準備；達到勝利分數時比賽結束並回到 Lobby。
func (r *Room) ApplyScore(participantID string, score game.Score) (ScoreResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusTornDown {
		return ScoreResult{}, apperrors.ErrRoomNotFound
	}
	slot, ok := r.slotOf(participantID)
	if !ok || slot != game.Host || !r.active {
		return ScoreResult{}, nil
	}

	cur := r.state.Score
	if score[0] < cur[0] || score[1] < cur[1] || score == cur {
		return ScoreResult{}, nil
	}

	r.state.Score = score
	r.state.ResetRound()
	clear(r.ready)
	r.status = StatusRoundReset

	res := ScoreResult{
		Accepted:     true,
		Score:        score,
		Participants: r.idsLocked(),
	}

	if r.winningScore > 0 {
		for _, s := range []game.Slot{game.Host, game.Guest} {
			if score[s] >= r.winningScore {
				res.GameOver = true
				res.Winner = s
				r.active = false
				r.status = StatusLobby
				break
			}
		}
	}
	return res, nil
}

// TearDown 拆除房間，返回所有玩家 ID；重複呼叫返回 nil
func (r *Room) TearDown() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusTornDown {
		return nil
	}
	r.status = StatusTornDown
	r.active = false
	clear(r.ready)
	return r.idsLocked()
}

func (r *Room) opponentLocked(slot game.Slot) string {
	for _, p := range r.participants {
		if p.Slot != slot {
			return p.ID
		}
	}
	return ""
}

func (r *Room) idsLocked() []string {
	ids := make([]string, len(r.participants))
	for i, p := range r.participants {
		ids[i] = p.ID
	}
	return ids
}
