// Package protocol 定義客戶端與中繼伺服器之間的消息格式
//
// 每個消息都是一個信封 {"event": 名稱, "data": 負載}，
// 傳輸層（WebSocket 或 long-polling）只負責搬運信封。
package protocol

import (
	"encoding/json"

	"github.com/koopa0/pong-arena/internal/game"
)

// 客戶端 → 伺服器
const (
	EventCreateRoom  = "create-room"
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventStartGame   = "start-game"
	EventPaddleMove  = "paddle-move"
	EventBallUpdate  = "ball-update"
	EventScoreUpdate = "score-update"
	EventReady       = "ready"
	EventPing        = "ping"
)

// 伺服器 → 客戶端
const (
	EventRoomCreated        = "room-created"
	EventPlayerJoined       = "player-joined"
	EventGameStart          = "game-start"
	EventOpponentPaddleMove = "opponent-paddle-move"
	EventBallSync           = "ball-sync"
	EventScoreSync          = "score-sync"
	EventAllPlayersReady    = "all-players-ready"
	EventPlayerDisconnected = "player-disconnected"
	EventGameOver           = "game-over"
	EventError              = "error"
	EventPong               = "pong"
)

// 同步節奏
const (
	// BallSyncIntervalMs 穩定飛行時球狀態的最短發送間隔
	BallSyncIntervalMs = 16
	// PaddleResyncIntervalMs 球拍低頻重新同步間隔
	PaddleResyncIntervalMs = 500
)

// Envelope 消息信封
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomRef 只帶房間碼的請求（join-room、start-game、ready、leave-room）
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// RoomCreated room-created 負載
type RoomCreated struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
}

// PlayerJoined player-joined 負載
type PlayerJoined struct {
	RoomID       string     `json:"roomId"`
	Participants []string   `json:"participants"`
	State        game.State `json:"state"`
}

// GameStart game-start 負載，每位玩家收到自己的角色
type GameStart struct {
	RoomID       string     `json:"roomId"`
	State        game.State `json:"state"`
	Participants []string   `json:"participants"`
	IsHost       bool       `json:"isHost"`
	PlayerIndex  int        `json:"playerIndex"`
}

// PaddleMove paddle-move 負載
type PaddleMove struct {
	RoomID   string  `json:"roomId"`
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity,omitempty"`
}

// OpponentPaddleMove opponent-paddle-move 負載
type OpponentPaddleMove struct {
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity,omitempty"`
}

// BallUpdate ball-update 負載
type BallUpdate struct {
	RoomID    string    `json:"roomId"`
	BallState game.Ball `json:"ballState"`
}

// ScoreUpdate score-update 負載
type ScoreUpdate struct {
	RoomID string     `json:"roomId"`
	Score  game.Score `json:"score"`
}

// AllPlayersReady all-players-ready 負載
type AllPlayersReady struct {
	RoomID       string     `json:"roomId"`
	State        game.State `json:"state"`
	Participants []string   `json:"participants"`
}

// PlayerDisconnected player-disconnected 負載
type PlayerDisconnected struct {
	RoomID string `json:"roomId"`
}

// GameOver game-over 負載
type GameOver struct {
	RoomID string     `json:"roomId"`
	Winner int        `json:"winner"`
	Score  game.Score `json:"score"`
}

// Error error 負載
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pong pong 負載
type Pong struct {
	Time int64 `json:"time"`
}
