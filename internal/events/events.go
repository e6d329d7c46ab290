// Package events 發布房間生命週期事件
//
// 事件只用於旁路觀察（統計、稽核），中繼流程不依賴發布結果；
// 發布失敗只記錄日誌。
package events

import (
	"context"
	"sync"
	"time"
)

// Type 事件類型
type Type string

const (
	RoomCreated  Type = "created"
	PlayerJoined Type = "joined"
	GameStarted  Type = "started"
	RoundScored  Type = "scored"
	GameOver     Type = "game-over"
	RoomTornDown Type = "torn-down"
)

// RoomEvent 房間事件
type RoomEvent struct {
	Type          Type      `json:"type"`
	RoomID        string    `json:"room_id"`
	ParticipantID string    `json:"participant_id,omitempty"`
	Score         *[2]int   `json:"score,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher 事件發布接口
type Publisher interface {
	Publish(ctx context.Context, ev RoomEvent) error
	Close() error
}

// Nop 不發布任何事件
type Nop struct{}

// Publish 實現 Publisher
func (Nop) Publish(context.Context, RoomEvent) error { return nil }

// Close 實現 Publisher
func (Nop) Close() error { return nil }

// Recorder 在記憶體中記錄事件，測試與除錯用
type Recorder struct {
	mu     sync.Mutex
	events []RoomEvent
}

// Publish 實現 Publisher
func (r *Recorder) Publish(_ context.Context, ev RoomEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Close 實現 Publisher
func (r *Recorder) Close() error { return nil }

// Events 已記錄事件的副本
func (r *Recorder) Events() []RoomEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoomEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types 已記錄事件的類型序列
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
