package client

import (
	"sync"
	"time"

	"github.com/koopa0/pong-arena/internal/game"
)

// Playback 客人端的狀態播放
//
// 收到 ball-sync 時直接覆蓋本地球狀態，並向前預測一幀以抵銷延遲。
type Playback struct {
	frame time.Duration

	mu       sync.Mutex
	ball     game.Ball
	opponent game.Paddle
	score    game.Score
}

// NewPlayback 創建播放器，frame <= 0 時使用球同步間隔
func NewPlayback(frame time.Duration) *Playback {
	if frame <= 0 {
		frame = ballInterval
	}
	return &Playback{
		frame: frame,
		ball:  game.CenteredBall(),
	}
}

// ApplyBall 套用房主的球狀態，無效值忽略
func (p *Playback) ApplyBall(b game.Ball) bool {
	b, ok := b.Sanitize()
	if !ok {
		return false
	}

	if !b.Serving {
		limit := game.CourtWidth/2 - game.BallRadius
		next := b.Position.Add(b.Velocity().Scale(p.frame.Seconds()))
		next.X = min(max(next.X, -limit), limit)
		next.Y = game.BallRadius
		b.Position = next
	}

	p.mu.Lock()
	p.ball = b
	p.mu.Unlock()
	return true
}

// Ball 目前顯示的球
func (p *Playback) Ball() game.Ball {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ball
}

// ApplyOpponent 套用對手球拍
func (p *Playback) ApplyOpponent(paddle game.Paddle) {
	paddle.X = game.ClampPaddleX(paddle.X)

	p.mu.Lock()
	p.opponent = paddle
	p.mu.Unlock()
}

// Opponent 對手球拍
func (p *Playback) Opponent() game.Paddle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opponent
}

// ApplyScore 套用比分
func (p *Playback) ApplyScore(s game.Score) {
	p.mu.Lock()
	p.score = s
	p.mu.Unlock()
}

// Score 目前比分
func (p *Playback) Score() game.Score {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

// Reset 回合或比賽重置
func (p *Playback) Reset(s game.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ball = s.Ball
	p.score = s.Score
	p.opponent = game.Paddle{}
}
