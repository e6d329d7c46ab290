package game

import (
	"math"
	"time"
)

// 球場幾何
//
// 球場中心為原點，x 為寬度方向，z 為長度方向。
// 房主（slot 0）防守 z < 0 的底線，客人（slot 1）防守 z > 0 的底線。
const (
	CourtWidth      = 20.0
	CourtLength     = 30.0
	BallRadius      = 0.5
	PaddleHalfWidth = 2.0
	PaddleHalfDepth = 0.25

	// PaddleInset 球拍離底線的距離
	PaddleInset = 1.0
)

// 物理參數
const (
	BaseSpeed   = 12.0
	MaxSpeed    = 30.0
	SpeedBoost  = 1.08
	WallDamping = 0.98

	MaxBounceAngle = 60 * math.Pi / 180
	JitterAngle    = 3 * math.Pi / 180
	MaxServeAngle  = 20 * math.Pi / 180

	// PaddleVelocityInfluence 每單位球拍速度帶來的額外角度（弧度）
	PaddleVelocityInfluence = 0.02

	// SubStepFraction 每個子步最多移動的球半徑比例
	SubStepFraction = 0.25
	MaxSubSteps     = 16

	MaxFrameDelta     = 50 * time.Millisecond
	CollisionCooldown = 100 * time.Millisecond

	pushOutEpsilon = 0.01
)

// Slot 玩家位置，同時代表角色
type Slot int

const (
	Host  Slot = 0
	Guest Slot = 1
)

// String 角色名稱
func (s Slot) String() string {
	switch s {
	case Host:
		return "host"
	case Guest:
		return "guest"
	default:
		return "unknown"
	}
}

// Opponent 對手位置
func (s Slot) Opponent() Slot {
	return 1 - s
}

// PaddleZ 該位置球拍的 z 座標
func PaddleZ(s Slot) float64 {
	z := CourtLength/2 - PaddleInset
	if s == Host {
		return -z
	}
	return z
}

// PaddleLimit 球拍中心 x 的絕對值上限
const PaddleLimit = CourtWidth/2 - PaddleHalfWidth

// ClampPaddleX 將球拍 x 限制在球場內；非有限值歸零
func ClampPaddleX(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return clamp(x, -PaddleLimit, PaddleLimit)
}

// Ball 球的狀態
type Ball struct {
	Position  Vec3    `json:"position"`
	Direction Vec3    `json:"direction"`
	Speed     float64 `json:"speed"`
	// Serving 為 true 時球停在中心等待發球
	Serving bool `json:"serving"`
}

// Velocity 速度向量
func (b Ball) Velocity() Vec3 {
	if b.Serving {
		return Vec3{}
	}
	return b.Direction.Scale(b.Speed)
}

// CenteredBall 回合開始時的球
func CenteredBall() Ball {
	return Ball{
		Position:  Vec3{Y: BallRadius},
		Direction: Vec3{Z: 1},
		Speed:     BaseSpeed,
		Serving:   true,
	}
}

// Sanitize 校正外部傳入的球狀態
//
// 非有限值或零方向返回 false；方向會被單位化，速度限制在
// [BaseSpeed, MaxSpeed]，x 限制在牆內，y 固定為球半徑。
func (b Ball) Sanitize() (Ball, bool) {
	if !b.Position.IsFinite() || !b.Direction.IsFinite() || !isFinite(b.Speed) {
		return Ball{}, false
	}
	dir, ok := Vec3{X: b.Direction.X, Z: b.Direction.Z}.Normalize()
	if !ok {
		return Ball{}, false
	}
	b.Direction = dir
	b.Speed = clamp(b.Speed, BaseSpeed, MaxSpeed)
	b.Position.X = clamp(b.Position.X, -(CourtWidth/2 - BallRadius), CourtWidth/2-BallRadius)
	b.Position.Y = BallRadius
	return b, true
}

// Paddle 球拍狀態，z 由位置決定
type Paddle struct {
	X float64 `json:"x"`
	// Velocity 平滑後的 x 方向速度，可為 0
	Velocity float64 `json:"vx"`
}

// Score 比分，索引為 Slot
type Score [2]int

// State 一場比賽的完整狀態
type State struct {
	Ball    Ball      `json:"ball"`
	Paddles [2]Paddle `json:"paddles"`
	Score   Score     `json:"score"`
}

// NewState 開局狀態
func NewState() State {
	return State{Ball: CenteredBall()}
}

// ResetRound 回合重置：球回中心、球拍置中，保留比分
func (s *State) ResetRound() {
	s.Ball = CenteredBall()
	s.Paddles = [2]Paddle{}
}

// ResetMatch 比賽重置：同 ResetRound 並清空比分
func (s *State) ResetMatch() {
	s.ResetRound()
	s.Score = Score{}
}
