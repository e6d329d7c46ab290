package game

import (
	"math"
	"time"
)

// 系統設計問題：
//   高速小球如何避免穿過薄球拍（tunneling）？
//
// 設計方案：
//   1. 限制單幀時間（MaxFrameDelta），卡頓後不會一次跳太遠
//   2. 每幀切成 N 個子步，每步位移不超過 SubStepFraction 個球半徑
//   3. 每個子步用「線段對 AABB」掃掠測試，而不是只看端點是否重疊
//   4. 碰撞後推出球拍並進入冷卻，避免同一次碰撞被判兩次

// EventKind 物理事件類型
type EventKind int

const (
	EventWallHit EventKind = iota + 1
	EventPaddleHit
	EventScored
)

// String 事件名稱
func (k EventKind) String() string {
	switch k {
	case EventWallHit:
		return "wall-hit"
	case EventPaddleHit:
		return "paddle-hit"
	case EventScored:
		return "scored"
	default:
		return "unknown"
	}
}

// Event 物理事件
//
// EventPaddleHit 的 Slot 是被擊中的球拍，EventScored 的 Slot 是得分方。
type Event struct {
	Kind EventKind
	Slot Slot
}

// Collision 是否為碰撞事件（需要立即同步）
func (e Event) Collision() bool {
	return e.Kind == EventWallHit || e.Kind == EventPaddleHit
}

// Engine 房主端物理引擎
//
// Engine 不是並發安全的，只在房主的單一遊戲循環中使用。
type Engine struct {
	jitter   Jitter
	cooldown time.Duration
	halted   bool
}

// NewEngine 創建物理引擎，jitter 為 nil 時不加擾動
func NewEngine(jitter Jitter) *Engine {
	if jitter == nil {
		jitter = NoJitter
	}
	return &Engine{jitter: jitter}
}

// Halted 得分後到下一次 Reset 之前為 true
func (e *Engine) Halted() bool {
	return e.halted
}

// Reset 回合重置，保留比分
func (e *Engine) Reset(s *State) {
	s.ResetRound()
	e.halted = false
	e.cooldown = 0
}

// Serve 發球，朝 towards 那一方
func (e *Engine) Serve(s *State, towards Slot) {
	angle := e.jitter.Next() * MaxServeAngle
	sign := 1.0
	if towards == Host {
		sign = -1
	}
	s.Ball.Position = Vec3{Y: BallRadius}
	s.Ball.Direction = Vec3{X: math.Sin(angle), Z: sign * math.Cos(angle)}
	s.Ball.Speed = BaseSpeed
	s.Ball.Serving = false
	e.halted = false
	e.cooldown = 0
}

// SubSteps 計算子步數，保證每步位移不超過 SubStepFraction 個球半徑（上限 MaxSubSteps）
func SubSteps(speed float64, dt time.Duration) int {
	dist := speed * dt.Seconds()
	n := int(math.Ceil(dist / (SubStepFraction * BallRadius)))
	if n < 1 {
		return 1
	}
	if n > MaxSubSteps {
		return MaxSubSteps
	}
	return n
}

// Step 推進一幀
func (e *Engine) Step(s *State, dt time.Duration) []Event {
	if e.halted || s.Ball.Serving || dt <= 0 {
		return nil
	}
	if dt > MaxFrameDelta {
		dt = MaxFrameDelta
	}

	n := SubSteps(s.Ball.Speed, dt)
	h := dt / time.Duration(n)

	var events []Event
	for i := 0; i < n; i++ {
		if e.cooldown > 0 {
			e.cooldown = max(0, e.cooldown-h)
		}

		prev := s.Ball.Position
		next := prev.Add(s.Ball.Direction.Scale(s.Ball.Speed * h.Seconds()))
		next.Y = BallRadius

		// 牆壁優先，撞牆後本子步不再檢查球拍
		if e.wall(s, next) {
			events = append(events, Event{Kind: EventWallHit})
			continue
		}

		if e.cooldown == 0 {
			if slot, ok := e.paddle(s, prev, next); ok {
				events = append(events, Event{Kind: EventPaddleHit, Slot: slot})
				continue
			}
		}

		s.Ball.Position = next

		if scorer, ok := scoredBy(next.Z); ok {
			s.Score[scorer]++
			e.halted = true
			events = append(events, Event{Kind: EventScored, Slot: scorer})
			return events
		}
	}
	return events
}

// wall 側牆碰撞：反射 x 分量並減速
func (e *Engine) wall(s *State, next Vec3) bool {
	limit := CourtWidth/2 - BallRadius
	b := &s.Ball
	switch {
	case next.X > limit && b.Direction.X > 0:
		next.X = limit
		b.Direction.X = -b.Direction.X
	case next.X < -limit && b.Direction.X < 0:
		next.X = -limit
		b.Direction.X = -b.Direction.X
	default:
		return false
	}
	b.Position = next
	b.Speed = max(BaseSpeed, b.Speed*WallDamping)
	b.Direction = unit(b.Direction)
	return true
}

// paddle 掃掠測試球正在前往的那支球拍
func (e *Engine) paddle(s *State, prev, next Vec3) (Slot, bool) {
	slot := Guest
	if s.Ball.Direction.Z < 0 {
		slot = Host
	}
	p := s.Paddles[slot]
	z := PaddleZ(slot)

	// Minkowski 擴張：球縮成一點，盒子各邊加上球半徑
	halfX := PaddleHalfWidth + BallRadius
	halfZ := PaddleHalfDepth + BallRadius
	t, ok := sweep(prev, next, p.X-halfX, p.X+halfX, z-halfZ, z+halfZ)
	if !ok {
		return 0, false
	}

	hit := prev.Add(next.Sub(prev).Scale(t))

	// 已經越過球拍中心的球不再反彈
	if (slot == Guest && hit.Z > z) || (slot == Host && hit.Z < z) {
		return 0, false
	}
	offset := clamp((hit.X-p.X)/halfX, -1, 1)

	angle := offset*MaxBounceAngle +
		p.Velocity*PaddleVelocityInfluence +
		e.jitter.Next()*JitterAngle
	angle = clamp(angle, -MaxBounceAngle, MaxBounceAngle)

	// 反彈方向遠離該球拍
	sign := 1.0
	pushZ := z + halfZ + pushOutEpsilon
	if slot == Guest {
		sign = -1
		pushZ = z - halfZ - pushOutEpsilon
	}

	b := &s.Ball
	b.Direction = unit(Vec3{X: math.Sin(angle), Z: sign * math.Cos(angle)})
	b.Speed = min(MaxSpeed, b.Speed*SpeedBoost)
	b.Position = Vec3{X: hit.X, Y: BallRadius, Z: pushZ}
	e.cooldown = CollisionCooldown
	return slot, true
}

// sweep 線段 p0→p1 與 x/z 平面 AABB 的 slab 測試
//
// 返回進入參數 t ∈ [0,1]；起點已在盒內時 t = 0。
func sweep(p0, p1 Vec3, minX, maxX, minZ, maxZ float64) (float64, bool) {
	tmin, tmax := 0.0, 1.0
	d := p1.Sub(p0)

	axes := [2]struct{ p, d, lo, hi float64 }{
		{p0.X, d.X, minX, maxX},
		{p0.Z, d.Z, minZ, maxZ},
	}
	for _, a := range axes {
		if math.Abs(a.d) < 1e-12 {
			if a.p < a.lo || a.p > a.hi {
				return 0, false
			}
			continue
		}
		t1 := (a.lo - a.p) / a.d
		t2 := (a.hi - a.p) / a.d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// scoredBy 球越過底線超過一個球半徑時返回得分方
func scoredBy(z float64) (Slot, bool) {
	line := CourtLength/2 + BallRadius
	switch {
	case z > line:
		return Host, true
	case z < -line:
		return Guest, true
	default:
		return 0, false
	}
}

func unit(v Vec3) Vec3 {
	if u, ok := v.Normalize(); ok {
		return u
	}
	return Vec3{Z: 1}
}
