package game_test

import (
	"math"
	"testing"
	"time"

	"github.com/koopa0/pong-arena/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func movingBall(pos, dir game.Vec3, speed float64) game.Ball {
	d, _ := dir.Normalize()
	pos.Y = game.BallRadius
	return game.Ball{Position: pos, Direction: d, Speed: speed}
}

func countKind(events []game.Event, kind game.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// TestEngine_DirectionStaysUnit 長時間模擬後方向始終為單位向量
func TestEngine_DirectionStaysUnit(t *testing.T) {
	engine := game.NewEngine(game.NewRandJitter(42))
	state := game.NewState()
	engine.Serve(&state, game.Guest)

	var hits int
	for frame := 0; frame < 5000; frame++ {
		// 兩邊球拍追球，製造大量碰撞
		for _, slot := range []game.Slot{game.Host, game.Guest} {
			prev := state.Paddles[slot].X
			x := game.ClampPaddleX(state.Ball.Position.X + 0.7)
			state.Paddles[slot] = game.Paddle{X: x, Velocity: (x - prev) / 0.016}
		}

		events := engine.Step(&state, 16*time.Millisecond)
		hits += countKind(events, game.EventPaddleHit) + countKind(events, game.EventWallHit)

		require.InDelta(t, 1.0, state.Ball.Direction.Len(), 1e-9, "frame %d", frame)
		require.GreaterOrEqual(t, state.Ball.Speed, game.BaseSpeed)
		require.LessOrEqual(t, state.Ball.Speed, game.MaxSpeed)
		require.InDelta(t, game.BallRadius, state.Ball.Position.Y, eps)

		if engine.Halted() {
			engine.Reset(&state)
			engine.Serve(&state, game.Guest)
		}
	}
	assert.Greater(t, hits, 10)
}

func TestClampPaddleX(t *testing.T) {
	limit := game.CourtWidth/2 - game.PaddleHalfWidth

	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "inside", in: 3.5, want: 3.5},
		{name: "right edge", in: 100, want: limit},
		{name: "left edge", in: -100, want: -limit},
		{name: "NaN", in: math.NaN(), want: 0},
		{name: "Inf", in: math.Inf(1), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := game.ClampPaddleX(tt.in)
			assert.InDelta(t, tt.want, got, eps)
			assert.GreaterOrEqual(t, got, -limit)
			assert.LessOrEqual(t, got, limit)
		})
	}
}

func TestSubSteps(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		dt    time.Duration
		want  int
	}{
		{name: "base speed one frame", speed: game.BaseSpeed, dt: 16 * time.Millisecond, want: 2},
		{name: "max speed clamped frame", speed: game.MaxSpeed, dt: game.MaxFrameDelta, want: 12},
		{name: "stationary", speed: 0, dt: 16 * time.Millisecond, want: 1},
		{name: "capped", speed: 1000, dt: game.MaxFrameDelta, want: game.MaxSubSteps},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := game.SubSteps(tt.speed, tt.dt)
			assert.Equal(t, tt.want, n)
			if n < game.MaxSubSteps {
				assert.LessOrEqual(t, tt.speed*tt.dt.Seconds()/float64(n), game.SubStepFraction*game.BallRadius+eps)
			}
		})
	}
}

// TestEngine_PaddleBounceExactDirection 固定擾動序列下反彈方向可精確計算
func TestEngine_PaddleBounceExactDirection(t *testing.T) {
	tests := []struct {
		name      string
		ballX     float64
		paddle    game.Paddle
		jitter    []float64
		wantAngle float64
	}{
		{
			name:      "offset with jitter",
			ballX:     1,
			jitter:    []float64{0.5},
			wantAngle: 0.4*game.MaxBounceAngle + 0.5*game.JitterAngle,
		},
		{
			name:      "center hit no jitter",
			ballX:     0,
			wantAngle: 0,
		},
		{
			name:      "paddle velocity adds angle",
			ballX:     0,
			paddle:    game.Paddle{X: 0, Velocity: 5},
			wantAngle: 5 * game.PaddleVelocityInfluence,
		},
		{
			name:      "edge hit clamps to max angle",
			ballX:     -2.5,
			jitter:    []float64{-1},
			wantAngle: -game.MaxBounceAngle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := game.NewEngine(game.NewSequenceJitter(tt.jitter...))
			state := game.NewState()
			state.Paddles[game.Guest] = tt.paddle
			state.Ball = movingBall(game.Vec3{X: tt.ballX, Z: 13.2}, game.Vec3{Z: 1}, game.BaseSpeed)

			events := engine.Step(&state, 16*time.Millisecond)

			require.Equal(t, 1, countKind(events, game.EventPaddleHit))
			assert.Equal(t, game.Guest, events[0].Slot)
			assert.InDelta(t, math.Sin(tt.wantAngle), state.Ball.Direction.X, 1e-9)
			assert.InDelta(t, -math.Cos(tt.wantAngle), state.Ball.Direction.Z, 1e-9)
			assert.InDelta(t, game.BaseSpeed*game.SpeedBoost, state.Ball.Speed, 1e-9)
			// 推出後在球拍前方
			assert.Less(t, state.Ball.Position.Z, game.PaddleZ(game.Guest)-game.PaddleHalfDepth-game.BallRadius)
		})
	}
}

// TestEngine_FastBallDoesNotTunnel 最高速加上卡頓的幀仍然撞到球拍
func TestEngine_FastBallDoesNotTunnel(t *testing.T) {
	engine := game.NewEngine(nil)
	state := game.NewState()
	state.Ball = movingBall(game.Vec3{Z: 12.0}, game.Vec3{Z: 1}, game.MaxSpeed)

	events := engine.Step(&state, time.Second)

	require.Equal(t, 1, countKind(events, game.EventPaddleHit))
	assert.Zero(t, countKind(events, game.EventScored))
	assert.Less(t, state.Ball.Direction.Z, 0.0)
	assert.InDelta(t, game.MaxSpeed, state.Ball.Speed, eps, "speed is capped")
	assert.Zero(t, state.Score[game.Host])
}

func TestEngine_HostPaddle(t *testing.T) {
	engine := game.NewEngine(nil)
	state := game.NewState()
	state.Paddles[game.Host] = game.Paddle{X: -3}
	state.Ball = movingBall(game.Vec3{X: -3, Z: -13.2}, game.Vec3{Z: -1}, game.BaseSpeed)

	events := engine.Step(&state, 16*time.Millisecond)

	require.Len(t, events, 1)
	assert.Equal(t, game.Event{Kind: game.EventPaddleHit, Slot: game.Host}, events[0])
	assert.Greater(t, state.Ball.Direction.Z, 0.0)
}

func TestEngine_MissPassesPaddle(t *testing.T) {
	engine := game.NewEngine(nil)
	state := game.NewState()
	state.Paddles[game.Guest] = game.Paddle{X: -8}
	state.Ball = movingBall(game.Vec3{X: 5, Z: 13.2}, game.Vec3{Z: 1}, game.BaseSpeed)

	events := engine.Step(&state, 16*time.Millisecond)

	assert.Empty(t, events)
	assert.Greater(t, state.Ball.Position.Z, 13.2)
}

func TestEngine_WallBounce(t *testing.T) {
	tests := []struct {
		name      string
		pos       game.Vec3
		dir       game.Vec3
		speed     float64
		wantSpeed float64
	}{
		{
			name:      "right wall damps speed",
			pos:       game.Vec3{X: 9.45},
			dir:       game.Vec3{X: 1, Z: 1},
			speed:     20,
			wantSpeed: 20 * game.WallDamping,
		},
		{
			name:      "left wall floors at base speed",
			pos:       game.Vec3{X: -9.45},
			dir:       game.Vec3{X: -1, Z: 1},
			speed:     game.BaseSpeed,
			wantSpeed: game.BaseSpeed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := game.NewEngine(nil)
			state := game.NewState()
			state.Ball = movingBall(tt.pos, tt.dir, tt.speed)
			before := state.Ball.Direction

			events := engine.Step(&state, 16*time.Millisecond)

			require.GreaterOrEqual(t, countKind(events, game.EventWallHit), 1)
			assert.InDelta(t, -before.X, state.Ball.Direction.X, 1e-9)
			assert.InDelta(t, before.Z, state.Ball.Direction.Z, 1e-9)
			assert.InDelta(t, tt.wantSpeed, state.Ball.Speed, 1e-9)
			assert.LessOrEqual(t, math.Abs(state.Ball.Position.X), game.CourtWidth/2-game.BallRadius)
		})
	}
}

// TestEngine_ScoresExactlyOnce 越線只計一次分，直到重置前球不再移動
func TestEngine_ScoresExactlyOnce(t *testing.T) {
	tests := []struct {
		name   string
		z      float64
		dir    float64
		scorer game.Slot
	}{
		{name: "past guest baseline credits host", z: 15.4, dir: 1, scorer: game.Host},
		{name: "past host baseline credits guest", z: -15.4, dir: -1, scorer: game.Guest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := game.NewEngine(nil)
			state := game.NewState()
			state.Ball = movingBall(game.Vec3{X: 5, Z: tt.z}, game.Vec3{Z: tt.dir}, game.MaxSpeed)

			var scored int
			for i := 0; i < 20; i++ {
				events := engine.Step(&state, game.MaxFrameDelta)
				scored += countKind(events, game.EventScored)
			}

			assert.Equal(t, 1, scored)
			assert.Equal(t, 1, state.Score[tt.scorer])
			assert.Equal(t, 0, state.Score[tt.scorer.Opponent()])
			assert.True(t, engine.Halted())

			frozen := state.Ball.Position
			engine.Step(&state, 16*time.Millisecond)
			assert.Equal(t, frozen, state.Ball.Position)

			engine.Reset(&state)
			assert.False(t, engine.Halted())
			assert.Equal(t, 1, state.Score[tt.scorer], "reset keeps score")
			assert.True(t, state.Ball.Serving)
		})
	}
}

func TestEngine_ServingBallDoesNotMove(t *testing.T) {
	engine := game.NewEngine(nil)
	state := game.NewState()

	assert.Empty(t, engine.Step(&state, 16*time.Millisecond))
	assert.Equal(t, game.Vec3{Y: game.BallRadius}, state.Ball.Position)
}

func TestEngine_Serve(t *testing.T) {
	engine := game.NewEngine(nil)
	state := game.NewState()

	engine.Serve(&state, game.Host)
	assert.False(t, state.Ball.Serving)
	assert.InDelta(t, -1.0, state.Ball.Direction.Z, eps)
	assert.InDelta(t, game.BaseSpeed, state.Ball.Speed, eps)

	engine.Serve(&state, game.Guest)
	assert.InDelta(t, 1.0, state.Ball.Direction.Z, eps)
}

func TestBall_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       game.Ball
		ok       bool
		validate func(t *testing.T, b game.Ball)
	}{
		{
			name: "normalizes direction and clamps speed",
			in:   game.Ball{Position: game.Vec3{X: 1, Y: 7, Z: 2}, Direction: game.Vec3{X: 3, Z: 4}, Speed: 100},
			ok:   true,
			validate: func(t *testing.T, b game.Ball) {
				assert.InDelta(t, 0.6, b.Direction.X, eps)
				assert.InDelta(t, 0.8, b.Direction.Z, eps)
				assert.InDelta(t, game.MaxSpeed, b.Speed, eps)
				assert.InDelta(t, game.BallRadius, b.Position.Y, eps)
			},
		},
		{
			name: "raises slow speed",
			in:   game.Ball{Direction: game.Vec3{Z: 1}, Speed: 1},
			ok:   true,
			validate: func(t *testing.T, b game.Ball) {
				assert.InDelta(t, game.BaseSpeed, b.Speed, eps)
			},
		},
		{
			name: "rejects NaN",
			in:   game.Ball{Position: game.Vec3{X: math.NaN()}, Direction: game.Vec3{Z: 1}, Speed: 12},
		},
		{
			name: "rejects zero direction",
			in:   game.Ball{Speed: 12},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Sanitize()
			require.Equal(t, tt.ok, ok)
			if tt.validate != nil {
				tt.validate(t, got)
			}
		})
	}
}
