package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/pong-arena/internal/client"
	"github.com/koopa0/pong-arena/internal/game"
	"github.com/koopa0/pong-arena/pkg/logger"
)

// 追蹤 AI 的球拍最大速度（單位/秒）
const paddleSpeed = 14.0

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/ws", "服務器 WebSocket 地址")
		room      = flag.String("room", "", "要加入的房間碼，空白則建立房間")
		seed      = flag.Uint64("seed", uint64(time.Now().UnixNano()), "擾動亂數種子")
		logLevel  = flag.String("log-level", "info", "日誌級別 (debug, info, warn, error)")
		logFormat = flag.String("log-format", "text", "日誌格式 (text, json)")
	)
	flag.Parse()

	log, closer := logger.New(logger.Config{Level: *logLevel, Format: *logFormat})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *url, *room, *seed, log); err != nil {
		log.Error("機器人異常退出", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, url, room string, seed uint64, logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := client.Dial(dialCtx, url, logger)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	player := client.NewPlayer(conn, game.NewRandJitter(seed), client.DefaultServeDelay, logger)

	if room == "" {
		err = player.CreateRoom()
	} else {
		err = player.JoinRoom(room)
	}
	if err != nil {
		return err
	}

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	var (
		paddle  game.Paddle
		last    = time.Now()
		started bool
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info("收到中斷信號，離開")
			return nil

		case env, ok := <-conn.Events():
			if !ok {
				return fmt.Errorf("與服務器的連接已關閉")
			}
			if err := player.Handle(env); err != nil {
				logger.Warn("處理服務器消息失敗", "error", err)
			}

		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			switch player.Phase() {
			case client.PhaseLobby:
				// 建立房間的一方負責開始遊戲
				if room == "" && !started {
					if err := player.StartGame(); err != nil {
						return err
					}
					started = true
				}
			case client.PhasePlaying:
				paddle = track(paddle, player.Ball().Position.X, dt)
				if err := player.Tick(now, dt, paddle); err != nil {
					return err
				}
			case client.PhaseOver:
				result := player.Result()
				logger.Info("比賽結束", "winner", game.Slot(result.Winner).String(), "score", result.Score)
				return nil
			case client.PhaseDisconnected:
				logger.Info("對手已離開")
				return nil
			}
		}
	}
}

// track 以有限速度把球拍移向球的 x 座標
func track(p game.Paddle, target float64, dt time.Duration) game.Paddle {
	step := paddleSpeed * dt.Seconds()
	delta := target - p.X
	if math.Abs(delta) > step {
		delta = math.Copysign(step, delta)
	}

	x := game.ClampPaddleX(p.X + delta)
	v := 0.0
	if dt > 0 {
		v = (x - p.X) / dt.Seconds()
	}
	return game.Paddle{X: x, Velocity: v}
}
