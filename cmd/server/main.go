package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/koopa0/pong-arena/internal/config"
	"github.com/koopa0/pong-arena/internal/events"
	"github.com/koopa0/pong-arena/internal/handler"
	"github.com/koopa0/pong-arena/internal/relay"
	"github.com/koopa0/pong-arena/internal/session"
	"github.com/koopa0/pong-arena/internal/storage"
	"github.com/koopa0/pong-arena/internal/transport"
	"github.com/koopa0/pong-arena/pkg/logger"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "", "YAML 配置檔路徑")
		envFile    = flag.String("env-file", ".env", ".env 檔路徑")
		port       = flag.Int("port", 0, "服務器端口（覆蓋配置）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	log, closer := logger.New(cfg.Log)
	defer closer.Close()

	if err := run(cfg, log); err != nil {
		log.Error("服務器異常退出", "error", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, err := openPublisher(cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	registry := session.NewRegistry(store, logger, session.WithWinningScore(cfg.Game.WinningScore))
	hub := transport.NewHub(logger)
	dispatcher := relay.NewDispatcher(registry, hub, publisher, logger, relay.WithRateLimit(cfg.RateLimit))

	ws := transport.NewWebSocketServer(hub, dispatcher, cfg.Transport, logger)
	poll := transport.NewPollServer(hub, dispatcher, cfg.Transport, logger)
	api := handler.NewHandler(registry, hub, logger)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", api.Routes())
	mux.Handle("GET /ws", ws)
	poll.Routes(mux)

	// 端口無法使用時直接退出，不以降級狀態運行
	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("監聽 %s: %w", cfg.Server.Addr(), err)
	}

	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("遊戲服務器啟動",
			"addr", ln.Addr().String(),
			"log_level", cfg.Log.Level,
			"winning_score", cfg.Game.WinningScore,
			"redis", cfg.Redis.Enabled,
			"nats", cfg.NATS.Enabled)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服務器運行失敗: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("收到關閉信號，開始優雅關閉...")

		// 優雅關閉
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 停止接受新連接
		err := server.Shutdown(shutdownCtx)

		// 關閉 polling 會話與 WebSocket 連接，等待房間拆除完成後才關閉 publisher
		poll.Stop()
		if stopErr := hub.Stop(shutdownCtx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("等待連接關閉: %w", stopErr))
		}

		logger.Info("服務器已關閉", "rooms", registry.Len())
		return err
	})

	return g.Wait()
}

// openStore 啟用 Redis 時以 Redis 預留房間碼，否則使用進程內存儲
func openStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (storage.CodeStore, func(), error) {
	if !cfg.Enabled {
		return storage.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("連接 Redis %s: %w", cfg.Addr, err)
	}

	logger.Info("房間碼預留使用 Redis", "addr", cfg.Addr, "ttl", cfg.TTL)
	return storage.NewRedisStore(client, cfg.TTL), func() { client.Close() }, nil
}

// openPublisher 啟用 NATS 時發布房間事件，否則不發布
func openPublisher(cfg config.NATSConfig, logger *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.Nop{}, nil
	}

	pub, err := events.NewNATSPublisher(events.NATSConfig{
		URL:           cfg.URL,
		SubjectPrefix: cfg.SubjectPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("房間事件發布到 NATS", "url", cfg.URL, "prefix", cfg.SubjectPrefix)
	return pub, nil
}
