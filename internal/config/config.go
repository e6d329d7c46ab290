// Package config 載入伺服器配置
//
// 優先順序（後者覆蓋前者）：
//
//	預設值 → YAML 檔 → .env 檔 → PONG_* 環境變數
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/koopa0/pong-arena/internal/relay"
	"github.com/koopa0/pong-arena/internal/session"
	"github.com/koopa0/pong-arena/internal/transport"
	"github.com/koopa0/pong-arena/pkg/logger"
)

// Config 伺服器配置
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Log       logger.Config    `yaml:"log"`
	Transport transport.Config `yaml:"transport"`
	RateLimit relay.RateLimit  `yaml:"rate_limit"`
	Redis     RedisConfig      `yaml:"redis"`
	NATS      NATSConfig       `yaml:"nats"`
	Game      GameConfig       `yaml:"game"`
}

// ServerConfig HTTP 伺服器
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr 監聽地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// RedisConfig 房間代碼保留
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// NATSConfig 房間事件發佈
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// GameConfig 比賽規則
type GameConfig struct {
	WinningScore int `yaml:"winning_score"`
}

// Default 預設配置
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Transport: transport.DefaultConfig(),
		RateLimit: relay.DefaultRateLimit(),
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "pong.rooms",
		},
		Game: GameConfig{
			WinningScore: session.DefaultWinningScore,
		},
	}
}

// Load 載入配置
//
// path 為空時跳過 YAML；envFile 不存在時忽略。
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("讀取配置檔: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("解析配置檔: %w", err)
		}
	}

	if envFile != "" {
		// godotenv.Load 不覆蓋已存在的環境變數
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("載入 %s: %w", envFile, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv 以 PONG_* 環境變數覆蓋
func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	integer64 := func(key string, dst *int64) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	integer("PONG_PORT", &cfg.Server.Port)
	duration("PONG_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("PONG_LOG_LEVEL", &cfg.Log.Level)
	str("PONG_LOG_FORMAT", &cfg.Log.Format)
	str("PONG_LOG_OUTPUT", &cfg.Log.Output)

	if v, ok := lookup("PONG_ALLOWED_ORIGINS"); ok {
		cfg.Transport.AllowedOrigins = splitList(v)
	}

	integer64("PONG_RATE_STREAM_CAPACITY", &cfg.RateLimit.StreamCapacity)
	integer64("PONG_RATE_STREAM_REFILL", &cfg.RateLimit.StreamRefill)
	integer64("PONG_RATE_REQUEST_CAPACITY", &cfg.RateLimit.RequestCapacity)
	integer64("PONG_RATE_REQUEST_REFILL", &cfg.RateLimit.RequestRefill)

	boolean("PONG_REDIS_ENABLED", &cfg.Redis.Enabled)
	str("PONG_REDIS_ADDR", &cfg.Redis.Addr)
	str("PONG_REDIS_PASSWORD", &cfg.Redis.Password)
	integer("PONG_REDIS_DB", &cfg.Redis.DB)
	duration("PONG_REDIS_TTL", &cfg.Redis.TTL)

	boolean("PONG_NATS_ENABLED", &cfg.NATS.Enabled)
	str("PONG_NATS_URL", &cfg.NATS.URL)
	str("PONG_NATS_SUBJECT_PREFIX", &cfg.NATS.SubjectPrefix)

	integer("PONG_WINNING_SCORE", &cfg.Game.WinningScore)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate 檢查配置
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout 必須大於 0"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level 無效: %q", c.Log.Level))
	}
	if c.Game.WinningScore < 0 {
		errs = append(errs, fmt.Errorf("game.winning_score 不可為負: %d", c.Game.WinningScore))
	}
	// 0 表示使用預設值
	for name, v := range map[string]int64{
		"stream_capacity":  c.RateLimit.StreamCapacity,
		"stream_refill":    c.RateLimit.StreamRefill,
		"request_capacity": c.RateLimit.RequestCapacity,
		"request_refill":   c.RateLimit.RequestRefill,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s 不可為負: %d", name, v))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr 未設定"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url 未設定"))
	}

	return errors.Join(errs...)
}
