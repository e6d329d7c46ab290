package transport

import "time"

// Config 傳輸層配置
type Config struct {
	// WebSocket
	SendBuffer      int           `yaml:"send_buffer"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait"`
	WriteWait       time.Duration `yaml:"write_wait"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`

	// Long-polling
	PollWait     time.Duration `yaml:"poll_wait"`
	PollIdle     time.Duration `yaml:"poll_idle"`
	PollMaxQueue int           `yaml:"poll_max_queue"`
}

// DefaultConfig 預設配置
//
// Ping 54 秒、Pong 等待 60 秒：多數代理在 60 秒無流量時斷線。
func DefaultConfig() Config {
	return Config{
		SendBuffer:      256,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageBytes: 4096,
		PollWait:        25 * time.Second,
		PollIdle:        60 * time.Second,
		PollMaxQueue:    512,
	}
}

// withDefaults 以預設值補齊未設定的欄位
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = d.MaxMessageBytes
	}
	if c.PollWait <= 0 {
		c.PollWait = d.PollWait
	}
	if c.PollIdle <= 0 {
		c.PollIdle = d.PollIdle
	}
	if c.PollMaxQueue <= 0 {
		c.PollMaxQueue = d.PollMaxQueue
	}
	return c
}
