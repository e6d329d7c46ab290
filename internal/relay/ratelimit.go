package relay

import (
	"sync"
	"time"

	"github.com/koopa0/pong-arena/internal/limiter"
	"github.com/koopa0/pong-arena/internal/protocol"
)

// RateLimit 每位玩家的消息速率限制
//
// 串流消息（paddle-move、ball-update）每幀送出，超速時靜默丟棄，
// 下一則更新會覆蓋它。請求消息超速時回覆 RATE_LIMITED。
// score-update、ready、leave-room 推進比賽狀態，不計量。
type RateLimit struct {
	StreamCapacity  int64 `yaml:"stream_capacity"`
	StreamRefill    int64 `yaml:"stream_refill"`
	RequestCapacity int64 `yaml:"request_capacity"`
	RequestRefill   int64 `yaml:"request_refill"`
}

// DefaultRateLimit 返回預設限制
//
// 240Hz 顯示器每幀一則球拍，加上每 16ms 一次球狀態，約 303/s。
func DefaultRateLimit() RateLimit {
	return RateLimit{
		StreamCapacity:  480,
		StreamRefill:    400,
		RequestCapacity: 30,
		RequestRefill:   10,
	}
}

func (r RateLimit) withDefaults() RateLimit {
	d := DefaultRateLimit()
	if r.StreamCapacity <= 0 {
		r.StreamCapacity = d.StreamCapacity
	}
	if r.StreamRefill <= 0 {
		r.StreamRefill = d.StreamRefill
	}
	if r.RequestCapacity <= 0 {
		r.RequestCapacity = d.RequestCapacity
	}
	if r.RequestRefill <= 0 {
		r.RequestRefill = d.RequestRefill
	}
	return r
}

type meterClass int

const (
	unmetered meterClass = iota
	streamMeter
	requestMeter
)

// classify 未知事件與無法解碼的消息按請求計量
func classify(event string) meterClass {
	switch event {
	case protocol.EventPaddleMove, protocol.EventBallUpdate:
		return streamMeter
	case protocol.EventScoreUpdate, protocol.EventReady, protocol.EventLeaveRoom:
		return unmetered
	default:
		return requestMeter
	}
}

type quota struct {
	stream  *limiter.TokenBucket
	request *limiter.TokenBucket
}

// quotas 按玩家保存令牌桶，斷線時移除
type quotas struct {
	cfg  RateLimit
	now  func() time.Time
	mu   sync.Mutex
	byID map[string]*quota
}

func newQuotas(cfg RateLimit, now func() time.Time) *quotas {
	return &quotas{
		cfg:  cfg.withDefaults(),
		now:  now,
		byID: make(map[string]*quota),
	}
}

func (q *quotas) allow(participantID string, c meterClass) bool {
	if c == unmetered {
		return true
	}

	q.mu.Lock()
	qt, ok := q.byID[participantID]
	if !ok {
		qt = &quota{
			stream:  limiter.NewTokenBucketWithClock(q.cfg.StreamCapacity, q.cfg.StreamRefill, q.now),
			request: limiter.NewTokenBucketWithClock(q.cfg.RequestCapacity, q.cfg.RequestRefill, q.now),
		}
		q.byID[participantID] = qt
	}
	q.mu.Unlock()

	if c == streamMeter {
		return qt.stream.Allow()
	}
	return qt.request.Allow()
}

func (q *quotas) forget(participantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.byID, participantID)
}
