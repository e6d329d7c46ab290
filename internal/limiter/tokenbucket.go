// Package limiter 提供每位玩家的消息速率限制
package limiter

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶
//
// 容量允許短暫突發，持續超速時 Allow 返回 false，
// 由呼叫者決定丟棄或回覆錯誤。
type TokenBucket struct {
	capacity   float64   // 桶容量
	tokens     float64   // 當前令牌數
	refillRate float64   // 每秒填充的令牌數
	lastRefill time.Time // 上次填充時間
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 創建令牌桶，初始為滿
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return NewTokenBucketWithClock(capacity, refillRate, time.Now)
}

// NewTokenBucketWithClock 使用指定時鐘創建令牌桶
func NewTokenBucketWithClock(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		now:        now,
	}
}

// Allow 取一個令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.lastRefill); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.refillRate)
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Tokens 當前令牌數（向下取整）
func (tb *TokenBucket) Tokens() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return int64(tb.tokens)
}
