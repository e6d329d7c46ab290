package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient Redis 客戶端接口，只暴露需要的方法
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// 只刪除自己預留的鍵，避免實例 A 釋放實例 B 的房間碼
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisStore 以 SETNX 預留房間碼
//
// 系統設計考量：
//
//  1. TTL：實例崩潰時預留不會永久佔用，過期後房間碼可重用
//  2. 擁有者：值為實例 ID，釋放時比對後才刪除
type RedisStore struct {
	client    RedisClient
	owner     string
	ttl       time.Duration
	keyPrefix string
}

// NewRedisStore 創建 Redis 預留存儲，ttl 為 0 時使用 24 小時
func NewRedisStore(client RedisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client:    client,
		owner:     uuid.NewString(),
		ttl:       ttl,
		keyPrefix: "pong:room:",
	}
}

// Reserve 實現 CodeStore
func (s *RedisStore) Reserve(ctx context.Context, code string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+code, s.owner, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("預留房間碼失敗: %w", err)
	}
	return ok, nil
}

// Release 實現 CodeStore
func (s *RedisStore) Release(ctx context.Context, code string) error {
	if err := s.client.Eval(ctx, releaseScript, []string{s.keyPrefix + code}, s.owner).Err(); err != nil {
		return fmt.Errorf("釋放房間碼失敗: %w", err)
	}
	return nil
}
