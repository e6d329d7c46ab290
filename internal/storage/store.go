// Package storage 提供房間碼預留
//
// 單機部署時房間碼只需在本進程內唯一；多個中繼實例共用同一組
// 房間碼空間時，改用 Redis 預留，保證不會把同一個碼發給兩個房間。
package storage

import (
	"context"
	"sync"
)

// CodeStore 房間碼預留接口
type CodeStore interface {
	// Reserve 嘗試預留房間碼；已被佔用時返回 false
	Reserve(ctx context.Context, code string) (bool, error)
	// Release 釋放房間碼，重複釋放不報錯
	Release(ctx context.Context, code string) error
}

// MemoryStore 進程內預留
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

// NewMemoryStore 創建進程內預留存儲
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]struct{})}
}

// Reserve 實現 CodeStore
func (s *MemoryStore) Reserve(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[code]; taken {
		return false, nil
	}
	s.codes[code] = struct{}{}
	return true, nil
}

// Release 實現 CodeStore
func (s *MemoryStore) Release(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

// Len 目前預留數量
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}
