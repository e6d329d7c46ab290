package game

import (
	"sync"

	"golang.org/x/exp/rand"
)

// Jitter 反彈角度的隨機擾動來源
//
// Next 返回 [-1, 1] 之間的值，乘上 JitterAngle 後加到反彈角度上。
type Jitter interface {
	Next() float64
}

// RandJitter 以偽隨機數產生擾動
type RandJitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandJitter 創建隨機擾動來源
func NewRandJitter(seed uint64) *RandJitter {
	return &RandJitter{rng: rand.New(rand.NewSource(seed))}
}

// Next 實現 Jitter
func (j *RandJitter) Next() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.Float64()*2 - 1
}

// SequenceJitter 依序循環返回固定值，測試用
type SequenceJitter struct {
	values []float64
	i      int
}

// NewSequenceJitter 創建固定序列擾動；空序列一律返回 0
func NewSequenceJitter(values ...float64) *SequenceJitter {
	return &SequenceJitter{values: values}
}

// Next 實現 Jitter
func (j *SequenceJitter) Next() float64 {
	if len(j.values) == 0 {
		return 0
	}
	v := j.values[j.i%len(j.values)]
	j.i++
	return clamp(v, -1, 1)
}

// NoJitter 不產生擾動
var NoJitter Jitter = NewSequenceJitter()
