package game

import (
	"sync"
	"time"
)

// Countdown 可取消的延遲轉換
//
// 每次 Schedule 都會取代尚未觸發的轉換；被取代或取消的回呼
// 即使計時器已經觸發也不會執行（以世代編號判斷）。
type Countdown struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Schedule 在 d 之後執行 fn，取代任何待執行的轉換
func (c *Countdown) Schedule(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	gen := c.gen
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.gen++
		c.mu.Unlock()

		fn()
	})
}

// Cancel 取消待執行的轉換
func (c *Countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Pending 是否有待執行的轉換
func (c *Countdown) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Countdown) stopLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
