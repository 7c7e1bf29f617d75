package risk

import (
	"errors"
	"sync"
	"time"
)

// ErrQuotaExceeded 表示滚动窗口内的交易配额已耗尽
var ErrQuotaExceeded = errors.New("risk: 交易频率超限")

// SlidingWindowLimiter 在一个滚动时间窗口内限制动作次数。
// 检查与记账是同一临界区内的原子操作, 并发调用不会超发。
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
}

// NewSlidingWindowLimiter 创建一个限流器。limit 为0时任何动作都不被放行。
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{limit: limit, window: window}
}

// TryExecute 尝试占用一个配额。窗口内已记录的动作数小于上限时
// 记录本次动作并返回 true, 否则不留痕迹地返回 false。
func (l *SlidingWindowLimiter) TryExecute(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Count 返回窗口内已记录的动作数
func (l *SlidingWindowLimiter) Count(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	return len(l.stamps)
}

// prune 丢弃滑出窗口的时间戳, 必须在持锁状态下调用
func (l *SlidingWindowLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept
}
