package ledger

import (
	"sync"

	"deriv-trading-bot-go/internal/models"
)

// Ledger 是会话内的余额账本。余额不是独立维护的计数器,
// 而是初始余额与所有已结算交易盈亏的累加结果, 同一笔交易至多记账一次。
type Ledger struct {
	mu         sync.Mutex
	initial    float64
	hasInitial bool
	applied    map[int64]float64 // 合约ID -> 已记账的盈亏
}

// New 创建一个空账本, 初始余额在授权成功后写入
func New() *Ledger {
	return &Ledger{applied: make(map[int64]float64)}
}

// SetInitial 写入初始余额, 通常来自 authorize 应答。
// 重复写入会重置账本, 已记账的交易被清空。
func (l *Ledger) SetInitial(balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initial = balance
	l.hasInitial = true
	l.applied = make(map[int64]float64)
}

// Apply 将一笔已结算交易的盈亏计入账本。
// 未结算或已记账过的交易被忽略, 返回是否实际入账。
func (l *Ledger) Apply(rec *models.TradeRecord) bool {
	if rec == nil || !rec.Settled() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.applied[rec.ID]; ok {
		return false
	}
	l.applied[rec.ID] = rec.ProfitLoss
	return true
}

// Balance 返回当前余额。初始余额尚未写入时第二个返回值为 false。
func (l *Ledger) Balance() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasInitial {
		return 0, false
	}
	total := l.initial
	for _, pl := range l.applied {
		total += pl
	}
	return total, true
}

// KnownBalance 返回当前余额的指针, 余额未知时返回 nil。
// 交易前置校验用它区分 "余额不足" 与 "余额未知, 不设约束"。
func (l *Ledger) KnownBalance() *float64 {
	if balance, ok := l.Balance(); ok {
		return &balance
	}
	return nil
}

// CurrentBalance 由初始余额与一组交易记录推导当前余额。
// 未结算的记录不参与计算, 相同合约ID的重复记录只计一次。
// 纯函数, 报表与测试直接复用。
func CurrentBalance(initial float64, records []models.TradeRecord) float64 {
	total := initial
	seen := make(map[int64]struct{}, len(records))
	for i := range records {
		rec := &records[i]
		if !rec.Settled() {
			continue
		}
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		seen[rec.ID] = struct{}{}
		total += rec.ProfitLoss
	}
	return total
}
