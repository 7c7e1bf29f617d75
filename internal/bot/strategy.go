package bot

import (
	"fmt"
	"strings"
)

// stakingProgression 根据历史输赢决定下一笔的投注额。
// 实现不要求并发安全, AutoTrader 在单一决策循环中串行调用。
type stakingProgression interface {
	// Next 返回下一笔交易的投注额
	Next() float64
	// OnWin 记录一次盈利结算
	OnWin()
	// OnLoss 记录一次亏损结算
	OnLoss()
	// Reset 回到初始状态
	Reset()
}

// newProgression 按策略名创建对应的投注序列
func newProgression(name string, baseStake float64) (stakingProgression, error) {
	switch strings.ToLower(name) {
	case "martingale":
		return &martingale{base: baseStake}, nil
	case "fibonacci":
		return &fibonacci{base: baseStake}, nil
	case "d'alembert", "dalembert":
		return &dalembert{base: baseStake, units: 1}, nil
	case "oscar's grind", "oscars-grind", "oscarsgrind":
		return &oscarsGrind{base: baseStake, units: 1}, nil
	}
	return nil, fmt.Errorf("未知的策略: %s", name)
}

// martingale 每次亏损后投注额翻倍, 盈利后回到基础投注额
type martingale struct {
	base   float64
	losses int
}

func (m *martingale) Next() float64 {
	stake := m.base
	for i := 0; i < m.losses; i++ {
		stake *= 2
	}
	return stake
}

func (m *martingale) OnWin()  { m.losses = 0 }
func (m *martingale) OnLoss() { m.losses++ }
func (m *martingale) Reset()  { m.losses = 0 }

// fibonacci 沿斐波那契数列移动: 亏损前进一步, 盈利后退两步
type fibonacci struct {
	base float64
	idx  int
}

func (f *fibonacci) Next() float64 {
	return f.base * float64(fibNumber(f.idx))
}

func (f *fibonacci) OnWin() {
	f.idx -= 2
	if f.idx < 0 {
		f.idx = 0
	}
}

func (f *fibonacci) OnLoss() { f.idx++ }
func (f *fibonacci) Reset()  { f.idx = 0 }

// fibNumber 返回第 n 个斐波那契数 (1, 1, 2, 3, 5, ...)
func fibNumber(n int) int {
	a, b := 1, 1
	for i := 0; i < n; i++ {
		a, b = b, a+b
	}
	return a
}

// dalembert 亏损后加一个单位, 盈利后减一个单位, 最低一个单位
type dalembert struct {
	base  float64
	units int
}

func (d *dalembert) Next() float64 { return d.base * float64(d.units) }

func (d *dalembert) OnWin() {
	if d.units > 1 {
		d.units--
	}
}

func (d *dalembert) OnLoss() { d.units++ }
func (d *dalembert) Reset()  { d.units = 1 }

// oscarsGrind 以每轮赚取一个基础单位为目标:
// 亏损后投注额不变, 盈利后加一个单位; 一轮盈利达到一个单位即重置。
type oscarsGrind struct {
	base        float64
	units       int
	cycleProfit float64 // 以基础单位计的本轮累计盈亏
}

func (o *oscarsGrind) Next() float64 {
	// 不押超过达成本轮目标所需的投注额
	if need := 1 - o.cycleProfit; float64(o.units) > need && need >= 1 {
		o.units = int(need)
	}
	if o.units < 1 {
		o.units = 1
	}
	return o.base * float64(o.units)
}

func (o *oscarsGrind) OnWin() {
	o.cycleProfit += float64(o.units)
	if o.cycleProfit >= 1 {
		o.Reset()
		return
	}
	o.units++
}

func (o *oscarsGrind) OnLoss() {
	o.cycleProfit -= float64(o.units)
}

func (o *oscarsGrind) Reset() {
	o.units = 1
	o.cycleProfit = 0
}
