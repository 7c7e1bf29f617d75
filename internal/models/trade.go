package models

import "time"

// TradeDirection 表示合约方向: 看涨 (CALL) 或 看跌 (PUT)
type TradeDirection string

const (
	Call TradeDirection = "CALL"
	Put  TradeDirection = "PUT"
)

// TradeStatus 表示一笔交易的结算状态
type TradeStatus string

const (
	TradePending TradeStatus = "PENDING"
	TradeWon     TradeStatus = "WON"
	TradeLost    TradeStatus = "LOST"
)

// TradeIntent 描述了一次待提交的交易请求, 创建后不可变
type TradeIntent struct {
	Asset        string         `json:"asset"`         // 交易品种, 如 "frxEURUSD"
	Duration     int            `json:"duration"`      // 合约时长
	DurationUnit string         `json:"duration_unit"` // 时长单位: "s", "m", "h"
	Stake        float64        `json:"stake"`         // 投注额
	Direction    TradeDirection `json:"direction"`     // 合约方向
}

// TradeRecord 记录一笔已被对端接受的交易。
// 以 PENDING 状态创建, 结算时恰好一次地转换为 WON 或 LOST, 此后不可变。
type TradeRecord struct {
	ID         int64          `json:"id"`  // 对端返回的合约ID
	Ref        string         `json:"ref"` // 本地生成的短引用, 用于日志与存储键
	Asset      string         `json:"asset"`
	Direction  TradeDirection `json:"direction"`
	Stake      float64        `json:"stake"`
	ProfitLoss float64        `json:"profit_loss"` // 结算前为0
	Status     TradeStatus    `json:"status"`
	EntryTime  time.Time      `json:"entry_time"`
	EntryPrice float64        `json:"entry_price"`
	ExitTime   time.Time      `json:"exit_time,omitempty"`
	ExitPrice  float64        `json:"exit_price,omitempty"`
}

// Settled 返回该交易是否已结算
func (t *TradeRecord) Settled() bool {
	return t.Status != TradePending
}

// BotStrategy 定义了自动交易策略的参数, 对应原面板上的策略配置
type BotStrategy struct {
	Name             string  `json:"name"`                // "Martingale", "Fibonacci", "D'Alembert", "Oscar's Grind"
	Asset            string  `json:"asset"`               // 策略交易的品种
	BaseStake        float64 `json:"base_stake"`          // 基础投注额
	MaxTradesPerHour int     `json:"max_trades_per_hour"` // 每滚动小时最大交易数
	RiskPercentage   float64 `json:"risk_percentage"`     // 单笔风险占比
	StopLoss         float64 `json:"stop_loss"`           // 止损额, 本次运行累计亏损达到该值即停止
	Duration         int     `json:"duration"`            // 每笔合约的时长
	DurationUnit     string  `json:"duration_unit"`       // 时长单位
	IntervalSec      int     `json:"interval_sec"`        // 两次决策之间的间隔(秒)
}
