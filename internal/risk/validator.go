package risk

import (
	"errors"
	"fmt"

	"deriv-trading-bot-go/internal/models"
)

var (
	// ErrTradingDisabled 表示配置层面禁止下单
	ErrTradingDisabled = errors.New("risk: 交易已禁用")

	// ErrInvalidStake 表示投注额超出允许的边界
	ErrInvalidStake = errors.New("risk: 投注额越界")

	// ErrInsufficientBalance 表示投注额超过当前已知余额
	ErrInsufficientBalance = errors.New("risk: 余额不足")
)

// Limits 是交易前置校验所需的全部边界参数
type Limits struct {
	TradingEnabled bool
	MinStake       float64
	MaxStake       float64
	AssetLimits    map[string]models.AssetLimits // 按资产覆盖全局边界
}

// LimitsFromConfig 从配置中提取校验边界
func LimitsFromConfig(cfg *models.Config) Limits {
	return Limits{
		TradingEnabled: cfg.TradingEnabled,
		MinStake:       cfg.MinStake,
		MaxStake:       cfg.MaxStake,
		AssetLimits:    cfg.AssetLimits,
	}
}

// Validate 对一笔待提交的交易做前置校验。纯函数, 不改变任何状态,
// 相同输入永远得到相同结果。检查按固定顺序进行, 返回第一条违规:
// 交易开关, 投注边界, 余额约束。
// balance 为 nil 表示余额未知, 此时不施加余额约束。
func Validate(intent models.TradeIntent, limits Limits, balance *float64) error {
	if !limits.TradingEnabled {
		return ErrTradingDisabled
	}

	min, max := limits.MinStake, limits.MaxStake
	if override, ok := limits.AssetLimits[intent.Asset]; ok {
		min, max = override.MinStake, override.MaxStake
	}
	if intent.Stake < min || intent.Stake > max {
		return fmt.Errorf("%w: stake=%.2f 允许区间=[%.2f, %.2f]", ErrInvalidStake, intent.Stake, min, max)
	}

	if balance != nil && intent.Stake > *balance {
		return fmt.Errorf("%w: stake=%.2f 余额=%.2f", ErrInsufficientBalance, intent.Stake, *balance)
	}
	return nil
}
