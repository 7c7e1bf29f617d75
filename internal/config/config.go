package config

import (
	"deriv-trading-bot-go/internal/models"
	"encoding/json"
	"fmt"
	"os"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中,
// 随后填充默认值并校验关键参数
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults 为未配置的字段填充默认值
func applyDefaults(cfg *models.Config) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "wss://ws.derivws.com/websockets/v3"
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = 30
	}
	if cfg.ReconnectBaseDelayMs <= 0 {
		cfg.ReconnectBaseDelayMs = 3000
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.PingIntervalSec <= 0 {
		cfg.PingIntervalSec = 54
	}
	if cfg.PongTimeoutSec <= 0 {
		cfg.PongTimeoutSec = 60
	}
	if cfg.PayoutRatio <= 0 {
		cfg.PayoutRatio = 0.75
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.MinStake <= 0 {
		cfg.MinStake = 1
	}
	if cfg.MaxStake <= 0 {
		cfg.MaxStake = 10000
	}
	if cfg.Strategy.IntervalSec <= 0 {
		cfg.Strategy.IntervalSec = 30
	}
	if cfg.Strategy.Duration <= 0 {
		cfg.Strategy.Duration = 1
		cfg.Strategy.DurationUnit = "m"
	}
}

// validate 校验配置的自洽性
func validate(cfg *models.Config) error {
	if cfg.AppID == "" {
		return fmt.Errorf("配置缺少 app_id")
	}
	if cfg.MinStake > cfg.MaxStake {
		return fmt.Errorf("min_stake (%.2f) 不能大于 max_stake (%.2f)", cfg.MinStake, cfg.MaxStake)
	}
	for asset, limits := range cfg.AssetLimits {
		if limits.MinStake > limits.MaxStake {
			return fmt.Errorf("资产 %s 的投注边界无效: min %.2f > max %.2f", asset, limits.MinStake, limits.MaxStake)
		}
	}
	return nil
}
