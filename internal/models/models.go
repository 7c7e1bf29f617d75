package models

import "fmt"

// Config 结构体定义了交易会话与机器人的所有配置参数
type Config struct {
	AppID                string  `json:"app_id"`                  // Deriv 应用ID
	Endpoint             string  `json:"endpoint"`                // WebSocket 接入点, 如 "wss://ws.derivws.com/websockets/v3"
	DBPath               string  `json:"db_path"`                 // 交易历史数据库文件路径
	RequestTimeoutSec    int     `json:"request_timeout_sec"`     // 请求-应答超时时间(秒), 默认30
	ReconnectBaseDelayMs int     `json:"reconnect_base_delay_ms"` // 重连初始延迟毫秒数, 默认3000
	MaxReconnectAttempts int     `json:"max_reconnect_attempts"`  // 最大连续重连次数, 默认5
	PingIntervalSec      int     `json:"ping_interval_sec"`       // WebSocket Ping消息发送间隔(秒)
	PongTimeoutSec       int     `json:"pong_timeout_sec"`        // WebSocket Pong消息超时时间(秒)
	PayoutRatio          float64 `json:"payout_ratio"`            // 二元期权赔付比例, 默认0.75
	Currency             string  `json:"currency"`                // 计价货币, 默认 "USD"

	// 风控配置
	MinStake       float64                `json:"min_stake"`       // 单笔最小投注额, 默认1
	MaxStake       float64                `json:"max_stake"`       // 单笔最大投注额, 默认10000
	AssetLimits    map[string]AssetLimits `json:"asset_limits"`    // 按资产覆盖的投注边界
	TradingEnabled bool                   `json:"trading_enabled"` // 是否允许下单

	Strategy  BotStrategy `json:"strategy"` // 自动交易策略配置
	LogConfig LogConfig   `json:"log"`      // 日志配置
}

// AssetLimits 定义了单个资产的投注边界, 覆盖全局默认值
type AssetLimits struct {
	MinStake float64 `json:"min_stake"`
	MaxStake float64 `json:"max_stake"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// APIError 定义了 Deriv API 返回的错误信息结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: code=%s, msg=%s", e.Code, e.Message)
}
