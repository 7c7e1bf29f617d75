package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deriv-trading-bot-go/internal/models"
	"deriv-trading-bot-go/internal/risk"
)

// momentumWindow 是方向判断参考的最近报价数量
const momentumWindow = 5

// TradeAPI 是自动交易器对会话的依赖面, 便于测试时注入内存实现
type TradeAPI interface {
	ValidateTrade(intent models.TradeIntent) error
	SubmitTrade(ctx context.Context, intent models.TradeIntent) (*models.TradeRecord, error)
	SubscribeTicks(ctx context.Context, asset string, fn func(models.TickEvent)) (func(), error)
	OnTradeSettled(fn func(models.TradeRecord)) func()
}

// AutoTrader 是自动交易机器人的核心结构。按固定间隔决策一次:
// 止损检查先行, 意图校验通过后才占用频率额度并按投注序列提交交易。
type AutoTrader struct {
	api      TradeAPI
	strategy models.BotStrategy
	limiter  *risk.SlidingWindowLimiter
	logger   *zap.Logger
	runID    string

	mutex       sync.Mutex
	progression stakingProgression
	quotes      []float64      // 最近的报价, 用于动量方向判断
	owned       map[int64]bool // 本次运行提交的合约
	totalLoss   float64        // 本次运行的累计亏损(正数)
	isRunning   bool

	stopChannel chan bool
	done        chan struct{}
	unsubTicks  func()
	unsubTrades func()
}

// NewAutoTrader 创建一个自动交易机器人实例
func NewAutoTrader(api TradeAPI, strategy models.BotStrategy, logger *zap.Logger) (*AutoTrader, error) {
	progression, err := newProgression(strategy.Name, strategy.BaseStake)
	if err != nil {
		return nil, err
	}
	return &AutoTrader{
		api:         api,
		strategy:    strategy,
		limiter:     risk.NewSlidingWindowLimiter(strategy.MaxTradesPerHour, time.Hour),
		logger:      logger,
		runID:       uuid.NewString(),
		progression: progression,
		owned:       make(map[int64]bool),
		stopChannel: make(chan bool),
		done:        make(chan struct{}),
	}, nil
}

// RunID 返回本次运行的唯一标识
func (a *AutoTrader) RunID() string { return a.runID }

// Start 订阅价格与结算事件并启动决策循环
func (a *AutoTrader) Start(ctx context.Context) error {
	a.mutex.Lock()
	if a.isRunning {
		a.mutex.Unlock()
		return nil
	}
	a.isRunning = true
	a.mutex.Unlock()

	unsubTicks, err := a.api.SubscribeTicks(ctx, a.strategy.Asset, a.onTick)
	if err != nil {
		a.mutex.Lock()
		a.isRunning = false
		a.mutex.Unlock()
		return err
	}
	a.unsubTicks = unsubTicks
	a.unsubTrades = a.api.OnTradeSettled(a.onTradeSettled)

	a.logger.Info("自动交易启动",
		zap.String("run_id", a.runID),
		zap.String("strategy", a.strategy.Name),
		zap.String("asset", a.strategy.Asset),
		zap.Float64("base_stake", a.strategy.BaseStake),
		zap.Int("max_trades_per_hour", a.strategy.MaxTradesPerHour))

	go a.strategyLoop()
	return nil
}

// Stop 停止决策循环并取消订阅。幂等。
func (a *AutoTrader) Stop() {
	a.mutex.Lock()
	if !a.isRunning {
		a.mutex.Unlock()
		return
	}
	a.isRunning = false
	a.mutex.Unlock()

	close(a.stopChannel)
	<-a.done

	if a.unsubTicks != nil {
		a.unsubTicks()
	}
	if a.unsubTrades != nil {
		a.unsubTrades()
	}
	a.logger.Info("自动交易停止", zap.String("run_id", a.runID), zap.Float64("total_loss", a.totalLoss))
}

// strategyLoop 按固定间隔驱动一次决策
func (a *AutoTrader) strategyLoop() {
	defer close(a.done)

	interval := time.Duration(a.strategy.IntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if halt := a.decideOnce(); halt {
				return
			}
		case <-a.stopChannel:
			return
		}
	}
}

// decideOnce 执行一轮决策, 返回是否应当终止循环 (触发止损)
func (a *AutoTrader) decideOnce() bool {
	a.mutex.Lock()
	if a.strategy.StopLoss > 0 && a.totalLoss >= a.strategy.StopLoss {
		a.mutex.Unlock()
		a.logger.Warn("触发止损, 本次运行终止",
			zap.String("run_id", a.runID),
			zap.Float64("total_loss", a.totalLoss),
			zap.Float64("stop_loss", a.strategy.StopLoss))
		return true
	}
	direction, ok := a.momentum()
	stake := a.progression.Next()
	a.mutex.Unlock()

	if !ok {
		// 报价不足以判断方向, 等下一轮
		return false
	}

	intent := models.TradeIntent{
		Asset:        a.strategy.Asset,
		Duration:     a.strategy.Duration,
		DurationUnit: a.strategy.DurationUnit,
		Stake:        stake,
		Direction:    direction,
	}
	// 先校验意图再占用频率额度, 校验失败不得消耗本小时的配额
	if err := a.api.ValidateTrade(intent); err != nil {
		a.logger.Warn("交易校验未通过",
			zap.String("run_id", a.runID),
			zap.Float64("stake", intent.Stake),
			zap.Error(err))
		return false
	}
	if !a.limiter.TryExecute(time.Now()) {
		a.logger.Debug("跳过本轮", zap.String("run_id", a.runID), zap.Error(risk.ErrQuotaExceeded))
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := a.api.SubmitTrade(ctx, intent)
	if err != nil {
		a.logger.Warn("交易提交失败",
			zap.String("run_id", a.runID),
			zap.Float64("stake", intent.Stake),
			zap.Error(err))
		return false
	}

	a.mutex.Lock()
	a.owned[rec.ID] = true
	a.mutex.Unlock()
	a.logger.Info("已提交交易",
		zap.String("run_id", a.runID),
		zap.Int64("contract_id", rec.ID),
		zap.String("direction", string(intent.Direction)),
		zap.Float64("stake", intent.Stake))
	return false
}

// momentum 由最近的报价推断方向: 报价上行看涨, 否则看跌。
// 必须在持锁状态下调用。
func (a *AutoTrader) momentum() (models.TradeDirection, bool) {
	if len(a.quotes) < 2 {
		return "", false
	}
	latest := a.quotes[len(a.quotes)-1]
	oldest := a.quotes[0]
	if latest >= oldest {
		return models.Call, true
	}
	return models.Put, true
}

// onTick 记录最近的报价
func (a *AutoTrader) onTick(evt models.TickEvent) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.quotes = append(a.quotes, evt.Tick.Quote)
	if len(a.quotes) > momentumWindow {
		a.quotes = a.quotes[len(a.quotes)-momentumWindow:]
	}
}

// onTradeSettled 消费结算事件, 驱动投注序列与止损计数。
// 只响应本次运行提交的合约。
func (a *AutoTrader) onTradeSettled(rec models.TradeRecord) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if !a.owned[rec.ID] {
		return
	}
	delete(a.owned, rec.ID)

	if rec.Status == models.TradeWon {
		a.progression.OnWin()
	} else {
		a.progression.OnLoss()
		a.totalLoss += -rec.ProfitLoss
	}
}
