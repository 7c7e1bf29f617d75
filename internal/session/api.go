package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"

	"deriv-trading-bot-go/internal/models"
	"deriv-trading-bot-go/internal/risk"
)

// Authorize 使用 API token 完成会话授权。
// 授权应答中的余额作为账本的初始余额, token 被保存用于重连后恢复授权。
func (s *Session) Authorize(ctx context.Context, token string) (*models.AuthorizeResponse, error) {
	env, err := s.Call(ctx, models.Request{"authorize": token})
	if err != nil {
		return nil, err
	}
	var resp models.AuthorizeResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析授权应答失败: %w", err)
	}

	s.authMu.Lock()
	s.authToken = token
	s.authMu.Unlock()
	s.ledger.SetInitial(resp.Authorize.Balance)

	s.logger.Info("授权成功",
		zap.String("loginid", resp.Authorize.LoginID),
		zap.Float64("balance", resp.Authorize.Balance),
		zap.String("currency", resp.Authorize.Currency))
	return &resp, nil
}

// SubscribeBalance 订阅余额推送流。后续的 balance 推送经事件分发器
// 送达 OnBalanceUpdate 的订阅者, 重连后订阅自动恢复。
func (s *Session) SubscribeBalance(ctx context.Context) (*models.BalanceResponse, error) {
	req := models.Request{"balance": 1, "subscribe": 1}
	env, err := s.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	var resp models.BalanceResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析余额应答失败: %w", err)
	}
	s.registerStream("balance", req)
	return &resp, nil
}

// ActiveSymbols 返回当前开市且未暂停交易的品种列表
func (s *Session) ActiveSymbols(ctx context.Context) ([]models.ActiveSymbol, error) {
	env, err := s.Call(ctx, models.Request{"active_symbols": "brief", "product_type": "basic"})
	if err != nil {
		return nil, err
	}
	var resp models.ActiveSymbolsResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析品种列表失败: %w", err)
	}

	tradable := make([]models.ActiveSymbol, 0, len(resp.ActiveSymbols))
	for _, sym := range resp.ActiveSymbols {
		if sym.ExchangeIsOpen == 1 && sym.IsTradingSuspended == 0 {
			tradable = append(tradable, sym)
		}
	}
	sort.Slice(tradable, func(i, j int) bool { return tradable[i].Symbol < tradable[j].Symbol })
	return tradable, nil
}

// Proposal 请求一笔合约的报价
func (s *Session) Proposal(ctx context.Context, intent models.TradeIntent) (*models.ProposalResponse, error) {
	env, err := s.Call(ctx, models.Request{
		"proposal":      1,
		"amount":        intent.Stake,
		"basis":         "stake",
		"contract_type": string(intent.Direction),
		"currency":      s.cfg.Currency,
		"duration":      intent.Duration,
		"duration_unit": intent.DurationUnit,
		"symbol":        intent.Asset,
	})
	if err != nil {
		return nil, err
	}
	var resp models.ProposalResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析报价应答失败: %w", err)
	}
	return &resp, nil
}

// SubscribeTicks 订阅某个品种的价格流。处理器只收到该品种的 tick,
// 返回的取消函数同时移除处理器与重连恢复登记。
func (s *Session) SubscribeTicks(ctx context.Context, asset string, fn func(models.TickEvent)) (func(), error) {
	unsub := s.Subscribe("tick", func(env *models.Envelope) {
		var evt models.TickEvent
		if err := json.Unmarshal(env.Raw, &evt); err != nil {
			return
		}
		if evt.Tick.Symbol != asset {
			return
		}
		fn(evt)
	})

	req := models.Request{"ticks": asset, "subscribe": 1}
	if _, err := s.Call(ctx, req); err != nil {
		unsub()
		return nil, err
	}
	key := "ticks:" + asset
	s.registerStream(key, req)

	return func() {
		unsub()
		s.unregisterStream(key)
	}, nil
}

// SellContract 以指定价格平仓一张合约, price 为0表示按市价
func (s *Session) SellContract(ctx context.Context, contractID int64, price float64) (*models.SellResponse, error) {
	env, err := s.Call(ctx, models.Request{"sell": contractID, "price": price})
	if err != nil {
		return nil, err
	}
	var resp models.SellResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析平仓应答失败: %w", err)
	}
	return &resp, nil
}

// ProfitTable 拉取最近 limit 笔已完结交易
func (s *Session) ProfitTable(ctx context.Context, limit int) (*models.ProfitTableResponse, error) {
	env, err := s.Call(ctx, models.Request{
		"profit_table": 1,
		"description":  1,
		"limit":        limit,
		"sort":         "DESC",
	})
	if err != nil {
		return nil, err
	}
	var resp models.ProfitTableResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析交易记录失败: %w", err)
	}
	return &resp, nil
}

// Statement 拉取最近 limit 条账户流水
func (s *Session) Statement(ctx context.Context, limit int) (*models.StatementResponse, error) {
	env, err := s.Call(ctx, models.Request{"statement": 1, "description": 1, "limit": limit})
	if err != nil {
		return nil, err
	}
	var resp models.StatementResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析账户流水失败: %w", err)
	}
	return &resp, nil
}

// ValidateTrade 对交易意图做纯函数前置校验, 不产生任何网络请求与状态变更。
// 调用方可在占用额度或下单前先行确认意图合法。
func (s *Session) ValidateTrade(intent models.TradeIntent) error {
	limits := risk.LimitsFromConfig(s.cfg)
	return risk.Validate(intent, limits, s.ledger.KnownBalance())
}

// SubmitTrade 提交一笔交易。先做纯函数前置校验, 全部通过后才发送 buy 请求;
// 任一检查失败则不产生任何网络请求与状态变更。
// 成功后以 PENDING 状态登记交易并订阅合约结算推送。
func (s *Session) SubmitTrade(ctx context.Context, intent models.TradeIntent) (*models.TradeRecord, error) {
	if err := s.ValidateTrade(intent); err != nil {
		return nil, err
	}

	env, err := s.Call(ctx, models.Request{
		"buy":   1,
		"price": intent.Stake,
		"parameters": map[string]interface{}{
			"amount":        intent.Stake,
			"basis":         "stake",
			"contract_type": string(intent.Direction),
			"currency":      s.cfg.Currency,
			"duration":      intent.Duration,
			"duration_unit": intent.DurationUnit,
			"symbol":        intent.Asset,
		},
	})
	if err != nil {
		return nil, err
	}
	var resp models.BuyResponse
	if err := json.Unmarshal(env.Raw, &resp); err != nil {
		return nil, fmt.Errorf("解析买入应答失败: %w", err)
	}

	rec := &models.TradeRecord{
		ID:        resp.Buy.ContractID,
		Ref:       string(base62.FormatInt(resp.Buy.ContractID)),
		Asset:     intent.Asset,
		Direction: intent.Direction,
		Stake:     intent.Stake,
		Status:    models.TradePending,
		EntryTime: time.Unix(resp.Buy.StartTime, 0),
	}
	s.recordMu.Lock()
	s.records[rec.ID] = rec
	s.recordMu.Unlock()

	s.logger.Info("买入成功",
		zap.Int64("contract_id", rec.ID),
		zap.String("ref", rec.Ref),
		zap.String("asset", rec.Asset),
		zap.Float64("stake", rec.Stake),
		zap.String("longcode", resp.Buy.LongCode))

	// 订阅该合约的结算推送, 重连后恢复
	streamReq := models.Request{
		"proposal_open_contract": 1,
		"contract_id":            rec.ID,
		"subscribe":              1,
	}
	if _, err := s.Call(ctx, streamReq); err != nil {
		s.logger.Warn("订阅合约推送失败", zap.Int64("contract_id", rec.ID), zap.Error(err))
	} else {
		s.registerStream(fmt.Sprintf("contract:%d", rec.ID), streamReq)
	}

	out := *rec
	return &out, nil
}

// Records 返回所有已登记交易的快照, 按合约ID升序
func (s *Session) Records() []models.TradeRecord {
	s.recordMu.Lock()
	out := make([]models.TradeRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	s.recordMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// onContractUpdate 消费 proposal_open_contract 推送, 在合约售出时
// 恰好一次地结算对应交易: 更新记录状态, 计入账本, 发布 trade 事件。
func (s *Session) onContractUpdate(env *models.Envelope) {
	var update models.ContractUpdate
	if err := json.Unmarshal(env.Raw, &update); err != nil {
		s.logger.Warn("解析合约推送失败", zap.Error(err))
		return
	}
	c := update.Contract
	if c.ContractID == 0 || c.IsSold != 1 {
		return
	}

	s.recordMu.Lock()
	rec, ok := s.records[c.ContractID]
	if !ok || rec.Settled() {
		s.recordMu.Unlock()
		return
	}
	rec.ProfitLoss = c.Profit
	if c.Profit > 0 {
		rec.Status = models.TradeWon
	} else {
		rec.Status = models.TradeLost
	}
	rec.EntryPrice = c.EntrySpot
	rec.ExitPrice = c.ExitSpot
	if c.SellTime > 0 {
		rec.ExitTime = time.Unix(c.SellTime, 0)
	} else {
		rec.ExitTime = time.Now()
	}
	settled := *rec
	s.recordMu.Unlock()

	s.unregisterStream(fmt.Sprintf("contract:%d", c.ContractID))
	s.ledger.Apply(&settled)

	balance, _ := s.ledger.Balance()
	s.logger.Info("交易结算",
		zap.Int64("contract_id", settled.ID),
		zap.String("status", string(settled.Status)),
		zap.Float64("profit_loss", settled.ProfitLoss),
		zap.Float64("balance", balance))

	s.publish(CategoryTrade, struct {
		MsgType string             `json:"msg_type"`
		Trade   models.TradeRecord `json:"trade"`
	}{CategoryTrade, settled})
}

// registerStream 登记一个重连后需要原样重发的订阅请求
func (s *Session) registerStream(key string, req models.Request) {
	s.streamMu.Lock()
	s.streams[key] = req
	s.streamMu.Unlock()
}

func (s *Session) unregisterStream(key string) {
	s.streamMu.Lock()
	delete(s.streams, key)
	s.streamMu.Unlock()
}
