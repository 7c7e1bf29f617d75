package session

import (
	"encoding/json"

	"deriv-trading-bot-go/internal/models"

	"go.uber.org/zap"
)

// Handler 处理一条分发给订阅者的入站消息
type Handler func(env *models.Envelope)

// subscription 是某个消息类别下的一个已注册处理器
type subscription struct {
	id int64
	fn Handler
}

// Subscribe 注册一个消息类别的处理器, 类别 "*" 表示通配。
// 返回的函数只移除本次注册的处理器, 不影响同类别的其他订阅者;
// 多次调用是幂等的空操作。
func (s *Session) Subscribe(msgType string, fn Handler) func() {
	s.handlerMu.Lock()
	s.subSeq++
	sub := &subscription{id: s.subSeq, fn: fn}
	s.handlers[msgType] = append(s.handlers[msgType], sub)
	s.handlerMu.Unlock()

	return func() {
		s.handlerMu.Lock()
		defer s.handlerMu.Unlock()
		list := s.handlers[msgType]
		for i, cand := range list {
			if cand.id == sub.id {
				s.handlers[msgType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// dispatch 将一条消息按注册顺序同步送达类别订阅者与通配订阅者。
// 处理器 panic 被恢复并记录, 不影响同批次后续处理器。
func (s *Session) dispatch(msgType string, env *models.Envelope) {
	s.handlerMu.Lock()
	targets := make([]*subscription, 0, len(s.handlers[msgType])+len(s.handlers["*"]))
	targets = append(targets, s.handlers[msgType]...)
	targets = append(targets, s.handlers["*"]...)
	s.handlerMu.Unlock()

	for _, sub := range targets {
		s.invoke(msgType, sub, env)
	}
}

func (s *Session) invoke(msgType string, sub *subscription, env *models.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("事件处理器 panic",
				zap.String("msg_type", msgType),
				zap.Any("panic", r))
		}
	}()
	sub.fn(env)
}

// publish 构造一条会话内部事件并走统一的分发路径
func (s *Session) publish(category string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("序列化内部事件失败", zap.String("category", category), zap.Error(err))
		return
	}
	s.dispatch(category, &models.Envelope{MsgType: category, Raw: raw})
}

// publishState 向 connection 类别的订阅者通知状态变更
func (s *Session) publishState(state State) {
	s.publish(CategoryConnection, struct {
		MsgType string `json:"msg_type"`
		State   string `json:"state"`
	}{CategoryConnection, state.String()})
}

// OnConnectionStateChange 订阅连接状态变更
func (s *Session) OnConnectionStateChange(fn func(State)) func() {
	return s.Subscribe(CategoryConnection, func(env *models.Envelope) {
		var evt struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(env.Raw, &evt); err != nil {
			return
		}
		fn(parseState(evt.State))
	})
}

// OnBalanceUpdate 订阅对端推送的余额更新
func (s *Session) OnBalanceUpdate(fn func(balance float64, currency string)) func() {
	return s.Subscribe(CategoryBalance, func(env *models.Envelope) {
		var resp models.BalanceResponse
		if err := json.Unmarshal(env.Raw, &resp); err != nil {
			return
		}
		fn(resp.Balance.Balance, resp.Balance.Currency)
	})
}

// OnTradeSettled 订阅交易结算事件
func (s *Session) OnTradeSettled(fn func(models.TradeRecord)) func() {
	return s.Subscribe(CategoryTrade, func(env *models.Envelope) {
		var evt struct {
			Trade models.TradeRecord `json:"trade"`
		}
		if err := json.Unmarshal(env.Raw, &evt); err != nil {
			return
		}
		fn(evt.Trade)
	})
}
