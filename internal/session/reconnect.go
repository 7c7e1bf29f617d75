package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"deriv-trading-bot-go/internal/models"
)

// onClose 在传输连接意外断开时被回调, 驱动重连状态机。
// 显式 Disconnect 已将状态置为 Closed, 此处不再响应。
func (s *Session) onClose(code int) {
	switch s.State() {
	case StateConnected, StateConnecting, StateReconnecting:
	default:
		return
	}

	s.logger.Warn("连接意外断开", zap.Int("close_code", code))
	s.setState(StateReconnecting)
	s.scheduleRetry()
}

// scheduleRetry 按指数退避排期下一次重连: delay = base * 2^attempt
func (s *Session) scheduleRetry() {
	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	delay := s.baseDelay << uint(s.attempt)
	s.attempt++
	s.logger.Info("排期重连",
		zap.Int("attempt", s.attempt),
		zap.Duration("delay", delay))
	s.retryTimer = time.AfterFunc(delay, s.tryReconnect)
}

// tryReconnect 执行一次重连尝试。
// 连续失败达到上限后进入终态 Closed, 不再排期。
func (s *Session) tryReconnect() {
	s.reconnectMu.Lock()
	s.retryTimer = nil
	closing := s.State() != StateReconnecting
	s.reconnectMu.Unlock()
	if closing {
		// 显式断开优先于退避策略
		return
	}

	err := s.conn.Open()
	if err == nil {
		// 成功路径由 onOpen 回调完成: 置 Connected、清零计数、恢复订阅
		return
	}
	s.logger.Warn("重连失败", zap.Error(err))

	s.reconnectMu.Lock()
	exhausted := s.attempt >= s.maxAttempts
	s.reconnectMu.Unlock()

	if exhausted {
		s.logger.Error("重连次数耗尽, 会话永久关闭", zap.Int("attempts", s.maxAttempts))
		s.stateMu.Lock()
		s.permanent = true
		s.stateMu.Unlock()
		s.setState(StateClosed)
		return
	}
	s.scheduleRetry()
}

// rearm 在重连成功后恢复授权并重发所有活跃的流式订阅
func (s *Session) rearm() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.authMu.Lock()
	token := s.authToken
	s.authMu.Unlock()
	if token != "" {
		if _, err := s.Authorize(ctx, token); err != nil {
			s.logger.Error("重连后恢复授权失败", zap.Error(err))
			return
		}
	}

	s.streamMu.Lock()
	streams := make([]models.Request, 0, len(s.streams))
	for _, req := range s.streams {
		streams = append(streams, req)
	}
	s.streamMu.Unlock()

	for _, req := range streams {
		if _, err := s.Call(ctx, req); err != nil {
			s.logger.Warn("重连后恢复订阅失败", zap.Error(err), zap.Any("request", req))
		}
	}
	if len(streams) > 0 {
		s.logger.Info("重连后已恢复订阅", zap.Int("count", len(streams)))
	}
}
