package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"deriv-trading-bot-go/internal/ledger"
	"deriv-trading-bot-go/internal/models"
	"deriv-trading-bot-go/internal/transport"

	"go.uber.org/zap"
)

// 对外发布的固定事件类别
const (
	CategoryConnection = "connection"
	CategoryBalance    = "balance"
	CategoryTrade      = "trade"
)

// DialFunc 根据会话注册的回调构造一条传输通道。
// 测试可以借此注入内存实现。
type DialFunc func(cb transport.Callbacks) transport.Conn

// Session 是交易会话核心: 持有唯一的传输连接, 在其上叠加
// 请求关联、事件分发、重连策略与余额账本。
// 同一会话可被多个调用方共享, 通过显式依赖注入传递。
type Session struct {
	cfg    *models.Config
	conn   transport.Conn
	logger *zap.Logger

	stateMu   sync.RWMutex
	state     State
	permanent bool // Closed 是否由重连耗尽导致, 而非显式断开

	// 请求关联器
	nextReqID atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]*pendingRequest
	timeout   time.Duration

	// 事件分发器
	handlerMu sync.Mutex
	handlers  map[string][]*subscription
	subSeq    int64

	// 重连策略
	reconnectMu sync.Mutex
	attempt     int
	retryTimer  *time.Timer
	baseDelay   time.Duration
	maxAttempts int

	// 活跃的流式订阅请求, 重连成功后原样重发
	streamMu sync.Mutex
	streams  map[string]models.Request

	// 余额账本与交易跟踪
	ledger   *ledger.Ledger
	recordMu sync.Mutex
	records  map[int64]*models.TradeRecord

	authMu    sync.Mutex
	authToken string
}

// New 创建一个使用真实 WebSocket 传输的会话
func New(cfg *models.Config, logger *zap.Logger) *Session {
	return NewWithDialer(cfg, logger, func(cb transport.Callbacks) transport.Conn {
		url := fmt.Sprintf("%s?app_id=%s", cfg.Endpoint, cfg.AppID)
		return transport.NewWSConn(url, cb, transport.Options{
			PingInterval: time.Duration(cfg.PingIntervalSec) * time.Second,
			PongTimeout:  time.Duration(cfg.PongTimeoutSec) * time.Second,
		}, logger)
	})
}

// NewWithDialer 创建会话并由 dial 提供传输通道
func NewWithDialer(cfg *models.Config, logger *zap.Logger, dial DialFunc) *Session {
	s := &Session{
		cfg:         cfg,
		logger:      logger,
		state:       StateDisconnected,
		pending:     make(map[int64]*pendingRequest),
		timeout:     time.Duration(cfg.RequestTimeoutSec) * time.Second,
		handlers:    make(map[string][]*subscription),
		baseDelay:   time.Duration(cfg.ReconnectBaseDelayMs) * time.Millisecond,
		maxAttempts: cfg.MaxReconnectAttempts,
		streams:     make(map[string]models.Request),
		ledger:      ledger.New(),
		records:     make(map[int64]*models.TradeRecord),
	}
	s.conn = dial(transport.Callbacks{
		OnOpen:    s.onOpen,
		OnMessage: s.onMessage,
		OnError:   s.onError,
		OnClose:   s.onClose,
	})

	// 合约结算推送由会话自身消费, 驱动账本与 trade 事件
	s.Subscribe("proposal_open_contract", s.onContractUpdate)
	return s
}

// State 返回当前连接状态
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Ledger 返回会话的余额账本
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// Connect 建立到对端的连接。会话处于 Closed 状态时允许显式重新发起,
// 此时重连计数被重置。
func (s *Session) Connect() error {
	s.stateMu.Lock()
	switch s.state {
	case StateConnected, StateConnecting, StateReconnecting:
		s.stateMu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.permanent = false
	s.stateMu.Unlock()
	s.publishState(StateConnecting)

	s.reconnectMu.Lock()
	s.attempt = 0
	s.reconnectMu.Unlock()

	if err := s.conn.Open(); err != nil {
		s.setState(StateDisconnected)
		return err
	}
	return nil
}

// Disconnect 显式断开会话。取消任何排期中的重连并直接进入 Closed,
// 优先于退避策略。幂等。
func (s *Session) Disconnect() {
	s.reconnectMu.Lock()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.reconnectMu.Unlock()

	s.stateMu.Lock()
	s.permanent = false
	s.stateMu.Unlock()
	s.setState(StateClosed)
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("关闭传输连接失败", zap.Error(err))
	}
}

// closedPermanently 返回 Closed 状态是否由重连耗尽导致
func (s *Session) closedPermanently() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state == StateClosed && s.permanent
}

// setState 更新状态并通知 connection 类别的订阅者
func (s *Session) setState(next State) {
	s.stateMu.Lock()
	if s.state == next {
		s.stateMu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.stateMu.Unlock()

	s.logger.Info("会话状态变更",
		zap.String("from", prev.String()),
		zap.String("to", next.String()))
	s.publishState(next)
}

// onOpen 在传输连接建立后被回调
func (s *Session) onOpen() {
	// 重连尝试可能与显式 Disconnect 竞争: 用户已要求关闭时,
	// 迟到的连接成功不得复活会话
	if s.State() == StateClosed {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("关闭迟到的重连连接失败", zap.Error(err))
		}
		return
	}

	s.reconnectMu.Lock()
	wasReconnect := s.attempt > 0
	s.attempt = 0
	s.reconnectMu.Unlock()

	s.setState(StateConnected)

	if wasReconnect {
		// 重连成功: 先恢复授权, 再重发所有活跃订阅, 价格与余额流透明恢复
		go s.rearm()
	}
}

// onError 处理传输层异步错误
func (s *Session) onError(err error) {
	s.logger.Warn("传输层错误", zap.Error(err))
}

// onMessage 是会话唯一的入站处理路径, 消息按到达顺序逐条处理
func (s *Session) onMessage(raw []byte) {
	env, err := models.ParseEnvelope(raw)
	if err != nil {
		s.logger.Warn("解析入站报文失败", zap.Error(err))
		return
	}

	// 携带 req_id 且能匹配到挂起请求的消息归请求关联器独占;
	// 匹配不到挂起项的应答不会唤醒过期的等待者, 仅按类别继续分发
	if env.ReqID != 0 {
		if s.resolvePending(env) {
			return
		}
		s.logger.Debug("应答未匹配到挂起请求", zap.Int64("req_id", env.ReqID))
	}

	if env.MsgType != "" {
		s.dispatch(env.MsgType, env)
	}
}
