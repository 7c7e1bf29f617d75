package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected 在通道未建立时调用 Send 返回
var ErrNotConnected = errors.New("transport: 连接未建立")

// Callbacks 是连接生命周期事件的监听集合, 由持有连接的会话注册, 不再向外暴露。
type Callbacks struct {
	OnOpen    func()
	OnMessage func(raw []byte)
	OnError   func(err error)
	OnClose   func(code int)
}

// Conn 抽象了一条到对端的双工通道。
// 重试逻辑不在这一层, 由上层的重连策略负责。
type Conn interface {
	// Open 建立通道。Close 之后再次调用会创建全新的底层连接。
	Open() error
	// Send 发送一帧原始报文, 通道未建立时立即失败。
	Send(payload []byte) error
	// Close 关闭通道, 幂等。
	Close() error
}

// Options 定义了 WebSocket 连接的心跳参数
type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// WSConn 是基于 gorilla/websocket 的 Conn 实现。
// 任意时刻最多持有一个底层 socket。
type WSConn struct {
	url    string
	cb     Callbacks
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex // 保护 conn 与 closing
	writeMu sync.Mutex // 串行化所有写操作(数据帧与Ping)
	conn    *websocket.Conn
	closing bool
}

// NewWSConn 创建一个未连接的 WebSocket 通道
func NewWSConn(url string, cb Callbacks, opts Options, logger *zap.Logger) *WSConn {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 54 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	return &WSConn{url: url, cb: cb, opts: opts, logger: logger}
}

// Open 建立到对端的 WebSocket 连接并启动读循环与心跳
func (w *WSConn) Open() error {
	w.mu.Lock()
	if w.conn != nil {
		w.mu.Unlock()
		return fmt.Errorf("transport: 连接已建立")
	}

	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("无法连接到 WebSocket: %w", err)
	}
	w.conn = conn
	w.closing = false
	w.mu.Unlock()

	done := make(chan struct{})
	go w.readLoop(conn, done)
	go w.pingLoop(conn, done)

	if w.cb.OnOpen != nil {
		w.cb.OnOpen()
	}
	return nil
}

// Send 发送一帧文本报文
func (w *WSConn) Send(payload []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close 主动关闭连接。幂等; 主动关闭不会触发 OnClose 回调。
func (w *WSConn) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.closing = true
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	// 尽力发送关闭帧, 失败也继续关闭底层连接
	w.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.writeMu.Unlock()

	return conn.Close()
}

// readLoop 为一个已建立的连接读取消息, 连接损坏时通知监听者
func (w *WSConn) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(w.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(w.opts.PongTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			explicit := w.closing
			if w.conn == conn {
				w.conn = nil
			}
			w.mu.Unlock()
			conn.Close()

			if explicit {
				return
			}

			code := websocket.CloseAbnormalClosure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			} else if w.cb.OnError != nil {
				w.cb.OnError(err)
			}
			if w.cb.OnClose != nil {
				w.cb.OnClose(code)
			}
			return
		}

		if w.cb.OnMessage != nil {
			w.cb.OnMessage(message)
		}
	}
}

// pingLoop 定期发送Ping以维持连接, 读循环退出后随之停止
func (w *WSConn) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				w.logger.Warn("发送Ping失败", zap.Error(err))
				return
			}
		}
	}
}
