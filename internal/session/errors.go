package session

import "errors"

var (
	// ErrNotConnected 表示会话不在 Connected 状态, 请求被快速拒绝且不登记挂起项
	ErrNotConnected = errors.New("session: 会话未连接")

	// ErrTimeout 表示请求在超时窗口内未收到匹配应答
	ErrTimeout = errors.New("session: 请求超时")

	// ErrPermanentDisconnect 表示重连次数耗尽, 会话已永久关闭,
	// 需要调用方显式重新发起连接
	ErrPermanentDisconnect = errors.New("session: 重连次数耗尽, 会话已关闭")

	// ErrAlreadyConnected 表示会话已处于连接流程中
	ErrAlreadyConnected = errors.New("session: 会话已连接")
)
