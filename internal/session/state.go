package session

// State 表示会话连接状态机的一个状态。
// 状态转换是观察者获知传输层健康状况的唯一途径。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed // 终态: 显式断开或重连次数耗尽
)

// String 返回状态的可读名称
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// parseState 将名称还原为状态, 供状态变更事件的订阅方使用
func parseState(name string) State {
	switch name {
	case "DISCONNECTED":
		return StateDisconnected
	case "CONNECTING":
		return StateConnecting
	case "CONNECTED":
		return StateConnected
	case "RECONNECTING":
		return StateReconnecting
	case "CLOSED":
		return StateClosed
	default:
		return StateDisconnected
	}
}
