package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deriv-trading-bot-go/internal/models"
	"deriv-trading-bot-go/internal/transport"
)

// mockConn is an in-memory implementation of transport.Conn for testing.
// An optional autoReply function lets tests answer outbound requests
// synchronously, as if the peer replied instantly.
type mockConn struct {
	sync.Mutex
	cb        transport.Callbacks
	open      bool
	openErr   error
	openCalls int
	sent      [][]byte
	autoReply func(req map[string]interface{}) map[string]interface{}
}

func (m *mockConn) Open() error {
	m.Lock()
	m.openCalls++
	err := m.openErr
	if err == nil {
		m.open = true
	}
	m.Unlock()
	if err != nil {
		return err
	}
	if m.cb.OnOpen != nil {
		m.cb.OnOpen()
	}
	return nil
}

func (m *mockConn) Send(payload []byte) error {
	m.Lock()
	if !m.open {
		m.Unlock()
		return transport.ErrNotConnected
	}
	m.sent = append(m.sent, append([]byte(nil), payload...))
	reply := m.autoReply
	m.Unlock()

	if reply != nil {
		var req map[string]interface{}
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
		if resp := reply(req); resp != nil {
			m.deliver(resp)
		}
	}
	return nil
}

func (m *mockConn) Close() error {
	m.Lock()
	m.open = false
	m.Unlock()
	return nil
}

// deliver pushes an inbound message through the registered callback.
func (m *mockConn) deliver(msg map[string]interface{}) {
	data, _ := json.Marshal(msg)
	m.cb.OnMessage(data)
}

// dropLink simulates an abnormal connection loss seen by the transport.
func (m *mockConn) dropLink(code int) {
	m.Lock()
	m.open = false
	m.Unlock()
	m.cb.OnClose(code)
}

func (m *mockConn) sentCount() int {
	m.Lock()
	defer m.Unlock()
	return len(m.sent)
}

// sentRequests decodes all captured outbound payloads.
func (m *mockConn) sentRequests(t *testing.T) []map[string]interface{} {
	t.Helper()
	m.Lock()
	defer m.Unlock()
	out := make([]map[string]interface{}, 0, len(m.sent))
	for _, payload := range m.sent {
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(payload, &req))
		out = append(out, req)
	}
	return out
}

// echoReply answers any request with a bare envelope carrying the same req_id.
func echoReply(req map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"req_id":   req["req_id"],
		"msg_type": "ok",
	}
}

// derivReply emulates the subset of the peer protocol the session exercises.
func derivReply(balance float64, contractID int64) func(req map[string]interface{}) map[string]interface{} {
	return func(req map[string]interface{}) map[string]interface{} {
		switch {
		case req["authorize"] != nil:
			return map[string]interface{}{
				"req_id":   req["req_id"],
				"msg_type": "authorize",
				"authorize": map[string]interface{}{
					"loginid": "CR0001", "balance": balance, "currency": "USD",
				},
			}
		case req["buy"] != nil:
			return map[string]interface{}{
				"req_id":   req["req_id"],
				"msg_type": "buy",
				"buy": map[string]interface{}{
					"contract_id": contractID,
					"buy_price":   req["price"],
					"start_time":  1700000000,
				},
			}
		default:
			return echoReply(req)
		}
	}
}

func testConfig() *models.Config {
	return &models.Config{
		AppID:                "1089",
		Endpoint:             "ws://127.0.0.1:0",
		RequestTimeoutSec:    1,
		ReconnectBaseDelayMs: 1,
		MaxReconnectAttempts: 3,
		Currency:             "USD",
		MinStake:             1,
		MaxStake:             10000,
		TradingEnabled:       true,
	}
}

// newTestSession builds a session wired to a mockConn.
func newTestSession(t *testing.T, cfg *models.Config) (*Session, *mockConn) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	conn := &mockConn{}
	s := NewWithDialer(cfg, zap.NewNop(), func(cb transport.Callbacks) transport.Conn {
		conn.cb = cb
		return conn
	})
	return s, conn
}

// connect establishes the mock link and fails the test on error.
func connect(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Connect())
	require.Equal(t, StateConnected, s.State())
}
