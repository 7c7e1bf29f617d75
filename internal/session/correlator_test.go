package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv-trading-bot-go/internal/models"
)

func TestCallAssignsStrictlyIncreasingReqIDs(t *testing.T) {
	s, conn := newTestSession(t, nil)
	conn.autoReply = echoReply
	connect(t, s)

	for i := 0; i < 3; i++ {
		_, err := s.Call(context.Background(), models.Request{"ping": 1})
		require.NoError(t, err)
	}

	reqs := conn.sentRequests(t)
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		assert.Equal(t, float64(i+1), req["req_id"])
	}
}

func TestCallDoesNotMutateCallerRequest(t *testing.T) {
	s, conn := newTestSession(t, nil)
	conn.autoReply = echoReply
	connect(t, s)

	req := models.Request{"ping": 1}
	_, err := s.Call(context.Background(), req)
	require.NoError(t, err)
	_, hasReqID := req["req_id"]
	assert.False(t, hasReqID)
}

func TestCallResolvesOutOfOrderReplies(t *testing.T) {
	s, conn := newTestSession(t, nil)
	connect(t, s)

	type result struct {
		env *models.Envelope
		err error
	}
	results := make([]chan result, 2)
	for i := range results {
		results[i] = make(chan result, 1)
		i := i
		go func() {
			env, err := s.Call(context.Background(), models.Request{"seq": i})
			results[i] <- result{env, err}
		}()
	}

	require.Eventually(t, func() bool { return conn.sentCount() == 2 }, time.Second, time.Millisecond)

	// Map each outbound req_id back to the "seq" marker it carried,
	// then reply in reverse order of sending.
	reqs := conn.sentRequests(t)
	for i := len(reqs) - 1; i >= 0; i-- {
		conn.deliver(map[string]interface{}{
			"req_id":   reqs[i]["req_id"],
			"msg_type": "ok",
			"seq":      reqs[i]["seq"],
		})
	}

	for i := range results {
		select {
		case res := <-results[i]:
			require.NoError(t, res.err)
			var body struct {
				Seq int `json:"seq"`
			}
			require.NoError(t, json.Unmarshal(res.env.Raw, &body))
			assert.Equal(t, i, body.Seq, "caller received a reply correlated to another request")
		case <-time.After(time.Second):
			t.Fatal("call did not resolve")
		}
	}
}

func TestConcurrentCallsGetUniqueReqIDs(t *testing.T) {
	s, conn := newTestSession(t, nil)
	conn.autoReply = echoReply
	connect(t, s)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Call(context.Background(), models.Request{"ping": 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[float64]bool)
	for _, req := range conn.sentRequests(t) {
		id := req["req_id"].(float64)
		assert.False(t, seen[id], "req_id reused")
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, 0, s.PendingCount())
}

func TestCallTimesOutWithoutReply(t *testing.T) {
	s, _ := newTestSession(t, nil)
	connect(t, s)

	start := time.Now()
	_, err := s.Call(context.Background(), models.Request{"ping": 1})
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, 0, s.PendingCount(), "timed out request must not linger")
}

func TestCallFailsFastWhenNotConnected(t *testing.T) {
	s, conn := newTestSession(t, nil)

	_, err := s.Call(context.Background(), models.Request{"ping": 1})
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, conn.sentCount())
	assert.Equal(t, 0, s.PendingCount())
}

func TestCallAfterExplicitDisconnectReportsNotConnected(t *testing.T) {
	s, _ := newTestSession(t, nil)
	connect(t, s)
	s.Disconnect()

	// A close requested by the caller is not a permanent failure.
	_, err := s.Call(context.Background(), models.Request{"ping": 1})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestCallAfterRetryExhaustionReportsPermanentDisconnect(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 2
	s, conn := newTestSession(t, cfg)
	connect(t, s)

	conn.Lock()
	conn.openErr = assert.AnError
	conn.Unlock()
	conn.dropLink(1006)

	require.Eventually(t, func() bool { return s.State() == StateClosed },
		time.Second, time.Millisecond)

	_, err := s.Call(context.Background(), models.Request{"ping": 1})
	require.ErrorIs(t, err, ErrPermanentDisconnect)
}

func TestCallSurfacesPeerError(t *testing.T) {
	s, conn := newTestSession(t, nil)
	conn.autoReply = func(req map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"req_id":   req["req_id"],
			"msg_type": "buy",
			"error": map[string]interface{}{
				"code":    "InvalidOfferings",
				"message": "contract not offered",
			},
		}
	}
	connect(t, s)

	_, err := s.Call(context.Background(), models.Request{"buy": 1})
	var apiErr *models.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "InvalidOfferings", apiErr.Code)
	assert.Equal(t, 0, s.PendingCount())
}

func TestCallHonorsContextCancellation(t *testing.T) {
	s, _ := newTestSession(t, nil)
	connect(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := s.Call(ctx, models.Request{"ping": 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.PendingCount())
}

func TestLateReplyFallsThroughToDispatcher(t *testing.T) {
	s, conn := newTestSession(t, nil)
	connect(t, s)

	got := make(chan *models.Envelope, 1)
	s.Subscribe("tick", func(env *models.Envelope) { got <- env })

	// A reply whose req_id matches no pending request must not be dropped.
	conn.deliver(map[string]interface{}{
		"req_id":   int64(99),
		"msg_type": "tick",
		"tick":     map[string]interface{}{"symbol": "R_10", "quote": 101.5},
	})

	select {
	case env := <-got:
		assert.Equal(t, int64(99), env.ReqID)
	case <-time.After(time.Second):
		t.Fatal("unclaimed reply was not dispatched")
	}
}
