package session

import (
	"context"
	"encoding/json"
	"time"

	"deriv-trading-bot-go/internal/models"
)

// pendingRequest 是请求关联器为一次在途请求登记的挂起项。
// 同一 req_id 任意时刻至多存在一个挂起项, 应答或超时二者只有其一能销毁它。
type pendingRequest struct {
	id        int64
	createdAt time.Time
	result    chan callResult // 缓冲为1, 结算方先从表中摘除再投递
}

type callResult struct {
	env *models.Envelope
	err error
}

// Call 发送一个请求并阻塞等待匹配的应答。
// req_id 严格递增且进程生命周期内不复用; 并发调用安全。
// 会话不在 Connected 状态时立即失败, 不登记挂起项。
func (s *Session) Call(ctx context.Context, req models.Request) (*models.Envelope, error) {
	if s.State() != StateConnected {
		// 重连耗尽导致的关闭单独成因, 其余一律按未连接处理
		if s.closedPermanently() {
			return nil, ErrPermanentDisconnect
		}
		return nil, ErrNotConnected
	}

	id := s.nextReqID.Add(1)

	// 复制请求再注入 req_id, 调用方持有的原始请求保持不变
	payload := make(map[string]interface{}, len(req)+1)
	for k, v := range req {
		payload[k] = v
	}
	payload["req_id"] = id

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	p := &pendingRequest{
		id:        id,
		createdAt: time.Now(),
		result:    make(chan callResult, 1),
	}
	s.pendingMu.Lock()
	s.pending[id] = p
	s.pendingMu.Unlock()

	if err := s.conn.Send(data); err != nil {
		// 发送失败不留下孤儿挂起项
		s.removePending(id)
		return nil, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-p.result:
		if res.err != nil {
			return nil, res.err
		}
		return res.env, nil
	case <-timer.C:
		// 应答可能与超时同时到达: 挂起项仍在表中则超时获胜,
		// 否则应答方已摘除挂起项并投递了结果
		if s.removePending(id) {
			return nil, ErrTimeout
		}
		res := <-p.result
		if res.err != nil {
			return nil, res.err
		}
		return res.env, nil
	case <-ctx.Done():
		s.removePending(id)
		return nil, ctx.Err()
	}
}

// resolvePending 将一条入站应答投递给等待者。
// 返回是否匹配到了挂起项; 投递前先摘除挂起项, 保证恰好结算一次。
func (s *Session) resolvePending(env *models.Envelope) bool {
	s.pendingMu.Lock()
	p, ok := s.pending[env.ReqID]
	if ok {
		delete(s.pending, env.ReqID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return false
	}

	if env.Error != nil {
		p.result <- callResult{err: env.Error}
	} else {
		p.result <- callResult{env: env}
	}
	return true
}

// removePending 从表中摘除挂起项, 返回是否确实存在
func (s *Session) removePending(id int64) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// PendingCount 返回当前在途请求数量
func (s *Session) PendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}
