package simulator

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server 是一个进程内的模拟对端, 实现演示模式所需的最小协议子集:
// authorize, balance, ticks, active_symbols, proposal, buy, sell,
// proposal_open_contract, profit_table, statement。
// 价格走随机游走, 合约到期按赔付比例结算。
type Server struct {
	initialBalance float64
	payoutRatio    float64
	logger         *zap.Logger
	upgrader       websocket.Upgrader

	listener net.Listener
	httpSrv  *http.Server

	mu           sync.Mutex
	nextContract int64
}

// NewServer 创建模拟对端
func NewServer(initialBalance, payoutRatio float64, logger *zap.Logger) *Server {
	return &Server{
		initialBalance: initialBalance,
		payoutRatio:    payoutRatio,
		logger:         logger,
		upgrader:       websocket.Upgrader{},
	}
}

// Start 在环回地址上启动服务, 返回 WebSocket 接入点
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/websockets/v3", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("模拟服务异常退出", zap.Error(err))
		}
	}()

	url := fmt.Sprintf("ws://%s/websockets/v3", ln.Addr().String())
	s.logger.Info("模拟对端已启动", zap.String("endpoint", url))
	return url, nil
}

// Stop 关闭模拟服务
func (s *Server) Stop() {
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
}

// simConn 是一条模拟连接的会话状态
type simConn struct {
	srv     *Server
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	balance   float64
	prices    map[string]float64     // 品种 -> 最新价
	contracts map[int64]*simContract // 未结算的持仓
	history   []simSettlement        // 已结算合约, 按时间顺序
	stmts     []simTxn               // 账户流水, 按时间顺序
	tickSubs  map[string]bool
	balanceOn bool
	closed    bool
	rng       *rand.Rand
}

// simContract 是一张未到期合约的买入参数
type simContract struct {
	symbol   string
	ctype    string
	stake    float64
	entry    float64
	buyTime  int64
	longcode string
}

// simSettlement 是一条已结算合约记录, 支撑 profit_table 查询
type simSettlement struct {
	contractID int64
	buyPrice   float64
	sellPrice  float64
	buyTime    int64
	sellTime   int64
	longcode   string
}

// simTxn 是一条账户流水, 支撑 statement 查询
type simTxn struct {
	transactionID int64
	contractID    int64
	action        string
	amount        float64
	balanceAfter  float64
	at            int64
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("升级 WebSocket 失败", zap.Error(err))
		return
	}
	c := &simConn{
		srv:       s,
		conn:      conn,
		balance:   s.initialBalance,
		prices:    make(map[string]float64),
		contracts: make(map[int64]*simContract),
		tickSubs:  make(map[string]bool),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	go c.tickLoop()
	c.readLoop()
}

func (c *simConn) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]interface{}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		c.handle(req)
	}
}

func (c *simConn) handle(req map[string]interface{}) {
	reqID, _ := req["req_id"].(float64)

	switch {
	case req["authorize"] != nil:
		c.mu.Lock()
		balance := c.balance
		c.mu.Unlock()
		c.reply(reqID, "authorize", map[string]interface{}{
			"authorize": map[string]interface{}{
				"loginid":    "VRTC0001",
				"balance":    balance,
				"currency":   "USD",
				"email":      "demo@localhost",
				"is_virtual": 1,
			},
		})

	case req["balance"] != nil:
		c.mu.Lock()
		c.balanceOn = true
		balance := c.balance
		c.mu.Unlock()
		c.reply(reqID, "balance", map[string]interface{}{
			"balance": map[string]interface{}{
				"balance": balance, "currency": "USD", "loginid": "VRTC0001",
			},
		})

	case req["active_symbols"] != nil:
		c.reply(reqID, "active_symbols", map[string]interface{}{
			"active_symbols": []map[string]interface{}{
				{"symbol": "R_10", "display_name": "Volatility 10 Index", "market": "synthetic_index", "pip": 0.001, "exchange_is_open": 1, "is_trading_suspended": 0},
				{"symbol": "R_100", "display_name": "Volatility 100 Index", "market": "synthetic_index", "pip": 0.01, "exchange_is_open": 1, "is_trading_suspended": 0},
				{"symbol": "frxEURUSD", "display_name": "EUR/USD", "market": "forex", "pip": 0.00001, "exchange_is_open": 1, "is_trading_suspended": 0},
			},
		})

	case req["ticks"] != nil:
		symbol, _ := req["ticks"].(string)
		c.mu.Lock()
		c.tickSubs[symbol] = true
		price := c.price(symbol)
		c.mu.Unlock()
		c.reply(reqID, "tick", map[string]interface{}{
			"tick": map[string]interface{}{
				"symbol": symbol, "quote": price, "bid": price, "ask": price,
				"epoch": time.Now().Unix(),
			},
		})

	case req["proposal"] != nil:
		amount, _ := req["amount"].(float64)
		symbol, _ := req["symbol"].(string)
		c.mu.Lock()
		spot := c.price(symbol)
		c.mu.Unlock()
		c.reply(reqID, "proposal", map[string]interface{}{
			"proposal": map[string]interface{}{
				"id":        fmt.Sprintf("prop-%d", time.Now().UnixNano()),
				"ask_price": amount,
				"payout":    amount * (1 + c.srv.payoutRatio),
				"spot":      spot,
			},
		})

	case req["buy"] != nil:
		c.handleBuy(reqID, req)

	case req["sell"] != nil:
		c.handleSell(reqID, req)

	case req["profit_table"] != nil:
		c.handleProfitTable(reqID, req)

	case req["statement"] != nil:
		c.handleStatement(reqID, req)

	case req["proposal_open_contract"] != nil:
		// 结算由买入时排期的推送完成, 这里仅确认订阅
		c.reply(reqID, "proposal_open_contract", map[string]interface{}{
			"proposal_open_contract": map[string]interface{}{},
		})

	default:
		c.replyError(reqID, "UnrecognisedRequest", "未知的请求类型")
	}
}

func (c *simConn) handleBuy(reqID float64, req map[string]interface{}) {
	params, _ := req["parameters"].(map[string]interface{})
	stake, _ := req["price"].(float64)
	symbol, _ := params["symbol"].(string)
	contractType, _ := params["contract_type"].(string)
	duration := 1.0
	if d, ok := params["duration"].(float64); ok {
		duration = d
	}
	unit, _ := params["duration_unit"].(string)

	c.srv.mu.Lock()
	c.srv.nextContract++
	contractID := c.srv.nextContract
	c.srv.mu.Unlock()

	now := time.Now().Unix()
	longcode := fmt.Sprintf("%s on %s, stake %.2f", contractType, symbol, stake)

	c.mu.Lock()
	if stake > c.balance {
		c.mu.Unlock()
		c.replyError(reqID, "InsufficientBalance", "余额不足")
		return
	}
	c.balance -= stake
	c.contracts[contractID] = &simContract{
		symbol:   symbol,
		ctype:    contractType,
		stake:    stake,
		entry:    c.price(symbol),
		buyTime:  now,
		longcode: longcode,
	}
	c.recordTxn(contractID, "buy", -stake, now)
	c.mu.Unlock()

	c.reply(reqID, "buy", map[string]interface{}{
		"buy": map[string]interface{}{
			"contract_id":    contractID,
			"transaction_id": contractID * 10,
			"buy_price":      stake,
			"payout":         stake * (1 + c.srv.payoutRatio),
			"start_time":     now,
			"longcode":       longcode,
		},
	})
	c.pushBalance()

	settleAfter := time.Duration(duration) * time.Second
	switch unit {
	case "m":
		settleAfter = time.Duration(duration) * time.Minute
	case "h":
		settleAfter = time.Duration(duration) * time.Hour
	}
	// 演示模式下结算不超过10秒, 否则等待体验太差
	if settleAfter > 10*time.Second {
		settleAfter = 10 * time.Second
	}
	time.AfterFunc(settleAfter, func() {
		c.settle(contractID)
	})
}

// settle 按入场价与当前价的相对方向结算一张到期合约并推送结果。
// 合约已被提前平仓或连接已关闭时不做任何事。
func (c *simConn) settle(contractID int64) {
	c.mu.Lock()
	ct, open := c.contracts[contractID]
	if c.closed || !open {
		c.mu.Unlock()
		return
	}
	delete(c.contracts, contractID)

	now := time.Now().Unix()
	exit := c.price(ct.symbol)
	won := (ct.ctype == "CALL" && exit > ct.entry) || (ct.ctype == "PUT" && exit < ct.entry)
	profit := -ct.stake
	payout := 0.0
	status := "lost"
	if won {
		profit = ct.stake * c.srv.payoutRatio
		payout = ct.stake + profit
		c.balance += payout
		status = "won"
	}
	c.closeContract(contractID, ct, payout, now)
	c.mu.Unlock()

	c.push("proposal_open_contract", map[string]interface{}{
		"proposal_open_contract": map[string]interface{}{
			"contract_id": contractID,
			"status":      status,
			"is_sold":     1,
			"profit":      profit,
			"entry_spot":  ct.entry,
			"exit_tick":   exit,
			"sell_time":   now,
		},
	})
	c.pushBalance()
}

// handleSell 在到期前按当前价平仓: 价内合约按全额赔付兑现, 价外归零
func (c *simConn) handleSell(reqID float64, req map[string]interface{}) {
	contractID := int64(0)
	if id, ok := req["sell"].(float64); ok {
		contractID = int64(id)
	}

	c.mu.Lock()
	ct, open := c.contracts[contractID]
	if !open {
		c.mu.Unlock()
		c.replyError(reqID, "InvalidSellContractProposal", "合约不存在或已结算")
		return
	}
	delete(c.contracts, contractID)

	now := time.Now().Unix()
	exit := c.price(ct.symbol)
	won := (ct.ctype == "CALL" && exit > ct.entry) || (ct.ctype == "PUT" && exit < ct.entry)
	soldFor := 0.0
	if won {
		soldFor = ct.stake * (1 + c.srv.payoutRatio)
	}
	c.balance += soldFor
	c.closeContract(contractID, ct, soldFor, now)
	c.mu.Unlock()

	c.reply(reqID, "sell", map[string]interface{}{
		"sell": map[string]interface{}{
			"contract_id":    contractID,
			"transaction_id": contractID*10 + 1,
			"sold_for":       soldFor,
		},
	})
	c.push("proposal_open_contract", map[string]interface{}{
		"proposal_open_contract": map[string]interface{}{
			"contract_id": contractID,
			"status":      "sold",
			"is_sold":     1,
			"profit":      soldFor - ct.stake,
			"entry_spot":  ct.entry,
			"exit_tick":   exit,
			"sell_time":   now,
		},
	})
	c.pushBalance()
}

func (c *simConn) handleProfitTable(reqID float64, req map[string]interface{}) {
	limit := queryLimit(req)

	c.mu.Lock()
	txns := make([]map[string]interface{}, 0, limit)
	// 最近的合约排在最前
	for i := len(c.history) - 1; i >= 0 && len(txns) < limit; i-- {
		st := c.history[i]
		txns = append(txns, map[string]interface{}{
			"contract_id":   st.contractID,
			"buy_price":     st.buyPrice,
			"sell_price":    st.sellPrice,
			"purchase_time": st.buyTime,
			"sell_time":     st.sellTime,
			"longcode":      st.longcode,
		})
	}
	c.mu.Unlock()

	c.reply(reqID, "profit_table", map[string]interface{}{
		"profit_table": map[string]interface{}{
			"count":        len(txns),
			"transactions": txns,
		},
	})
}

func (c *simConn) handleStatement(reqID float64, req map[string]interface{}) {
	limit := queryLimit(req)

	c.mu.Lock()
	txns := make([]map[string]interface{}, 0, limit)
	for i := len(c.stmts) - 1; i >= 0 && len(txns) < limit; i-- {
		tx := c.stmts[i]
		txns = append(txns, map[string]interface{}{
			"transaction_id":   tx.transactionID,
			"contract_id":      tx.contractID,
			"action_type":      tx.action,
			"amount":           tx.amount,
			"balance_after":    tx.balanceAfter,
			"transaction_time": tx.at,
		})
	}
	c.mu.Unlock()

	c.reply(reqID, "statement", map[string]interface{}{
		"statement": map[string]interface{}{
			"count":        len(txns),
			"transactions": txns,
		},
	})
}

// closeContract 登记一张合约离场后的历史与流水。
// 必须在持锁状态下调用。
func (c *simConn) closeContract(contractID int64, ct *simContract, credited float64, now int64) {
	c.history = append(c.history, simSettlement{
		contractID: contractID,
		buyPrice:   ct.stake,
		sellPrice:  credited,
		buyTime:    ct.buyTime,
		sellTime:   now,
		longcode:   ct.longcode,
	})
	c.recordTxn(contractID, "sell", credited, now)
}

// recordTxn 追加一条账户流水。必须在持锁状态下调用。
func (c *simConn) recordTxn(contractID int64, action string, amount float64, at int64) {
	c.stmts = append(c.stmts, simTxn{
		transactionID: int64(len(c.stmts)) + 1,
		contractID:    contractID,
		action:        action,
		amount:        amount,
		balanceAfter:  c.balance,
		at:            at,
	})
}

// queryLimit 解析查询请求的 limit 参数, 缺省返回50
func queryLimit(req map[string]interface{}) int {
	if v, ok := req["limit"].(float64); ok && v > 0 {
		return int(v)
	}
	return 50
}

// tickLoop 周期性推送已订阅品种的随机游走报价
func (c *simConn) tickLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		type tick struct {
			symbol string
			quote  float64
		}
		var ticks []tick
		for symbol := range c.tickSubs {
			price := c.price(symbol)
			price *= 1 + (c.rng.Float64()-0.5)*0.002
			c.prices[symbol] = price
			ticks = append(ticks, tick{symbol, price})
		}
		c.mu.Unlock()

		for _, t := range ticks {
			c.push("tick", map[string]interface{}{
				"tick": map[string]interface{}{
					"symbol": t.symbol, "quote": t.quote, "bid": t.quote, "ask": t.quote,
					"epoch": time.Now().Unix(),
				},
			})
		}
	}
}

// price 返回品种的当前价, 首次访问时用随机基准初始化。
// 必须在持锁状态下调用。
func (c *simConn) price(symbol string) float64 {
	if p, ok := c.prices[symbol]; ok {
		return p
	}
	p := 100 + c.rng.Float64()*900
	c.prices[symbol] = p
	return p
}

func (c *simConn) pushBalance() {
	c.mu.Lock()
	on := c.balanceOn
	balance := c.balance
	c.mu.Unlock()
	if !on {
		return
	}
	c.push("balance", map[string]interface{}{
		"balance": map[string]interface{}{
			"balance": balance, "currency": "USD", "loginid": "VRTC0001",
		},
	})
}

// reply 发送一条携带 req_id 的应答
func (c *simConn) reply(reqID float64, msgType string, body map[string]interface{}) {
	body["msg_type"] = msgType
	if reqID != 0 {
		body["req_id"] = int64(reqID)
	}
	c.write(body)
}

func (c *simConn) replyError(reqID float64, code, message string) {
	body := map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": message},
	}
	if reqID != 0 {
		body["req_id"] = int64(reqID)
	}
	c.write(body)
}

// push 发送一条不关联请求的推送消息
func (c *simConn) push(msgType string, body map[string]interface{}) {
	body["msg_type"] = msgType
	c.write(body)
}

func (c *simConn) write(body map[string]interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}
