package models

import "encoding/json"

// Request 是发往对端的原始消息体。
// 会话在发送前注入 "req_id" 字段, 对端的应答会携带相同的 req_id。
type Request map[string]interface{}

// Envelope 是所有入站消息的公共外层。
// 携带 req_id 的消息路由给请求关联器, 其余按 msg_type 分发给订阅者;
// error 字段存在时请求直接以失败结束。
type Envelope struct {
	ReqID        int64           `json:"req_id,omitempty"`
	MsgType      string          `json:"msg_type,omitempty"`
	Error        *APIError       `json:"error,omitempty"`
	Subscription *Subscription   `json:"subscription,omitempty"`
	Raw          json.RawMessage `json:"-"` // 完整原始报文, 供类型化解析
}

// ParseEnvelope 解析入站原始报文的外层字段并保留原始内容
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	env.Raw = append(json.RawMessage(nil), data...)
	return &env, nil
}

// Subscription 是对端为流式订阅分配的标识
type Subscription struct {
	ID string `json:"id"`
}

// AuthorizeResponse 是 authorize 请求的应答
type AuthorizeResponse struct {
	Authorize struct {
		LoginID   string  `json:"loginid"`
		Balance   float64 `json:"balance"`
		Currency  string  `json:"currency"`
		Email     string  `json:"email"`
		IsVirtual int     `json:"is_virtual"`
	} `json:"authorize"`
}

// BalanceResponse 是 balance 请求应答, 也是 balance 推送消息的载荷
type BalanceResponse struct {
	Balance struct {
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
		LoginID  string  `json:"loginid"`
	} `json:"balance"`
}

// TickEvent 是 tick 推送消息的载荷
type TickEvent struct {
	Tick struct {
		Symbol string  `json:"symbol"`
		Quote  float64 `json:"quote"`
		Bid    float64 `json:"bid"`
		Ask    float64 `json:"ask"`
		Epoch  int64   `json:"epoch"`
	} `json:"tick"`
}

// ProposalResponse 是 proposal (报价) 请求的应答
type ProposalResponse struct {
	Proposal struct {
		ID       string  `json:"id"`
		AskPrice float64 `json:"ask_price"`
		Payout   float64 `json:"payout"`
		Spot     float64 `json:"spot"`
	} `json:"proposal"`
}

// BuyResponse 是 buy (买入合约) 请求的应答
type BuyResponse struct {
	Buy struct {
		ContractID    int64   `json:"contract_id"`
		TransactionID int64   `json:"transaction_id"`
		BuyPrice      float64 `json:"buy_price"`
		Payout        float64 `json:"payout"`
		StartTime     int64   `json:"start_time"`
		LongCode      string  `json:"longcode"`
	} `json:"buy"`
}

// SellResponse 是 sell (平仓) 请求的应答
type SellResponse struct {
	Sell struct {
		ContractID    int64   `json:"contract_id"`
		TransactionID int64   `json:"transaction_id"`
		SoldFor       float64 `json:"sold_for"`
	} `json:"sell"`
}

// ContractUpdate 是 proposal_open_contract 推送的载荷, 用于跟踪合约结算
type ContractUpdate struct {
	Contract struct {
		ContractID int64   `json:"contract_id"`
		Status     string  `json:"status"` // "open", "won", "lost", "sold"
		IsSold     int     `json:"is_sold"`
		Profit     float64 `json:"profit"`
		EntrySpot  float64 `json:"entry_spot"`
		ExitSpot   float64 `json:"exit_tick"`
		DateStart  int64   `json:"date_start"`
		SellTime   int64   `json:"sell_time"`
	} `json:"proposal_open_contract"`
}

// ActiveSymbol 描述对端返回的一个可交易品种
type ActiveSymbol struct {
	Symbol             string  `json:"symbol"`
	DisplayName        string  `json:"display_name"`
	Market             string  `json:"market"`
	Submarket          string  `json:"submarket"`
	Pip                float64 `json:"pip"`
	ExchangeIsOpen     int     `json:"exchange_is_open"`
	IsTradingSuspended int     `json:"is_trading_suspended"`
}

// ActiveSymbolsResponse 是 active_symbols 请求的应答
type ActiveSymbolsResponse struct {
	ActiveSymbols []ActiveSymbol `json:"active_symbols"`
}

// ProfitTableResponse 是 profit_table (已完结交易) 请求的应答
type ProfitTableResponse struct {
	ProfitTable struct {
		Count        int `json:"count"`
		Transactions []struct {
			ContractID   int64   `json:"contract_id"`
			BuyPrice     float64 `json:"buy_price"`
			SellPrice    float64 `json:"sell_price"`
			PurchaseTime int64   `json:"purchase_time"`
			SellTime     int64   `json:"sell_time"`
			LongCode     string  `json:"longcode"`
		} `json:"transactions"`
	} `json:"profit_table"`
}

// StatementResponse 是 statement (账户流水) 请求的应答
type StatementResponse struct {
	Statement struct {
		Count        int `json:"count"`
		Transactions []struct {
			TransactionID   int64   `json:"transaction_id"`
			ContractID      int64   `json:"contract_id"`
			ActionType      string  `json:"action_type"`
			Amount          float64 `json:"amount"`
			BalanceAfter    float64 `json:"balance_after"`
			TransactionTime int64   `json:"transaction_time"`
		} `json:"transactions"`
	} `json:"statement"`
}
