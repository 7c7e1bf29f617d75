package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeKeepsRawPayload(t *testing.T) {
	raw := `{"req_id": 7, "msg_type": "tick", "tick": {"symbol": "R_10", "quote": 101.5}}`

	env, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(7), env.ReqID)
	assert.Equal(t, "tick", env.MsgType)
	assert.Nil(t, env.Error)

	var evt TickEvent
	require.NoError(t, json.Unmarshal(env.Raw, &evt))
	assert.Equal(t, "R_10", evt.Tick.Symbol)
	assert.Equal(t, 101.5, evt.Tick.Quote)
}

func TestParseEnvelopeCarriesError(t *testing.T) {
	raw := `{"req_id": 3, "msg_type": "buy", "error": {"code": "InvalidToken", "message": "token is invalid"}}`

	env, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, env.Error)
	assert.Equal(t, "InvalidToken", env.Error.Code)
	assert.Contains(t, env.Error.Error(), "InvalidToken")
}

func TestParseEnvelopeWithoutReqID(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"msg_type": "balance"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), env.ReqID)
}

func TestParseEnvelopeRejectsMalformedJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"msg_type": `))
	assert.Error(t, err)
}

func TestTradeRecordSettled(t *testing.T) {
	rec := TradeRecord{Status: TradePending}
	assert.False(t, rec.Settled())
	rec.Status = TradeWon
	assert.True(t, rec.Settled())
	rec.Status = TradeLost
	assert.True(t, rec.Settled())
}
