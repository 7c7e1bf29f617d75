package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv-trading-bot-go/internal/models"
)

func settledTrade(id int64, profitLoss float64) models.TradeRecord {
	status := models.TradeLost
	if profitLoss > 0 {
		status = models.TradeWon
	}
	return models.TradeRecord{
		ID:         id,
		Asset:      "R_10",
		Direction:  models.Call,
		Stake:      10,
		ProfitLoss: profitLoss,
		Status:     status,
	}
}

func TestBalanceUnknownBeforeInitial(t *testing.T) {
	l := New()
	_, known := l.Balance()
	assert.False(t, known)
	assert.Nil(t, l.KnownBalance())
}

func TestWinningTradeCreditsStakeTimesPayout(t *testing.T) {
	l := New()
	l.SetInitial(1000)

	// 10.00 stake at the 0.75 payout ratio yields +7.50.
	rec := settledTrade(1, 7.5)
	require.True(t, l.Apply(&rec))

	balance, known := l.Balance()
	require.True(t, known)
	assert.Equal(t, 1007.5, balance)
}

func TestLosingTradeDebitsStake(t *testing.T) {
	l := New()
	l.SetInitial(1000)

	rec := settledTrade(1, -10)
	require.True(t, l.Apply(&rec))

	balance, _ := l.Balance()
	assert.Equal(t, 990.0, balance)
}

func TestApplyIgnoresPendingTrades(t *testing.T) {
	l := New()
	l.SetInitial(1000)

	rec := settledTrade(1, 7.5)
	rec.Status = models.TradePending
	assert.False(t, l.Apply(&rec))

	balance, _ := l.Balance()
	assert.Equal(t, 1000.0, balance)
}

func TestApplyIsIdempotentPerContract(t *testing.T) {
	l := New()
	l.SetInitial(1000)

	rec := settledTrade(1, 7.5)
	require.True(t, l.Apply(&rec))
	assert.False(t, l.Apply(&rec), "second apply of the same contract must be a no-op")

	balance, _ := l.Balance()
	assert.Equal(t, 1007.5, balance)
}

func TestKnownBalanceTracksAppliedTrades(t *testing.T) {
	l := New()
	l.SetInitial(100)

	win := settledTrade(1, 7.5)
	loss := settledTrade(2, -10)
	l.Apply(&win)
	l.Apply(&loss)

	balance := l.KnownBalance()
	require.NotNil(t, balance)
	assert.Equal(t, 97.5, *balance)
}

func TestSetInitialResetsAppliedTrades(t *testing.T) {
	l := New()
	l.SetInitial(1000)
	rec := settledTrade(1, 7.5)
	l.Apply(&rec)

	l.SetInitial(500)
	balance, _ := l.Balance()
	assert.Equal(t, 500.0, balance)
}

func TestCurrentBalanceDerivesFromRecords(t *testing.T) {
	records := []models.TradeRecord{
		settledTrade(1, 7.5),
		settledTrade(2, -10),
		settledTrade(3, 15),
	}
	assert.Equal(t, 1012.5, CurrentBalance(1000, records))
}

func TestCurrentBalanceSkipsPendingAndDuplicates(t *testing.T) {
	pending := settledTrade(4, 99)
	pending.Status = models.TradePending

	records := []models.TradeRecord{
		settledTrade(1, 7.5),
		settledTrade(1, 7.5), // duplicate contract id counted once
		pending,
	}
	assert.Equal(t, 1007.5, CurrentBalance(1000, records))
}

func TestCurrentBalanceEmptyRecords(t *testing.T) {
	assert.Equal(t, 1000.0, CurrentBalance(1000, nil))
}
