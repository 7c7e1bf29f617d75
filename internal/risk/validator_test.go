package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv-trading-bot-go/internal/models"
)

func limits() Limits {
	return Limits{
		TradingEnabled: true,
		MinStake:       1,
		MaxStake:       10000,
	}
}

func intent(asset string, stake float64) models.TradeIntent {
	return models.TradeIntent{
		Asset:        asset,
		Duration:     1,
		DurationUnit: "m",
		Stake:        stake,
		Direction:    models.Call,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestValidateAcceptsWellFormedIntent(t *testing.T) {
	assert.NoError(t, Validate(intent("R_10", 10), limits(), floatPtr(1000)))
}

func TestValidateRejectsWhenTradingDisabled(t *testing.T) {
	l := limits()
	l.TradingEnabled = false
	// The trading switch is checked before anything else.
	err := Validate(intent("R_10", -5), l, floatPtr(0))
	assert.ErrorIs(t, err, ErrTradingDisabled)
}

func TestValidateRejectsStakeOutOfBounds(t *testing.T) {
	cases := []struct {
		name  string
		stake float64
	}{
		{"below minimum", 0.5},
		{"zero", 0},
		{"negative", -10},
		{"above maximum", 10001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(intent("R_10", tc.stake), limits(), floatPtr(100000))
			assert.ErrorIs(t, err, ErrInvalidStake)
		})
	}
}

func TestValidateBoundsAreInclusive(t *testing.T) {
	assert.NoError(t, Validate(intent("R_10", 1), limits(), nil))
	assert.NoError(t, Validate(intent("R_10", 10000), limits(), nil))
}

func TestValidateAssetOverrideReplacesGlobalBounds(t *testing.T) {
	l := limits()
	l.AssetLimits = map[string]models.AssetLimits{
		"frxEURUSD": {MinStake: 5, MaxStake: 50},
	}

	// Within global bounds but outside the asset override.
	err := Validate(intent("frxEURUSD", 100), l, nil)
	assert.ErrorIs(t, err, ErrInvalidStake)
	// Other assets keep the global bounds.
	assert.NoError(t, Validate(intent("R_10", 100), l, nil))
	assert.NoError(t, Validate(intent("frxEURUSD", 25), l, nil))
}

func TestValidateRejectsStakeAboveBalance(t *testing.T) {
	err := Validate(intent("R_10", 500), limits(), floatPtr(100))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestValidateUnknownBalanceImposesNoConstraint(t *testing.T) {
	assert.NoError(t, Validate(intent("R_10", 9999), limits(), nil))
}

func TestValidateChecksBoundsBeforeBalance(t *testing.T) {
	// Both violations present; the bounds violation wins.
	err := Validate(intent("R_10", 20000), limits(), floatPtr(10))
	assert.ErrorIs(t, err, ErrInvalidStake)
}

func TestValidateIsDeterministic(t *testing.T) {
	in := intent("R_10", 50)
	l := limits()
	balance := floatPtr(1000)
	first := Validate(in, l, balance)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Validate(in, l, balance))
	}
}
