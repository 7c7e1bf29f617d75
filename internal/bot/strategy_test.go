package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProgressionRejectsUnknownStrategy(t *testing.T) {
	_, err := newProgression("no-such-strategy", 10)
	assert.Error(t, err)
}

func TestMartingaleDoublesOnLossAndResetsOnWin(t *testing.T) {
	p, err := newProgression("martingale", 10)
	require.NoError(t, err)

	assert.Equal(t, 10.0, p.Next())
	p.OnLoss()
	assert.Equal(t, 20.0, p.Next())
	p.OnLoss()
	assert.Equal(t, 40.0, p.Next())
	p.OnWin()
	assert.Equal(t, 10.0, p.Next())
}

func TestFibonacciStepsForwardOnLossBackTwoOnWin(t *testing.T) {
	p, err := newProgression("fibonacci", 10)
	require.NoError(t, err)

	// Sequence: 1, 1, 2, 3, 5, 8
	assert.Equal(t, 10.0, p.Next())
	p.OnLoss()
	assert.Equal(t, 10.0, p.Next())
	p.OnLoss()
	assert.Equal(t, 20.0, p.Next())
	p.OnLoss()
	assert.Equal(t, 30.0, p.Next())
	p.OnLoss()
	assert.Equal(t, 50.0, p.Next())

	p.OnWin()
	assert.Equal(t, 20.0, p.Next())
	p.OnWin()
	assert.Equal(t, 10.0, p.Next())
	p.OnWin() // index never goes negative
	assert.Equal(t, 10.0, p.Next())
}

func TestDalembertAddsAndRemovesOneUnit(t *testing.T) {
	p, err := newProgression("d'alembert", 5)
	require.NoError(t, err)

	assert.Equal(t, 5.0, p.Next())
	p.OnLoss()
	p.OnLoss()
	assert.Equal(t, 15.0, p.Next())
	p.OnWin()
	assert.Equal(t, 10.0, p.Next())
	p.OnWin()
	p.OnWin() // never drops below one unit
	assert.Equal(t, 5.0, p.Next())
}

func TestOscarsGrindResetsAfterOneUnitProfit(t *testing.T) {
	p, err := newProgression("oscars-grind", 10)
	require.NoError(t, err)

	assert.Equal(t, 10.0, p.Next())
	p.OnLoss() // cycle at -1 unit
	assert.Equal(t, 10.0, p.Next(), "stake stays flat after a loss")
	p.OnWin() // cycle at 0, stake grows to 2 units
	assert.Equal(t, 10.0, p.Next(), "stake is capped at the amount needed to finish the cycle")
	p.OnWin() // cycle target reached, progression resets
	assert.Equal(t, 10.0, p.Next())
}

func TestProgressionResetRestoresBaseStake(t *testing.T) {
	for _, name := range []string{"martingale", "fibonacci", "d'alembert", "oscars-grind"} {
		t.Run(name, func(t *testing.T) {
			p, err := newProgression(name, 10)
			require.NoError(t, err)
			p.OnLoss()
			p.OnLoss()
			p.Reset()
			assert.Equal(t, 10.0, p.Next())
		})
	}
}
