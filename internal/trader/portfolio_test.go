package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioValue(t *testing.T) {
	p := NewPortfolio(10000)
	require.NoError(t, Apply(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 10}, p, 150))
	require.NoError(t, Apply(Decision{Action: ActionBuy, Ticker: "MSFT", Quantity: 5}, p, 400))

	value := p.Value(map[string]float64{"AAPL": 160, "MSFT": 410})
	// 现金 6500 + 10×160 + 5×410
	assert.Equal(t, "10150", value.String())
}

func TestPortfolioPositionsCopy(t *testing.T) {
	p := NewPortfolio(10000)
	require.NoError(t, Apply(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 3}, p, 100))

	snapshot := p.Positions()
	snapshot["AAPL"] = 999
	assert.Equal(t, int64(3), p.Position("AAPL"))
}

func TestPortfolioSellToZeroRemovesTicker(t *testing.T) {
	p := NewPortfolio(10000)
	require.NoError(t, Apply(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 4}, p, 100))
	require.NoError(t, Apply(Decision{Action: ActionSell, Ticker: "AAPL", Quantity: 4}, p, 110))

	assert.Empty(t, p.Positions())
	assert.Equal(t, "10040", p.Cash().String())
}
