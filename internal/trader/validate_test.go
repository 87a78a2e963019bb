package trader

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxAffordable(t *testing.T) {
	cash := decimal.NewFromFloat(10000)
	// 10000 × 0.3 / 175 = 17.14 → 17
	assert.Equal(t, int64(17), MaxAffordable(cash, 175, 0.3))
	assert.Equal(t, int64(0), MaxAffordable(cash, 0, 0.3))
	assert.Equal(t, int64(0), MaxAffordable(cash, 175, 0))
	assert.Equal(t, int64(0), MaxAffordable(decimal.Zero, 175, 0.3))
}

func TestValidateDecisionBuyClamp(t *testing.T) {
	p := NewPortfolio(10000)
	dec := Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 50, Rationale: "scripted"}

	got := ValidateDecision(dec, p, 175, 0.3)
	assert.Equal(t, int64(17), got.Quantity)
	assert.True(t, got.Adjusted)
	assert.Contains(t, got.Rationale, "clamped from 50 to 17")

	// 上限内的买入不被修改
	small := Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 10}
	got = ValidateDecision(small, p, 175, 0.3)
	assert.Equal(t, int64(10), got.Quantity)
	assert.False(t, got.Adjusted)
}

func TestValidateDecisionSellClamp(t *testing.T) {
	p := NewPortfolio(10000)
	require.NoError(t, Apply(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 17}, p, 175))

	dec := Decision{Action: ActionSell, Ticker: "AAPL", Quantity: 20}
	got := ValidateDecision(dec, p, 180, 0.3)
	assert.Equal(t, int64(17), got.Quantity)
	assert.True(t, got.Adjusted)

	// 未持仓时卖出夹到 0，动作标签保留
	none := ValidateDecision(Decision{Action: ActionSell, Ticker: "MSFT", Quantity: 5}, p, 400, 0.3)
	assert.Equal(t, int64(0), none.Quantity)
	assert.Equal(t, ActionSell, none.Action)
}

func TestValidateDecisionHoldAndNegative(t *testing.T) {
	p := NewPortfolio(10000)
	hold := ValidateDecision(Decision{Action: ActionHold, Ticker: "AAPL", Quantity: 7}, p, 175, 0.3)
	assert.Equal(t, int64(0), hold.Quantity)

	neg := ValidateDecision(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: -3}, p, 175, 0.3)
	assert.Equal(t, int64(0), neg.Quantity)
}

// 完整走一遍买入夹取→生效→卖出夹取→生效的资金轨迹。
func TestClampApplyRoundTrip(t *testing.T) {
	p := NewPortfolio(10000)

	buy := ValidateDecision(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 50}, p, 175, 0.3)
	require.Equal(t, int64(17), buy.Quantity)
	require.NoError(t, Apply(buy, p, 175))
	assert.Equal(t, "7025", p.Cash().String()) // 10000 − 17×175
	assert.Equal(t, int64(17), p.Position("AAPL"))

	sell := ValidateDecision(Decision{Action: ActionSell, Ticker: "AAPL", Quantity: 20}, p, 180, 0.3)
	require.Equal(t, int64(17), sell.Quantity)
	require.NoError(t, Apply(sell, p, 180))
	assert.Equal(t, "10085", p.Cash().String()) // 7025 + 17×180
	assert.Equal(t, int64(0), p.Position("AAPL"))
}

func TestApplyZeroQuantityNoop(t *testing.T) {
	p := NewPortfolio(10000)
	require.NoError(t, Apply(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 0}, p, 175))
	assert.Equal(t, "10000", p.Cash().String())
	assert.Empty(t, p.Positions())
}

func TestApplyInvariantViolations(t *testing.T) {
	p := NewPortfolio(100)
	// 绕过 validate 的超额买入必须报错且不留半状态
	err := Apply(Decision{Action: ActionBuy, Ticker: "AAPL", Quantity: 10}, p, 175)
	require.Error(t, err)
	assert.Equal(t, "100", p.Cash().String())
	assert.Equal(t, int64(0), p.Position("AAPL"))

	err = Apply(Decision{Action: ActionSell, Ticker: "AAPL", Quantity: 1}, p, 175)
	require.Error(t, err)
	assert.Equal(t, "100", p.Cash().String())
}
