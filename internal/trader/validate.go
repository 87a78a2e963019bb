package trader

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// 中文说明：
// validate 只收紧、从不拒绝：BUY 数量夹到仓位上限内可负担的最大值，
// SELL 数量夹到当前持仓。被修正的决定在 rationale 上追加说明供审计。
// apply 对单个 Portfolio 原子生效；校验后数量为 0 的 BUY/SELL 不产生变更，
// 但保留原动作标签与理由。

// ValidateDecision 按当前持仓与价格修正决定。capFraction 为单笔买入
// 占可用现金的最大比例（如 0.3）。
func ValidateDecision(dec Decision, p *Portfolio, price float64, capFraction float64) Decision {
	if dec.Quantity < 0 {
		dec.Quantity = 0
	}
	switch dec.Action {
	case ActionBuy:
		maxQty := MaxAffordable(p.Cash(), price, capFraction)
		if dec.Quantity > maxQty {
			dec.Rationale = fmt.Sprintf("%s (adjusted: quantity clamped from %d to %d by position cap)", dec.Rationale, dec.Quantity, maxQty)
			dec.Quantity = maxQty
			dec.Adjusted = true
		}
	case ActionSell:
		held := p.Position(dec.Ticker)
		if dec.Quantity > held {
			dec.Rationale = fmt.Sprintf("%s (adjusted: quantity clamped from %d to %d held shares)", dec.Rationale, dec.Quantity, held)
			dec.Quantity = held
			dec.Adjusted = true
		}
	case ActionHold:
		dec.Quantity = 0
	}
	return dec
}

// MaxAffordable 返回 floor(capFraction × cash / price)。
func MaxAffordable(cash decimal.Decimal, price float64, capFraction float64) int64 {
	if price <= 0 || capFraction <= 0 {
		return 0
	}
	budget := cash.Mul(decimal.NewFromFloat(capFraction))
	return budget.Div(decimal.NewFromFloat(price)).Floor().IntPart()
}

// Apply 将已校验的决定作用于 Portfolio。数量为 0 时不做任何变更。
// 返回错误仅在不变量被破坏时发生（validate 被绕过的编程错误）。
func Apply(dec Decision, p *Portfolio, price float64) error {
	if dec.Quantity == 0 {
		return nil
	}
	pd := decimal.NewFromFloat(price)
	switch dec.Action {
	case ActionBuy:
		return p.debit(dec.Ticker, dec.Quantity, pd)
	case ActionSell:
		return p.credit(dec.Ticker, dec.Quantity, pd)
	default:
		return nil
	}
}
