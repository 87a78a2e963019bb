package trader

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// 中文说明：
// Portfolio 由唯一一个 Agent 独占，只被 Apply 串行修改。
// 引擎保证单写者，因此这里不加锁；资金用 decimal 避免浮点累计误差。
// 不变量：cash >= 0；positions 中任何 key 的数量 > 0（清零即删 key）。

type Portfolio struct {
	cash      decimal.Decimal
	positions map[string]int64
}

func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      decimal.NewFromFloat(initialCash),
		positions: make(map[string]int64),
	}
}

func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// Position 返回某 ticker 的持仓数量（无持仓为 0）。
func (p *Portfolio) Position(ticker string) int64 {
	return p.positions[ticker]
}

// Positions 返回持仓副本（ticker 升序无关，map 语义）。
func (p *Portfolio) Positions() map[string]int64 {
	out := make(map[string]int64, len(p.positions))
	for k, v := range p.positions {
		out[k] = v
	}
	return out
}

// Tickers 返回当前持仓 ticker 列表，升序。
func (p *Portfolio) Tickers() []string {
	out := make([]string, 0, len(p.positions))
	for k := range p.positions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Value 按给定价格表计算总市值（现金 + 持仓）。
func (p *Portfolio) Value(prices map[string]float64) decimal.Decimal {
	total := p.cash
	for ticker, qty := range p.positions {
		price := decimal.NewFromFloat(prices[ticker])
		total = total.Add(price.Mul(decimal.NewFromInt(qty)))
	}
	return total
}

// debit 买入扣款并加仓。现金不足属于校验被绕过的编程错误，直接报错。
func (p *Portfolio) debit(ticker string, qty int64, price decimal.Decimal) error {
	cost := price.Mul(decimal.NewFromInt(qty))
	next := p.cash.Sub(cost)
	if next.IsNegative() {
		return fmt.Errorf("portfolio invariant violated: 买入 %s x%d 导致现金为负（validate 被绕过）", ticker, qty)
	}
	p.cash = next
	p.positions[ticker] += qty
	return nil
}

// credit 卖出回款并减仓，数量清零时删除 key。
func (p *Portfolio) credit(ticker string, qty int64, price decimal.Decimal) error {
	held := p.positions[ticker]
	if qty > held {
		return fmt.Errorf("portfolio invariant violated: 卖出 %s x%d 超过持仓 %d（validate 被绕过）", ticker, qty, held)
	}
	p.cash = p.cash.Add(price.Mul(decimal.NewFromInt(qty)))
	remaining := held - qty
	if remaining == 0 {
		delete(p.positions, ticker)
	} else {
		p.positions[ticker] = remaining
	}
	return nil
}
