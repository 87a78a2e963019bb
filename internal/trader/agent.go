package trader

// Agent 一个独立决策的交易代理：自有 Portfolio，在一次模拟运行期间存活。
// Style 仅作为提示词框架传给决策阶段，不改变任何硬约束。
type Agent struct {
	Name      string
	Style     string // balanced / aggressive / conservative
	Model     string // 为空时使用全局 trader 模型
	Portfolio *Portfolio
}

func NewAgent(name, style, model string, initialCash float64) *Agent {
	return &Agent{
		Name:      name,
		Style:     style,
		Model:     model,
		Portfolio: NewPortfolio(initialCash),
	}
}
