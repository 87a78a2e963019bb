package analysis

import (
	"context"

	"tradearena/internal/market"
)

// Input 一次分析的全部输入：快照都截止到模拟当日，不含未来数据。
type Input struct {
	Ticker    string
	Date      string
	Market    market.MarketSnapshot
	Sentiment market.SentimentSnapshot
}

// Analyst 单一分析来源。实现必须总是返回合法 Opinion：
// oracle 失败或输出无法解析时回落为中性意见，而不是向上抛错。
type Analyst interface {
	Source() string
	Analyze(ctx context.Context, in Input) Opinion
}
