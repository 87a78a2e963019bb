package market

import (
	"context"
	"errors"
)

// ErrNoData 指定 (ticker, date) 没有任何行情数据；引擎据此跳过该步。
var ErrNoData = errors.New("no market data for requested ticker/date")

// Provider 对 (ticker, date) 应是纯函数：同样入参产出同样快照，
// 且不得包含 date 之后的数据（no lookahead）。
type Provider interface {
	MarketSnapshot(ctx context.Context, ticker, date string) (MarketSnapshot, error)
	SentimentSnapshot(ctx context.Context, ticker, date string) (SentimentSnapshot, error)
}
