package market

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// StoreProvider 基于 Store 实现 Provider：
// 回看窗口终点固定为请求日期，指标与历史序列均不含未来数据。
type StoreProvider struct {
	store             *Store
	lookbackDays      int
	sentimentLookback int
	maxExcerpts       int
}

type StoreProviderConfig struct {
	Store             *Store
	LookbackDays      int
	SentimentLookback int
	MaxExcerpts       int
}

func NewStoreProvider(cfg StoreProviderConfig) (*StoreProvider, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("market store 不能为空")
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	sentLookback := cfg.SentimentLookback
	if sentLookback <= 0 {
		sentLookback = 7
	}
	maxExcerpts := cfg.MaxExcerpts
	if maxExcerpts <= 0 {
		maxExcerpts = 5
	}
	return &StoreProvider{
		store:             cfg.Store,
		lookbackDays:      lookback,
		sentimentLookback: sentLookback,
		maxExcerpts:       maxExcerpts,
	}, nil
}

func (p *StoreProvider) MarketSnapshot(ctx context.Context, ticker, date string) (MarketSnapshot, error) {
	end, err := time.Parse(DateLayout, date)
	if err != nil {
		return MarketSnapshot{}, fmt.Errorf("日期格式无效: %w", err)
	}
	// 多取一倍日历日，保证剔除周末/停牌后窗口仍然够长。
	start := end.AddDate(0, 0, -p.lookbackDays*2)
	candles, err := p.store.RangeCandles(ctx, ticker, start.Format(DateLayout), date)
	if err != nil {
		return MarketSnapshot{}, err
	}
	if len(candles) == 0 {
		return MarketSnapshot{}, ErrNoData
	}
	last := candles[len(candles)-1]
	if last.Date != date {
		// 请求日当天无行情（非交易日或数据缺失）。
		return MarketSnapshot{}, ErrNoData
	}
	if len(candles) > p.lookbackDays {
		candles = candles[len(candles)-p.lookbackDays:]
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return MarketSnapshot{
		Ticker:     last.Ticker,
		Date:       date,
		Close:      last.Close,
		History:    closes,
		Volume:     last.Volume,
		Indicators: ComputeIndicators(closes),
	}, nil
}

func (p *StoreProvider) SentimentSnapshot(ctx context.Context, ticker, date string) (SentimentSnapshot, error) {
	end, err := time.Parse(DateLayout, date)
	if err != nil {
		return SentimentSnapshot{}, fmt.Errorf("日期格式无效: %w", err)
	}
	start := end.AddDate(0, 0, -p.sentimentLookback)
	posts, err := p.store.RangePosts(ctx, ticker, start.Format(DateLayout), date)
	if err != nil {
		return SentimentSnapshot{}, err
	}
	snapshot := SentimentSnapshot{
		Ticker:  ticker,
		Date:    date,
		Sources: make(map[string]SourceSentiment),
	}
	sums := make(map[string]float64)
	for _, post := range posts {
		src := snapshot.Sources[post.Source]
		src.Posts++
		sums[post.Source] += post.Sentiment
		if len(src.Excerpts) < p.maxExcerpts && post.Text != "" {
			src.Excerpts = append(src.Excerpts, post.Text)
		}
		snapshot.Sources[post.Source] = src
	}
	for name, src := range snapshot.Sources {
		if src.Posts > 0 {
			src.Score = sums[name] / float64(src.Posts)
		}
		snapshot.Sources[name] = src
	}
	return snapshot, nil
}

// TradingDates 枚举 [start, end] 内实际有行情的日期（升序、去重）。
func (p *StoreProvider) TradingDates(ctx context.Context, tickers []string, start, end string) ([]string, error) {
	seen := make(map[string]bool)
	for _, ticker := range tickers {
		candles, err := p.store.RangeCandles(ctx, ticker, start, end)
		if err != nil {
			return nil, err
		}
		for _, c := range candles {
			seen[c.Date] = true
		}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}
