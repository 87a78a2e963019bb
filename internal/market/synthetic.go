package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

// 中文说明：
// SyntheticProvider：无外部数据时的确定性合成数据源（演示/测试用）。
// 价格由 ticker 哈希决定基准，随日期缓慢漂移并叠加正弦扰动；
// 同样 (ticker, date) 永远得到同样的快照。

type SyntheticProvider struct {
	lookbackDays int
}

func NewSyntheticProvider(lookbackDays int) *SyntheticProvider {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &SyntheticProvider{lookbackDays: lookbackDays}
}

func (p *SyntheticProvider) MarketSnapshot(_ context.Context, ticker, date string) (MarketSnapshot, error) {
	end, err := time.Parse(DateLayout, date)
	if err != nil {
		return MarketSnapshot{}, fmt.Errorf("日期格式无效: %w", err)
	}
	// 周末视为非交易日，与真实数据源行为一致。
	if wd := end.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return MarketSnapshot{}, ErrNoData
	}
	closes := make([]float64, 0, p.lookbackDays)
	day := end.AddDate(0, 0, -p.lookbackDays)
	for !day.After(end) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			closes = append(closes, syntheticPrice(ticker, day))
		}
		day = day.AddDate(0, 0, 1)
	}
	last := closes[len(closes)-1]
	return MarketSnapshot{
		Ticker:     ticker,
		Date:       date,
		Close:      last,
		History:    closes,
		Volume:     1_000_000 + int64(tickerSeed(ticker)%500_000),
		Indicators: ComputeIndicators(closes),
	}, nil
}

func (p *SyntheticProvider) SentimentSnapshot(_ context.Context, ticker, date string) (SentimentSnapshot, error) {
	end, err := time.Parse(DateLayout, date)
	if err != nil {
		return SentimentSnapshot{}, fmt.Errorf("日期格式无效: %w", err)
	}
	dayIdx := end.Unix() / 86400
	seed := int64(tickerSeed(ticker))
	score := func(offset int64) float64 {
		return math.Sin(float64(seed+dayIdx*offset) / 9.0)
	}
	return SentimentSnapshot{
		Ticker: ticker,
		Date:   date,
		Sources: map[string]SourceSentiment{
			"reddit": {
				Score:    round2(score(3) * 0.6),
				Posts:    10 + int((seed+dayIdx)%20),
				Excerpts: []string{fmt.Sprintf("synthetic reddit chatter about %s", ticker)},
			},
			"twitter": {
				Score:    round2(score(5) * 0.5),
				Posts:    25 + int((seed+dayIdx*2)%40),
				Excerpts: []string{fmt.Sprintf("synthetic twitter chatter about %s", ticker)},
			},
		},
	}, nil
}

func syntheticPrice(ticker string, day time.Time) float64 {
	seed := float64(tickerSeed(ticker) % 400)
	base := 50 + seed // 每个 ticker 一个稳定基准价
	dayIdx := float64(day.Unix() / 86400)
	drift := dayIdx * 0.05
	wave := math.Sin(dayIdx/7.0+seed) * base * 0.02
	return round2(base + math.Mod(drift, base*0.5) + wave)
}

func tickerSeed(ticker string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticker))
	return h.Sum32()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
