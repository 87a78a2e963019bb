package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tradearena/internal/logger"
	"tradearena/internal/oracle"
)

const SourceTechnical = "technical"

// TechnicalAnalyst 技术面分析：把回看窗口指标交给 oracle 产出方向意见。
type TechnicalAnalyst struct {
	oracle oracle.Oracle
	model  string
}

func NewTechnicalAnalyst(o oracle.Oracle, model string) *TechnicalAnalyst {
	return &TechnicalAnalyst{oracle: o, model: model}
}

func (a *TechnicalAnalyst) Source() string { return SourceTechnical }

func (a *TechnicalAnalyst) Analyze(ctx context.Context, in Input) Opinion {
	raw, err := a.oracle.Query(ctx, oracle.QueryRequest{
		Purpose:     "analyst",
		Model:       a.model,
		System:      "You are a technical analyst. Always answer with a single JSON object.",
		User:        a.buildPrompt(in),
		Temperature: 0.3,
	})
	if err != nil {
		logger.Warnf("[analysis] technical oracle 调用失败（%s %s）：%v", in.Ticker, in.Date, err)
		return NeutralOpinion(a.Source(), "oracle unavailable: "+err.Error())
	}
	op, err := parseOpinion(a.Source(), raw)
	if err != nil {
		logger.Warnf("[analysis] technical 输出解析失败（%s %s）：%v raw=%q", in.Ticker, in.Date, err, truncate(raw, 200))
		return NeutralOpinion(a.Source(), "unparseable oracle output")
	}
	return op
}

func (a *TechnicalAnalyst) buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s\nDate: %s\nCurrent Price: %.2f\nVolume: %d\n\nTechnical Indicators:\n",
		in.Ticker, in.Date, in.Market.Close, in.Market.Volume)
	keys := make([]string, 0, len(in.Market.Indicators))
	for k := range in.Market.Indicators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %.2f\n", k, in.Market.Indicators[k])
	}
	fmt.Fprintf(&b, "\nRecent closes (oldest first): %s\n", formatSeries(in.Market.History, 10))
	b.WriteString(`
Assess trend and momentum, then answer in JSON with keys:
signal (bullish/bearish/neutral), confidence (0-100), rationale (string), key_factors (list of strings).
`)
	return b.String()
}

func formatSeries(vals []float64, maxItems int) string {
	if len(vals) > maxItems {
		vals = vals[len(vals)-maxItems:]
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.2f", v)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
