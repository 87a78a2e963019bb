package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tradearena/internal/logger"
	"tradearena/internal/oracle"
)

const SourceSentiment = "sentiment"

// SentimentAnalyst 舆情分析：聚合各来源情绪分与样本摘录后交给 oracle。
type SentimentAnalyst struct {
	oracle oracle.Oracle
	model  string
}

func NewSentimentAnalyst(o oracle.Oracle, model string) *SentimentAnalyst {
	return &SentimentAnalyst{oracle: o, model: model}
}

func (a *SentimentAnalyst) Source() string { return SourceSentiment }

func (a *SentimentAnalyst) Analyze(ctx context.Context, in Input) Opinion {
	raw, err := a.oracle.Query(ctx, oracle.QueryRequest{
		Purpose:     "analyst",
		Model:       a.model,
		System:      "You are a social sentiment analyst. Always answer with a single JSON object.",
		User:        a.buildPrompt(in),
		Temperature: 0.3,
	})
	if err != nil {
		logger.Warnf("[analysis] sentiment oracle 调用失败（%s %s）：%v", in.Ticker, in.Date, err)
		return NeutralOpinion(a.Source(), "oracle unavailable: "+err.Error())
	}
	op, err := parseOpinion(a.Source(), raw)
	if err != nil {
		logger.Warnf("[analysis] sentiment 输出解析失败（%s %s）：%v raw=%q", in.Ticker, in.Date, err, truncate(raw, 200))
		return NeutralOpinion(a.Source(), "unparseable oracle output")
	}
	return op
}

func (a *SentimentAnalyst) buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s\nDate: %s\n\nSocial sentiment summary:\n", in.Ticker, in.Date)
	names := make([]string, 0, len(in.Sentiment.Sources))
	for name := range in.Sentiment.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		src := in.Sentiment.Sources[name]
		fmt.Fprintf(&b, "- %s: avg sentiment %.3f over %d posts\n", name, src.Score, src.Posts)
		for i, excerpt := range src.Excerpts {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, truncate(excerpt, 120))
		}
	}
	if len(names) == 0 {
		b.WriteString("- no posts available in lookback window\n")
	}
	fmt.Fprintf(&b, "\nOverall weighted score: %.3f (total posts: %d)\n", in.Sentiment.OverallScore(), in.Sentiment.TotalPosts())
	b.WriteString(`
Assess how social sentiment should influence trading, then answer in JSON with keys:
signal (bullish/bearish/neutral), confidence (0-100), rationale (string), key_factors (list of strings).
`)
	return b.String()
}
