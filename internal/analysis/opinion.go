package analysis

import "strings"

// Signal 分析方向信号。
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// NormalizeSignal 归一化模型输出的方向词。
func NormalizeSignal(s string) Signal {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish", "bull", "buy", "positive":
		return SignalBullish
	case "bearish", "bear", "sell", "negative":
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// Opinion 单一分析来源的结构化意见，产出后不可变。
type Opinion struct {
	Source     string   `json:"source"`
	Signal     Signal   `json:"signal"`
	Confidence int      `json:"confidence"` // [0, 100]
	Rationale  string   `json:"rationale"`
	KeyFactors []string `json:"key_factors,omitempty"`
}

// NeutralOpinion 某来源失败时的兜底意见：signal=neutral、confidence=0。
func NeutralOpinion(source, reason string) Opinion {
	return Opinion{
		Source:     source,
		Signal:     SignalNeutral,
		Confidence: 0,
		Rationale:  reason,
	}
}

// ClampConfidence 约束置信度到 [0, 100]。
func ClampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
