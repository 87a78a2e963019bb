package debate

import (
	"strings"
	"unicode"

	"tradearena/internal/analysis"
)

// 中文说明：
// 评分是策略旋钮：默认实现只依赖发言文本与分析意见本身，
// 同样输入必然得到同样分数（可复现）。公式本身不是既定设计，
// 换更讲究的评分器只需替换 Scorer 实现。

// Scorer 对整场辩论打分，返回两侧的非负强度分。
type Scorer interface {
	Score(arguments []Argument, opinions []analysis.Opinion) (advocate, skeptic float64)
}

// HeuristicScorer 默认评分器：论点实质（长度/具体性）+ 与分析信号的一致度。
type HeuristicScorer struct {
	// maxSubstance 单条发言实质分上限，防止靠堆字数刷分。
	maxSubstance float64
}

func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{maxSubstance: 10}
}

func (s *HeuristicScorer) Score(arguments []Argument, opinions []analysis.Opinion) (float64, float64) {
	var advocate, skeptic float64
	for _, arg := range arguments {
		score := s.substance(arg.Text) + s.alignment(arg.Side, opinions)
		if arg.Side == SideAdvocate {
			advocate += score
		} else {
			skeptic += score
		}
	}
	return advocate, skeptic
}

// substance 按长度线性计分并封顶，数字等具体细节额外加分。
func (s *HeuristicScorer) substance(text string) float64 {
	runes := len([]rune(strings.TrimSpace(text)))
	score := float64(runes) / 60.0
	if score > s.maxSubstance {
		score = s.maxSubstance
	}
	score += float64(min(countNumericTokens(text), 3))
	return score
}

// alignment 发言立场与各来源信号一致时按置信度加分。
func (s *HeuristicScorer) alignment(side Side, opinions []analysis.Opinion) float64 {
	total := 0.0
	for _, op := range opinions {
		switch {
		case side == SideAdvocate && op.Signal == analysis.SignalBullish:
			total += float64(op.Confidence) / 50.0
		case side == SideSkeptic && op.Signal == analysis.SignalBearish:
			total += float64(op.Confidence) / 50.0
		}
	}
	return total
}

func countNumericTokens(text string) int {
	count := 0
	for _, tok := range strings.Fields(text) {
		for _, r := range tok {
			if unicode.IsDigit(r) {
				count++
				break
			}
		}
	}
	return count
}
