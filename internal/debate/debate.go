package debate

import (
	"context"
	"fmt"
	"strings"

	"tradearena/internal/analysis"
	"tradearena/internal/logger"
	"tradearena/internal/oracle"
	"tradearena/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// Side 辩论立场。
type Side string

const (
	SideAdvocate Side = "advocate" // 看多方（bull）
	SideSkeptic  Side = "skeptic"  // 看空方（bear）
)

// Argument 一条辩论发言，按序追加、不可修改。
type Argument struct {
	Round      int    `json:"round"` // 从 1 开始
	Side       Side   `json:"side"`
	Text       string `json:"text"`
	IsRebuttal bool   `json:"is_rebuttal,omitempty"`
}

// Verdict 辩论结论：完整发言序列加两侧得分，产出后不可变。
// 平分判给 skeptic（偏保守的既定策略）。
type Verdict struct {
	Ticker        string     `json:"ticker"`
	Date          string     `json:"date"`
	Rounds        int        `json:"rounds"`
	Arguments     []Argument `json:"arguments"`
	AdvocateScore float64    `json:"advocate_score"`
	SkepticScore  float64    `json:"skeptic_score"`
	Winner        Side       `json:"winning_side"`
	Margin        float64    `json:"margin"`
}

// Engine 主持一场 advocate vs. skeptic 的结构化辩论。
// 轮次严格串行：每条发言的提示词都包含此前全部发言。
type Engine struct {
	oracle oracle.Oracle
	model  string
	scorer Scorer
}

func NewEngine(o oracle.Oracle, model string, scorer Scorer) (*Engine, error) {
	if o == nil {
		return nil, fmt.Errorf("debate engine 需要 oracle")
	}
	if scorer == nil {
		scorer = NewHeuristicScorer()
	}
	return &Engine{oracle: o, model: model, scorer: scorer}, nil
}

// Run 执行 rounds 轮辩论并打分。任何单轮失败都不会中断：
// 失败的发言重试一次，仍失败则以中性占位发言续场，辩论必然产出 Verdict。
func (e *Engine) Run(ctx context.Context, opinions []analysis.Opinion, ticker, date string, rounds int) (Verdict, error) {
	if rounds <= 0 {
		rounds = 1
	}
	var transcript []Argument
	for round := 1; round <= rounds; round++ {
		for _, side := range []Side{SideAdvocate, SideSkeptic} {
			text := e.generateArgument(ctx, opinions, transcript, ticker, date, side, round)
			transcript = append(transcript, Argument{
				Round:      round,
				Side:       side,
				Text:       text,
				IsRebuttal: round > 1,
			})
		}
	}
	advocateScore, skepticScore := e.scorer.Score(transcript, opinions)
	winner := SideSkeptic
	if advocateScore > skepticScore {
		winner = SideAdvocate
	}
	margin := advocateScore - skepticScore
	if margin < 0 {
		margin = -margin
	}
	return Verdict{
		Ticker:        ticker,
		Date:          date,
		Rounds:        rounds,
		Arguments:     transcript,
		AdvocateScore: advocateScore,
		SkepticScore:  skepticScore,
		Winner:        winner,
		Margin:        margin,
	}, nil
}

func (e *Engine) generateArgument(ctx context.Context, opinions []analysis.Opinion, transcript []Argument, ticker, date string, side Side, round int) string {
	prompt := e.buildPrompt(opinions, transcript, ticker, date, side, round)
	// 失败重试一次；两次都失败则用占位发言，辩论必须走完。
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := e.oracle.Query(ctx, oracle.QueryRequest{
			Purpose:     "debate",
			Model:       e.model,
			System:      fmt.Sprintf("You are the %s in a structured trading debate. Always answer with a single JSON object.", sideLabel(side)),
			User:        prompt,
			Temperature: 0.8,
		})
		if err != nil {
			logger.Warnf("[debate] %s 第 %d 轮发言失败（attempt=%d）：%v", side, round, attempt+1, err)
			continue
		}
		if text := extractArgumentText(raw); text != "" {
			return text
		}
		logger.Warnf("[debate] %s 第 %d 轮输出无法解析（attempt=%d）", side, round, attempt+1)
	}
	return placeholderArgument(side)
}

func extractArgumentText(raw string) string {
	cleaned := jsonutil.StripCodeFence(raw)
	if obj, ok := jsonutil.ExtractObject(cleaned); ok && gjson.Valid(obj) {
		if arg := strings.TrimSpace(gjson.Get(obj, "argument").String()); arg != "" {
			return arg
		}
	}
	// 非 JSON 输出直接作为发言内容（模型偶尔漏掉格式要求）。
	cleaned = strings.TrimSpace(cleaned)
	if cleaned != "" && !strings.HasPrefix(cleaned, "{") {
		return cleaned
	}
	return ""
}

func placeholderArgument(side Side) string {
	if side == SideAdvocate {
		return "No further bullish argument was produced this turn; the prior bullish case stands."
	}
	return "No further bearish argument was produced this turn; caution remains warranted."
}

func (e *Engine) buildPrompt(opinions []analysis.Opinion, transcript []Argument, ticker, date string, side Side, round int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trading debate for %s on %s, round %d.\n\nANALYST OPINIONS:\n", ticker, date, round)
	for _, op := range opinions {
		fmt.Fprintf(&b, "- %s: %s (confidence %d) — %s\n", op.Source, op.Signal, op.Confidence, op.Rationale)
	}
	b.WriteString("\nPREVIOUS ARGUMENTS:\n")
	if len(transcript) == 0 {
		b.WriteString("This is the opening argument.\n")
	} else {
		for _, arg := range transcript {
			fmt.Fprintf(&b, "Round %d %s: %s\n", arg.Round, sideLabel(arg.Side), arg.Text)
		}
	}
	if side == SideAdvocate {
		fmt.Fprintf(&b, `
Argue WHY taking the bullish action on %s is right. Address any bearish points raised.
Be specific and data-driven. Answer in JSON with keys: argument (string), key_points (list), conviction (0-1).
`, ticker)
	} else {
		fmt.Fprintf(&b, `
Argue WHY caution on %s is warranted. Address any bullish points raised.
Be specific and data-driven. Answer in JSON with keys: argument (string), key_points (list), conviction (0-1).
`, ticker)
	}
	return b.String()
}

func sideLabel(side Side) string {
	if side == SideAdvocate {
		return "bull advocate"
	}
	return "bear skeptic"
}
