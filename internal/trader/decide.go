package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tradearena/internal/analysis"
	"tradearena/internal/debate"
	"tradearena/internal/logger"
	"tradearena/internal/oracle"
	"tradearena/internal/pkg/jsonutil"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// 中文说明：
// Decide 是纯函数：读取意见/结论/持仓摘要，不做任何资产变更。
// oracle 输出先过 JSON Schema 形状校验再取字段；解析失败一律回落 HOLD/0。

const decisionSchemaJSON = `{
	"type": "object",
	"required": ["action"],
	"properties": {
		"action": {"type": "string"},
		"quantity": {"type": ["integer", "number"], "minimum": 0},
		"confidence": {"type": ["integer", "number"]},
		"rationale": {"type": "string"},
		"risk_assessment": {"type": "string"}
	}
}`

var decisionSchema = jsonschema.MustCompileString("decision.json", decisionSchemaJSON)

// DecideInput decide 的全部输入。
type DecideInput struct {
	Ticker   string
	Date     string
	Price    float64
	Style    string
	Model    string // 为空时使用 Decider 默认模型
	Opinions []analysis.Opinion
	Verdict  debate.Verdict
	// 持仓摘要（只读快照，不持有 Portfolio 引用以保证纯函数性）
	Cash   float64
	Held   int64
	Equity float64
}

// Decider 通过 oracle 产出交易决定。
type Decider struct {
	oracle oracle.Oracle
	model  string
}

func NewDecider(o oracle.Oracle, model string) (*Decider, error) {
	if o == nil {
		return nil, fmt.Errorf("decider 需要 oracle")
	}
	return &Decider{oracle: o, model: model}, nil
}

// Decide 产出未经校验的交易决定；永不返回负数量。
func (d *Decider) Decide(ctx context.Context, in DecideInput) Decision {
	model := in.Model
	if model == "" {
		model = d.model
	}
	raw, err := d.oracle.Query(ctx, oracle.QueryRequest{
		Purpose:     "trader",
		Model:       model,
		System:      fmt.Sprintf("You are a %s trader. Always answer with a single JSON object.", styleFraming(in.Style)),
		User:        buildDecidePrompt(in),
		Temperature: 0.7,
	})
	if err != nil {
		logger.Warnf("[trader] oracle 调用失败（%s %s）：%v", in.Ticker, in.Date, err)
		return HoldDecision(in.Ticker, "oracle unavailable: "+err.Error())
	}
	dec, err := parseDecision(in.Ticker, raw)
	if err != nil {
		logger.Warnf("[trader] 决定解析失败（%s %s）：%v raw=%q", in.Ticker, in.Date, err, truncate(raw, 200))
		return HoldDecision(in.Ticker, "unparseable oracle output")
	}
	return dec
}

func parseDecision(ticker, raw string) (Decision, error) {
	cleaned := jsonutil.StripCodeFence(raw)
	obj, ok := jsonutil.ExtractObject(cleaned)
	if !ok {
		return Decision{}, fmt.Errorf("输出中未找到 JSON 对象")
	}
	var decoded any
	if err := json.Unmarshal([]byte(obj), &decoded); err != nil {
		return Decision{}, fmt.Errorf("JSON 解析失败: %w", err)
	}
	if err := decisionSchema.Validate(decoded); err != nil {
		return Decision{}, fmt.Errorf("决定不符合 schema: %w", err)
	}
	parsed := gjson.Parse(obj)
	qty := parsed.Get("quantity").Int()
	if qty < 0 {
		qty = 0
	}
	dec := Decision{
		Action:     NormalizeAction(parsed.Get("action").String()),
		Ticker:     ticker,
		Quantity:   qty,
		Confidence: analysis.ClampConfidence(int(parsed.Get("confidence").Int())),
		Rationale:  parsed.Get("rationale").String(),
		Risk:       NormalizeRisk(parsed.Get("risk_assessment").String()),
	}
	if dec.Action == ActionHold {
		dec.Quantity = 0
	}
	return dec, nil
}

func buildDecidePrompt(in DecideInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trading decision for %s on %s.\n\nCURRENT PORTFOLIO:\n- Cash: $%.2f\n- Position in %s: %d shares\n- Portfolio value: $%.2f\n\nCURRENT PRICE: $%.2f\n\nANALYST OPINIONS:\n",
		in.Ticker, in.Date, in.Cash, in.Ticker, in.Held, in.Equity, in.Price)
	for _, op := range in.Opinions {
		fmt.Fprintf(&b, "- %s: %s (confidence %d) — %s\n", op.Source, op.Signal, op.Confidence, op.Rationale)
	}
	fmt.Fprintf(&b, "\nDEBATE OUTCOME:\n- Winning side: %s (advocate %.1f vs skeptic %.1f, margin %.1f)\n",
		in.Verdict.Winner, in.Verdict.AdvocateScore, in.Verdict.SkepticScore, in.Verdict.Margin)
	if n := len(in.Verdict.Arguments); n > 0 {
		last := in.Verdict.Arguments[n-1]
		fmt.Fprintf(&b, "- Closing argument (%s): %s\n", last.Side, truncate(last.Text, 200))
	}
	b.WriteString(`
Decide the trade. Position sizing is capped by risk management downstream; request what you believe is right.
Answer in JSON with keys: action (BUY/SELL/HOLD), quantity (integer >= 0, 0 for HOLD),
confidence (0-100), rationale (string), risk_assessment (low/medium/high).
`)
	return b.String()
}

func styleFraming(style string) string {
	switch strings.ToLower(strings.TrimSpace(style)) {
	case "aggressive":
		return "growth-seeking, risk-tolerant"
	case "conservative":
		return "capital-preserving, risk-averse"
	default:
		return "balanced, risk-aware"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
