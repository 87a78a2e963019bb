package oracle

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strings"
)

// 中文说明：
// ScriptedOracle：离线/演示模式下的内置应答器。按用途返回结构合法的 JSON，
// 输出只依赖提示词内容（FNV 哈希选择变体），保证同样输入得到同样回答。
// 作为 Oracle 的一个可注入实现存在，核心逻辑不做任何 mock 特判。

type ScriptedOracle struct{}

func NewScriptedOracle() *ScriptedOracle { return &ScriptedOracle{} }

func (s *ScriptedOracle) Name() string { return "scripted" }

func (s *ScriptedOracle) Query(_ context.Context, req QueryRequest) (string, error) {
	seed := promptSeed(req.User)
	switch strings.ToLower(strings.TrimSpace(req.Purpose)) {
	case "analyst":
		return s.analystResponse(req.User, seed), nil
	case "debate":
		return s.debateResponse(req.User, seed), nil
	case "trader":
		return s.traderResponse(seed), nil
	default:
		return `{"response":"scripted"}`, nil
	}
}

func promptSeed(user string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(user))
	return h.Sum32()
}

func (s *ScriptedOracle) analystResponse(user string, seed uint32) string {
	signals := []string{"bullish", "neutral", "bearish"}
	signal := signals[seed%3]
	if strings.Contains(strings.ToLower(user), "sentiment") {
		payload := map[string]any{
			"signal":     signal,
			"confidence": 40 + int(seed%45),
			"rationale":  "社媒情绪与发帖量变化给出的综合判断（scripted）",
			"key_factors": []string{
				"reddit/twitter 平均情绪分",
				"发帖量相对前一周变化",
			},
		}
		b, _ := json.Marshal(payload)
		return string(b)
	}
	payload := map[string]any{
		"signal":     signal,
		"confidence": 45 + int(seed%40),
		"rationale":  "基于均线与 RSI 的技术面判断（scripted）",
		"key_factors": []string{
			"sma_20 与 sma_50 相对位置",
			"rsi_14 所在区间",
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func (s *ScriptedOracle) debateResponse(user string, seed uint32) string {
	lower := strings.ToLower(user)
	side := "advocate"
	argument := "技术面与情绪面均有积极信号，回调即是买入机会，上行空间未被定价。"
	points := []string{"动量指标向好", "社媒情绪转暖", "基本面未见恶化"}
	if strings.Contains(lower, "skeptic") || strings.Contains(lower, "bear") {
		side = "skeptic"
		argument = "当前信号强度不足以支撑加仓，波动放大时回撤风险显著，应保持谨慎。"
		points = []string{"信号之间存在分歧", "成交量未确认趋势", "宏观不确定性仍在"}
	}
	payload := map[string]any{
		"side":       side,
		"argument":   argument,
		"key_points": points,
		"conviction": 0.5 + float64(seed%40)/100.0,
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func (s *ScriptedOracle) traderResponse(seed uint32) string {
	actions := []string{"BUY", "HOLD", "SELL"}
	action := actions[seed%3]
	qty := 0
	if action != "HOLD" {
		qty = 5 + int(seed%20)
	}
	payload := map[string]any{
		"action":          action,
		"quantity":        qty,
		"confidence":      50 + int(seed%35),
		"rationale":       "综合分析意见与辩论结论后的决定（scripted）",
		"risk_assessment": []string{"low", "medium", "high"}[seed%3],
	}
	b, _ := json.Marshal(payload)
	return string(b)
}
