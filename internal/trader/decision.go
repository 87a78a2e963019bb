package trader

import "strings"

// Action 交易动作。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// RiskLevel 模型给出的风险评估档位。
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Decision 一次交易决定。decide 产出后可能被 validate 修正（只收紧、不拒绝）。
type Decision struct {
	Action     Action    `json:"action"`
	Ticker     string    `json:"ticker"`
	Quantity   int64     `json:"quantity"` // 恒 >= 0
	Confidence int       `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Risk       RiskLevel `json:"risk_assessment"`
	Adjusted   bool      `json:"adjusted,omitempty"` // validate 是否修正过数量
}

// NormalizeAction 统一动作名称：大小写不敏感，未知动作视为 HOLD。
func NormalizeAction(a string) Action {
	switch strings.ToUpper(strings.TrimSpace(a)) {
	case "BUY":
		return ActionBuy
	case "SELL":
		return ActionSell
	default:
		return ActionHold
	}
}

// NormalizeRisk 统一风险档位，未知值归为 medium。
func NormalizeRisk(r string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "low":
		return RiskLow
	case "high":
		return RiskHigh
	default:
		return RiskMedium
	}
}

// HoldDecision 兜底决定：HOLD、数量 0。
func HoldDecision(ticker, rationale string) Decision {
	return Decision{
		Action:    ActionHold,
		Ticker:    ticker,
		Quantity:  0,
		Rationale: rationale,
		Risk:      RiskMedium,
	}
}
