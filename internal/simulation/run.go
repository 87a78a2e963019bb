package simulation

import (
	"time"

	"tradearena/internal/analysis"
	"tradearena/internal/debate"
	"tradearena/internal/market"
	"tradearena/internal/trader"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusErrored   = "errored"
)

// 单个 (date, ticker) 步骤的记录状态。
const (
	StepStatusOK      = "ok"
	StepStatusErrored = "errored"
)

// AgentSpec 一次 run 中参赛代理的参数快照。
type AgentSpec struct {
	Name        string  `json:"name"`
	Style       string  `json:"style"`
	Model       string  `json:"model,omitempty"`
	InitialCash float64 `json:"initial_cash"`
}

// RunConfig 记录本次模拟的参数快照，便于重放。
type RunConfig struct {
	Tickers             []string    `json:"tickers"`
	StartDate           string      `json:"start_date"`
	EndDate             string      `json:"end_date"`
	DebateRounds        int         `json:"debate_rounds"`
	MaxPositionFraction float64     `json:"max_position_fraction"`
	Agents              []AgentSpec `json:"agents"`
}

// Run 表示一次模拟任务。
type Run struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"` // 百分比，对单次 run 单调不减
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Record 一条 (date, ticker) 审计记录：创建后不再修改。
type Record struct {
	Date      string                     `json:"date"`
	Ticker    string                     `json:"ticker"`
	Status    string                     `json:"status"`
	Error     string                     `json:"error,omitempty"`
	Price     float64                    `json:"price"`
	Market    market.MarketSnapshot      `json:"market"`
	Sentiment market.SentimentSnapshot   `json:"sentiment"`
	Opinions  []analysis.Opinion         `json:"opinions"`
	Verdict   debate.Verdict             `json:"verdict"`
	Decisions map[string]trader.Decision `json:"decisions"` // agent name → 实际生效的决定
	Values    map[string]float64         `json:"values"`    // agent name → 步后组合市值
}

// AgentSummary 每个代理的最终表现。
type AgentSummary struct {
	Name           string           `json:"name"`
	Style          string           `json:"style"`
	InitialCash    float64          `json:"initial_cash"`
	FinalCash      float64          `json:"final_cash"`
	FinalValue     float64          `json:"final_value"`
	TotalReturnPct float64          `json:"total_return_pct"`
	Holdings       map[string]int64 `json:"holdings"`
	Trades         int              `json:"trades"`
	Wins           int              `json:"wins"`
	WinRate        float64          `json:"win_rate"`
}

// Results 完整结果：run 元信息 + 有序记录 + 每代理汇总。
type Results struct {
	Run     Run            `json:"run"`
	Records []Record       `json:"records"`
	Agents  []AgentSummary `json:"agents"`
}

// RunRequest 为 HTTP 提交使用；零值字段回落到服务配置。
type RunRequest struct {
	Tickers      []string `json:"tickers"`
	StartDate    string   `json:"start_date" binding:"required"`
	EndDate      string   `json:"end_date" binding:"required"`
	DebateRounds int      `json:"debate_rounds"`
}
