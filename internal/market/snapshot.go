package market

// 中文说明：
// 快照是不可变的时点数据包：一旦由 Provider 产出便不再修改。
// 所有日期统一使用 2006-01-02 格式字符串，避免时区参与比较。

const DateLayout = "2006-01-02"

// Candle 单日行情。
type Candle struct {
	Ticker string  `json:"ticker"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// MarketSnapshot 某 (ticker, date) 的行情快照：收盘价、回看窗口与技术指标。
type MarketSnapshot struct {
	Ticker     string             `json:"ticker"`
	Date       string             `json:"date"`
	Close      float64            `json:"close"`
	History    []float64          `json:"history"` // 回看窗口内的收盘序列，旧→新
	Volume     int64              `json:"volume"`
	Indicators map[string]float64 `json:"indicators"`
}

// SourceSentiment 单一来源（reddit/twitter 等）的聚合舆情。
type SourceSentiment struct {
	Score    float64  `json:"score"` // [-1, 1]
	Posts    int      `json:"posts"`
	Excerpts []string `json:"excerpts,omitempty"`
}

// SentimentSnapshot 某 (ticker, date) 的舆情快照。
type SentimentSnapshot struct {
	Ticker  string                     `json:"ticker"`
	Date    string                     `json:"date"`
	Sources map[string]SourceSentiment `json:"sources"`
}

// OverallScore 各来源按样本量加权的综合情绪分。
func (s SentimentSnapshot) OverallScore() float64 {
	total := 0
	sum := 0.0
	for _, src := range s.Sources {
		sum += src.Score * float64(src.Posts)
		total += src.Posts
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}

// TotalPosts 全部来源样本量之和。
func (s SentimentSnapshot) TotalPosts() int {
	total := 0
	for _, src := range s.Sources {
		total += src.Posts
	}
	return total
}

// Post 单条舆情样本（CSV 导入用）。
type Post struct {
	Ticker    string  `json:"ticker"`
	Date      string  `json:"date"`
	Source    string  `json:"source"`
	Sentiment float64 `json:"sentiment"`
	Text      string  `json:"text"`
}
