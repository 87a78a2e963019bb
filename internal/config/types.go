package config

import "strings"

// Config 是 TradeArena 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Data       DataConfig       `toml:"data"`
	Oracle     OracleConfig     `toml:"oracle"`
	Trading    TradingConfig    `toml:"trading"`
	Debate     DebateConfig     `toml:"debate"`
	Simulation SimulationConfig `toml:"simulation"`
}

type AppConfig struct {
	Env        string `toml:"env"`
	LogLevel   string `toml:"log_level"`
	HTTPAddr   string `toml:"http_addr"`
	LogPath    string `toml:"log_path"`
	OracleLog  string `toml:"oracle_log_path"`
	OracleDump bool   `toml:"oracle_dump_payload"`
}

// DataConfig 控制行情/舆情数据来源。
type DataConfig struct {
	Dir                  string `toml:"dir"`
	CandleCSV            string `toml:"candle_csv"`
	SentimentCSV         string `toml:"sentiment_csv"`
	LookbackDays         int    `toml:"lookback_days"`
	SentimentLookbackDays int   `toml:"sentiment_lookback_days"`
	Synthetic            bool   `toml:"synthetic"`
}

// OracleConfig 描述决策模型接入方式；provider=scripted 时走内置脚本应答（离线演示）。
type OracleConfig struct {
	Provider        string       `toml:"provider"`
	BaseURL         string       `toml:"base_url"`
	APIKey          string       `toml:"api_key"`
	TimeoutSeconds  int          `toml:"timeout_seconds"`
	MaxRetries      int          `toml:"max_retries"`
	RateLimitPerMin int          `toml:"rate_limit_per_min"`
	Models          ModelsConfig `toml:"models"`
}

// ModelsConfig 按用途选择模型（分析/辩论/交易可用不同档位）。
type ModelsConfig struct {
	Analyst string `toml:"analyst"`
	Debate  string `toml:"debate"`
	Trader  string `toml:"trader"`
}

// TradingConfig 控制每个交易代理的初始资金与仓位上限。
type TradingConfig struct {
	InitialCash         float64 `toml:"initial_cash"`
	MaxPositionFraction float64 `toml:"max_position_fraction"`
}

type DebateConfig struct {
	Rounds int `toml:"rounds"`
}

// SimulationConfig 描述默认回测区间与并发限制。
type SimulationConfig struct {
	Tickers       []string `toml:"tickers"`
	StartDate     string   `toml:"start_date"`
	EndDate       string   `toml:"end_date"`
	MaxConcurrent int      `toml:"max_concurrent"`
	ProfilesPath  string   `toml:"profiles_path"`
}

// ModelFor 按用途返回模型名，未配置时回落到 analyst 档。
func (m ModelsConfig) ModelFor(purpose string) string {
	switch strings.ToLower(strings.TrimSpace(purpose)) {
	case "debate":
		if m.Debate != "" {
			return m.Debate
		}
	case "trader":
		if m.Trader != "" {
			return m.Trader
		}
	}
	return m.Analyst
}
