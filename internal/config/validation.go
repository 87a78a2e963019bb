package config

import (
	"fmt"
	"strings"
	"time"
)

// 中文说明：
// 配置错误属于致命错误：在任何模拟步骤执行之前在启动阶段暴露。

const dateLayout = "2006-01-02"

// Validate 做启动期配置校验；失败即终止进程。
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Oracle.Provider)) {
	case "openai", "scripted":
	default:
		return fmt.Errorf("未知 oracle provider: %s", cfg.Oracle.Provider)
	}
	if strings.EqualFold(cfg.Oracle.Provider, "openai") {
		if strings.TrimSpace(cfg.Oracle.APIKey) == "" {
			return fmt.Errorf("oracle provider=openai 需要配置 api_key")
		}
		if strings.TrimSpace(cfg.Oracle.Models.Analyst) == "" {
			return fmt.Errorf("oracle provider=openai 需要配置 models.analyst")
		}
	}
	for _, t := range cfg.Simulation.Tickers {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("simulation.tickers 含空 ticker")
		}
	}
	if cfg.Simulation.StartDate != "" || cfg.Simulation.EndDate != "" {
		start, err := time.Parse(dateLayout, cfg.Simulation.StartDate)
		if err != nil {
			return fmt.Errorf("simulation.start_date 无效: %w", err)
		}
		end, err := time.Parse(dateLayout, cfg.Simulation.EndDate)
		if err != nil {
			return fmt.Errorf("simulation.end_date 无效: %w", err)
		}
		if end.Before(start) {
			return fmt.Errorf("simulation.end_date 早于 start_date")
		}
	}
	return nil
}
