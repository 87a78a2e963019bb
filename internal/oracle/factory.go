package oracle

import (
	"fmt"
	"strings"
	"time"

	"tradearena/internal/config"
)

// NewFromConfig 按配置构建 Oracle 实现。
func NewFromConfig(cfg config.OracleConfig) (Oracle, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "scripted", "":
		return NewScriptedOracle(), nil
	case "openai":
		return NewChatClient(ChatClientConfig{
			BaseURL:         cfg.BaseURL,
			APIKey:          cfg.APIKey,
			DefaultModel:    cfg.Models.Analyst,
			Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxRetries:      cfg.MaxRetries,
			RateLimitPerMin: cfg.RateLimitPerMin,
		}), nil
	default:
		return nil, fmt.Errorf("未知 oracle provider: %s", cfg.Provider)
	}
}
