package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 YAML 配置并应用默认值与校验。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9980"
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Data.LookbackDays <= 0 {
		c.Data.LookbackDays = 30
	}
	if c.Data.SentimentLookbackDays <= 0 {
		c.Data.SentimentLookbackDays = 7
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "scripted"
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		c.Oracle.TimeoutSeconds = 60
	}
	if c.Oracle.MaxRetries <= 0 {
		c.Oracle.MaxRetries = 2
	}
	if c.Oracle.RateLimitPerMin <= 0 {
		c.Oracle.RateLimitPerMin = 60
	}
	if c.Trading.InitialCash <= 0 {
		c.Trading.InitialCash = 10000
	}
	if c.Trading.MaxPositionFraction <= 0 || c.Trading.MaxPositionFraction > 1 {
		c.Trading.MaxPositionFraction = 0.3
	}
	if c.Debate.Rounds <= 0 {
		c.Debate.Rounds = 2
	}
	if len(c.Simulation.Tickers) == 0 {
		c.Simulation.Tickers = []string{"AAPL", "MSFT"}
	}
	if c.Simulation.MaxConcurrent <= 0 {
		c.Simulation.MaxConcurrent = 1
	}
	if c.Simulation.ProfilesPath == "" {
		c.Simulation.ProfilesPath = "configs/agents.yaml"
	}
}
