package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tradearena/internal/analysis"
	"tradearena/internal/config"
	"tradearena/internal/config/loader"
	"tradearena/internal/debate"
	"tradearena/internal/logger"
	"tradearena/internal/market"
	"tradearena/internal/oracle"
	"tradearena/internal/simulation"
	"tradearena/internal/trader"
	apihttp "tradearena/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg         *config.Config
	engine      *simulation.Engine
	httpSrv     *apihttp.Server
	profiles    *loader.ProfileLoader
	resultStore *simulation.ResultStore
	marketStore *market.Store // synthetic 模式下为 nil
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	a := &App{cfg: cfg}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	profiles, err := loader.NewProfileLoader(cfg.Simulation.ProfilesPath)
	if err != nil {
		return fmt.Errorf("加载 agent profiles 失败: %w", err)
	}
	a.profiles = profiles
	profiles.OnChange(func(snap loader.Snapshot) {
		logger.Infof("agent profiles 热更新: version=%d agents=%d", snap.Version, len(snap.Profiles))
	})

	provider, err := a.buildProvider()
	if err != nil {
		return err
	}

	o, err := oracle.NewFromConfig(cfg.Oracle)
	if err != nil {
		return fmt.Errorf("初始化 oracle 失败: %w", err)
	}

	analystModel := cfg.Oracle.Models.ModelFor("analyst")
	stage, err := analysis.NewStage(
		analysis.NewTechnicalAnalyst(o, analystModel),
		analysis.NewSentimentAnalyst(o, analystModel),
	)
	if err != nil {
		return err
	}

	debateEngine, err := debate.NewEngine(o, cfg.Oracle.Models.ModelFor("debate"), debate.NewHeuristicScorer())
	if err != nil {
		return err
	}

	decider, err := trader.NewDecider(o, cfg.Oracle.Models.ModelFor("trader"))
	if err != nil {
		return err
	}

	resultStore, err := simulation.NewResultStore(cfg.Data.Dir)
	if err != nil {
		return err
	}
	a.resultStore = resultStore

	engine, err := simulation.NewEngine(resultStore, provider, stage, debateEngine, decider, simulation.Defaults{
		Tickers:             cfg.Simulation.Tickers,
		DebateRounds:        cfg.Debate.Rounds,
		InitialCash:         cfg.Trading.InitialCash,
		MaxPositionFraction: cfg.Trading.MaxPositionFraction,
	}, cfg.Simulation.MaxConcurrent)
	if err != nil {
		return err
	}
	a.engine = engine

	httpSrv, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Engine: engine,
		Agents: &profileAgentSource{loader: profiles, trading: cfg.Trading},
	})
	if err != nil {
		return err
	}
	a.httpSrv = httpSrv
	return nil
}

// buildProvider 构建行情来源：synthetic 模式生成确定性数据，
// 否则打开 SQLite 行情库并导入配置里指定的 CSV。
func (a *App) buildProvider() (market.Provider, error) {
	cfg := a.cfg
	if cfg.Data.Synthetic {
		logger.Infof("使用合成行情数据（离线演示模式）")
		return market.NewSyntheticProvider(cfg.Data.LookbackDays), nil
	}

	store, err := market.NewStore(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("打开行情库失败: %w", err)
	}
	a.marketStore = store

	ctx := context.Background()
	if cfg.Data.CandleCSV != "" {
		n, err := store.ImportCandlesCSV(ctx, cfg.Data.CandleCSV)
		if err != nil {
			return nil, fmt.Errorf("导入 K 线 CSV 失败: %w", err)
		}
		logger.Infof("导入 K 线 %d 条: %s", n, cfg.Data.CandleCSV)
	}
	if cfg.Data.SentimentCSV != "" {
		n, err := store.ImportSentimentCSV(ctx, cfg.Data.SentimentCSV)
		if err != nil {
			return nil, fmt.Errorf("导入舆情 CSV 失败: %w", err)
		}
		logger.Infof("导入舆情帖子 %d 条: %s", n, cfg.Data.SentimentCSV)
	}

	return market.NewStoreProvider(market.StoreProviderConfig{
		Store:             store,
		LookbackDays:      cfg.Data.LookbackDays,
		SentimentLookback: cfg.Data.SentimentLookbackDays,
	})
}

// Run 启动 HTTP 服务并阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	a.engine.SetContext(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Engine 暴露底层模拟引擎（测试/脚本用）。
func (a *App) Engine() *simulation.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Close 释放持久化资源。
func (a *App) Close() {
	if a.resultStore != nil {
		if err := a.resultStore.Close(); err != nil {
			logger.Warnf("关闭 result store 失败: %v", err)
		}
	}
	if a.marketStore != nil {
		if err := a.marketStore.Close(); err != nil {
			logger.Warnf("关闭行情库失败: %v", err)
		}
	}
}

// profileAgentSource 将 profile 热加载快照转为模拟引擎的 AgentSpec 列表。
type profileAgentSource struct {
	loader  *loader.ProfileLoader
	trading config.TradingConfig
}

func (s *profileAgentSource) AgentSpecs() []simulation.AgentSpec {
	snap := s.loader.Snapshot()
	out := make([]simulation.AgentSpec, 0, len(snap.Profiles))
	for _, p := range snap.Profiles {
		if !p.IsEnabled() {
			continue
		}
		cash := p.InitialCash
		if cash <= 0 {
			cash = s.trading.InitialCash
		}
		out = append(out, simulation.AgentSpec{
			Name:        p.Name,
			Style:       loader.NormalizeStyle(p.Style),
			Model:       p.Model,
			InitialCash: cash,
		})
	}
	return out
}
