package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tradearena/internal/analysis"
	"tradearena/internal/debate"
	"tradearena/internal/logger"
	"tradearena/internal/market"
	"tradearena/internal/trader"
)

// 中文说明：
// Engine 是模拟主循环：按 (date, ticker) 步进，每步跑
// 分析 → 辩论 → 决策 → 校验 → 生效 的流水线。
// run 在后台 goroutine 执行，进度与记录边跑边落库，
// HTTP 侧通过 Status/Results 轮询。

var (
	ErrTooManyRuns = errors.New("并发模拟数已达上限")
	ErrRunActive   = errors.New("run 仍在执行中")
)

// Defaults 由服务配置注入，请求缺省字段时回落。
type Defaults struct {
	Tickers             []string
	DebateRounds        int
	InitialCash         float64
	MaxPositionFraction float64
}

type Engine struct {
	store    *ResultStore
	provider market.Provider
	stage    *analysis.Stage
	debate   *debate.Engine
	decider  *trader.Decider
	defaults Defaults

	sem chan struct{}

	mu      sync.Mutex
	baseCtx context.Context
	cancels map[string]context.CancelFunc
}

func NewEngine(store *ResultStore, provider market.Provider, stage *analysis.Stage, dbt *debate.Engine, decider *trader.Decider, defaults Defaults, maxConcurrent int) (*Engine, error) {
	if store == nil || provider == nil || stage == nil || dbt == nil || decider == nil {
		return nil, fmt.Errorf("simulation engine 依赖不完整")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if defaults.DebateRounds <= 0 {
		defaults.DebateRounds = 2
	}
	if defaults.MaxPositionFraction <= 0 || defaults.MaxPositionFraction > 1 {
		defaults.MaxPositionFraction = 0.3
	}
	if defaults.InitialCash <= 0 {
		defaults.InitialCash = 10000
	}
	return &Engine{
		store:    store,
		provider: provider,
		stage:    stage,
		debate:   dbt,
		decider:  decider,
		defaults: defaults,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
		cancels:  make(map[string]context.CancelFunc),
	}, nil
}

// SetContext 注入进程级 ctx：进程退出时所有后台 run 一并取消。
func (e *Engine) SetContext(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseCtx = ctx
}

func (e *Engine) ctx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseCtx
}

// StartRun 登记并异步启动一次模拟。同参数重复提交会得到新的 run ID，
// 但脚本化 oracle 下结果逐字节一致（重放即复现）。
func (e *Engine) StartRun(ctx context.Context, req RunRequest, agents []AgentSpec) (Run, error) {
	cfg, err := e.buildConfig(req, agents)
	if err != nil {
		return Run{}, err
	}

	select {
	case e.sem <- struct{}{}:
	default:
		return Run{}, ErrTooManyRuns
	}

	now := time.Now()
	run := Run{
		ID:        uuid.NewString(),
		Status:    RunStatusPending,
		Progress:  0,
		Message:   "已登记，等待执行",
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.InsertRun(ctx, run); err != nil {
		<-e.sem
		return Run{}, fmt.Errorf("登记 run 失败: %w", err)
	}

	runCtx, cancel := context.WithCancel(e.ctx())
	e.mu.Lock()
	e.cancels[run.ID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			<-e.sem
			e.mu.Lock()
			delete(e.cancels, run.ID)
			e.mu.Unlock()
			cancel()
		}()
		e.runLoop(runCtx, run)
	}()

	logger.With("run_id", run.ID).Infof("模拟启动: tickers=%v %s→%s agents=%d", cfg.Tickers, cfg.StartDate, cfg.EndDate, len(cfg.Agents))
	return run, nil
}

// CancelRun 请求取消；在下一个步骤边界生效。
func (e *Engine) CancelRun(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

// Status 返回 run 的当前状态快照。
func (e *Engine) Status(ctx context.Context, id string) (Run, error) {
	return e.store.GetRun(ctx, id)
}

// ListRuns 返回全部 run，按创建时间倒序。
func (e *Engine) ListRuns(ctx context.Context) ([]Run, error) {
	return e.store.ListRuns(ctx)
}

// Summaries 返回每代理汇总；run 未完成时为空。
func (e *Engine) Summaries(ctx context.Context, id string) ([]AgentSummary, error) {
	return e.store.Summaries(ctx, id)
}

// Results 返回完整结果：未完成的 run 返回已落库的部分记录。
func (e *Engine) Results(ctx context.Context, id string) (Results, error) {
	run, err := e.store.GetRun(ctx, id)
	if err != nil {
		return Results{}, err
	}
	records, err := e.store.ListRecords(ctx, id)
	if err != nil {
		return Results{}, err
	}
	summaries, err := e.store.Summaries(ctx, id)
	if err != nil {
		return Results{}, err
	}
	return Results{Run: run, Records: records, Agents: summaries}, nil
}

// DeleteRun 删除历史 run；执行中的 run 拒绝删除。
func (e *Engine) DeleteRun(ctx context.Context, id string) error {
	e.mu.Lock()
	_, active := e.cancels[id]
	e.mu.Unlock()
	if active {
		return ErrRunActive
	}
	return e.store.DeleteRun(ctx, id)
}

// AnalysisResult 单独分析接口的返回：只跑分析阶段，不辩论、不落库。
type AnalysisResult struct {
	Ticker   string             `json:"ticker"`
	Date     string             `json:"date"`
	Opinions []analysis.Opinion `json:"opinions"`
}

// RunAnalysis 对单个 (ticker, date) 即席执行分析阶段。
func (e *Engine) RunAnalysis(ctx context.Context, ticker, date string) (AnalysisResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return AnalysisResult{}, fmt.Errorf("ticker 不能为空")
	}
	if _, err := time.Parse(market.DateLayout, date); err != nil {
		return AnalysisResult{}, fmt.Errorf("date 无效: %w", err)
	}

	snap, err := e.provider.MarketSnapshot(ctx, ticker, date)
	if err != nil {
		return AnalysisResult{}, err
	}
	sentiment, serr := e.provider.SentimentSnapshot(ctx, ticker, date)
	if serr != nil && !errors.Is(serr, market.ErrNoData) {
		logger.Warnf("舆情获取失败 %s/%s: %v", date, ticker, serr)
	}

	opinions := e.stage.Run(ctx, analysis.Input{Ticker: ticker, Date: date, Market: snap, Sentiment: sentiment})
	return AnalysisResult{Ticker: ticker, Date: date, Opinions: opinions}, nil
}

// DebateResult 单独辩论接口的返回：意见全集 + 裁决。
type DebateResult struct {
	Ticker   string             `json:"ticker"`
	Date     string             `json:"date"`
	Opinions []analysis.Opinion `json:"opinions"`
	Verdict  debate.Verdict     `json:"verdict"`
}

// RunDebate 对单个 (ticker, date) 即席执行 分析 → 辩论，不落库、不触发交易。
func (e *Engine) RunDebate(ctx context.Context, ticker, date string, rounds int) (DebateResult, error) {
	if rounds <= 0 {
		rounds = e.defaults.DebateRounds
	}
	res, err := e.RunAnalysis(ctx, ticker, date)
	if err != nil {
		return DebateResult{}, err
	}
	verdict, err := e.debate.Run(ctx, res.Opinions, res.Ticker, res.Date, rounds)
	if err != nil {
		return DebateResult{}, err
	}
	return DebateResult{Ticker: res.Ticker, Date: res.Date, Opinions: res.Opinions, Verdict: verdict}, nil
}

func (e *Engine) buildConfig(req RunRequest, agents []AgentSpec) (RunConfig, error) {
	tickers := req.Tickers
	if len(tickers) == 0 {
		tickers = e.defaults.Tickers
	}
	if len(tickers) == 0 {
		return RunConfig{}, fmt.Errorf("未指定 tickers 且服务无默认标的")
	}
	normalized := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			normalized = append(normalized, t)
		}
	}
	if len(normalized) == 0 {
		return RunConfig{}, fmt.Errorf("tickers 全为空白")
	}

	start, err := time.Parse(market.DateLayout, req.StartDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("start_date 无效: %w", err)
	}
	end, err := time.Parse(market.DateLayout, req.EndDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("end_date 无效: %w", err)
	}
	if end.Before(start) {
		return RunConfig{}, fmt.Errorf("end_date 早于 start_date")
	}

	rounds := req.DebateRounds
	if rounds <= 0 {
		rounds = e.defaults.DebateRounds
	}
	if len(agents) == 0 {
		return RunConfig{}, fmt.Errorf("至少需要一个交易代理")
	}
	specs := make([]AgentSpec, len(agents))
	copy(specs, agents)
	for i := range specs {
		if specs[i].InitialCash <= 0 {
			specs[i].InitialCash = e.defaults.InitialCash
		}
	}

	return RunConfig{
		Tickers:             normalized,
		StartDate:           start.Format(market.DateLayout),
		EndDate:             end.Format(market.DateLayout),
		DebateRounds:        rounds,
		MaxPositionFraction: e.defaults.MaxPositionFraction,
		Agents:              specs,
	}, nil
}

// agentState 一个代理在单次 run 内的全部可变状态。
// 各代理互不共享 Portfolio，也看不到彼此的决定。
type agentState struct {
	spec      AgentSpec
	agent     *trader.Agent
	costBasis map[string]decimal.Decimal // ticker → 当前持仓的累计成本
	trades    int
	wins      int
}

func (e *Engine) runLoop(ctx context.Context, run Run) {
	log := logger.With("run_id", run.ID)
	cfg := run.Config
	states := make([]*agentState, len(cfg.Agents))
	for i, spec := range cfg.Agents {
		states[i] = &agentState{
			spec:      spec,
			agent:     trader.NewAgent(spec.Name, spec.Style, spec.Model, spec.InitialCash),
			costBasis: make(map[string]decimal.Decimal),
		}
	}

	dates := e.runDates(ctx, cfg)
	total := len(dates) * len(cfg.Tickers)
	if total == 0 {
		e.markErrored(run.ID, "区间内没有可模拟的交易日")
		return
	}

	if err := e.store.UpdateRunStatus(ctx, run.ID, RunStatusRunning, 0, "执行中"); err != nil {
		log.Errorf("状态更新失败: %v", err)
	}

	lastPrices := make(map[string]float64)
	processed := 0
	seq := 0

	for _, date := range dates {
		for _, ticker := range cfg.Tickers {
			if err := ctx.Err(); err != nil {
				e.markErrored(run.ID, "已取消")
				log.Warnf("模拟取消于 %s/%s", date, ticker)
				return
			}

			rec, fatal := e.step(ctx, log, cfg, states, date, ticker, lastPrices)
			processed++

			if rec != nil {
				seq++
				if err := e.store.AppendRecord(ctx, run.ID, seq, *rec); err != nil {
					log.Errorf("记录落库失败: %v", err)
				}
			}
			if fatal != nil {
				e.markErrored(run.ID, fatal.Error())
				log.Errorf("模拟失败于 %s/%s: %v", date, ticker, fatal)
				return
			}

			progress := processed * 100 / total
			if progress > 99 {
				progress = 99 // 100 留给完成态
			}
			msg := fmt.Sprintf("处理中 %s（%d/%d）", date, processed, total)
			if err := e.store.UpdateRunStatus(ctx, run.ID, RunStatusRunning, progress, msg); err != nil {
				log.Errorf("进度更新失败: %v", err)
			}
		}
	}

	summaries := buildSummaries(states, lastPrices)
	if err := e.store.CompleteRun(ctx, run.ID, summaries); err != nil {
		log.Errorf("完成落库失败: %v", err)
		e.markErrored(run.ID, "结果写入失败")
		return
	}
	log.Infof("模拟完成: steps=%d agents=%d", seq, len(summaries))
}

// step 执行单个 (date, ticker) 步骤。返回的 record 可能为 nil（无数据跳过）；
// fatal 非 nil 表示整个 run 必须终止（不变量被破坏或存储故障）。
func (e *Engine) step(ctx context.Context, log logger.Scoped, cfg RunConfig, states []*agentState, date, ticker string, lastPrices map[string]float64) (*Record, error) {
	snap, err := e.provider.MarketSnapshot(ctx, ticker, date)
	if errors.Is(err, market.ErrNoData) {
		log.Debugf("无行情数据，跳过: %s/%s", date, ticker)
		return nil, nil
	}
	if err != nil {
		// 数据源故障不终止整个 run，记一条错误记录继续。
		return &Record{Date: date, Ticker: ticker, Status: StepStatusErrored, Error: err.Error()}, nil
	}

	sentiment, err := e.provider.SentimentSnapshot(ctx, ticker, date)
	if err != nil && !errors.Is(err, market.ErrNoData) {
		log.Warnf("舆情获取失败 %s/%s: %v", date, ticker, err)
	}

	opinions := e.stage.Run(ctx, analysis.Input{
		Ticker:    ticker,
		Date:      date,
		Market:    snap,
		Sentiment: sentiment,
	})

	verdict, err := e.debate.Run(ctx, opinions, ticker, date, cfg.DebateRounds)
	if err != nil {
		return &Record{Date: date, Ticker: ticker, Status: StepStatusErrored, Error: err.Error(),
			Price: snap.Close, Market: snap, Sentiment: sentiment, Opinions: opinions}, nil
	}

	price := snap.Close
	lastPrices[ticker] = price

	decisions := make([]trader.Decision, len(states))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range states {
		i, st := i, st
		g.Go(func() error {
			pf := st.agent.Portfolio
			raw := e.decider.Decide(gctx, trader.DecideInput{
				Ticker:   ticker,
				Date:     date,
				Price:    price,
				Style:    st.agent.Style,
				Model:    st.agent.Model,
				Opinions: opinions,
				Verdict:  verdict,
				Cash:     pf.Cash().InexactFloat64(),
				Held:     pf.Position(ticker),
				Equity:   pf.Value(lastPrices).InexactFloat64(),
			})
			decisions[i] = trader.ValidateDecision(raw, pf, price, cfg.MaxPositionFraction)
			return nil
		})
	}
	_ = g.Wait() // Decide 是 fail-soft 的，goroutine 不返回错误

	rec := Record{
		Date:      date,
		Ticker:    ticker,
		Status:    StepStatusOK,
		Price:     price,
		Market:    snap,
		Sentiment: sentiment,
		Opinions:  opinions,
		Verdict:   verdict,
		Decisions: make(map[string]trader.Decision, len(states)),
		Values:    make(map[string]float64, len(states)),
	}

	for i, st := range states {
		dec := decisions[i]
		if err := e.applyAndTrack(st, dec, price); err != nil {
			return &rec, fmt.Errorf("代理 %s 应用决定失败: %w", st.agent.Name, err)
		}
		rec.Decisions[st.agent.Name] = dec
		rec.Values[st.agent.Name] = st.agent.Portfolio.Value(lastPrices).InexactFloat64()
	}
	return &rec, nil
}

// applyAndTrack 将决定作用于代理组合并维护胜率口径：
// 卖出所得高于对应持仓成本记一次 win。
func (e *Engine) applyAndTrack(st *agentState, dec trader.Decision, price float64) error {
	if dec.Quantity == 0 {
		return nil
	}
	pd := decimal.NewFromFloat(price)
	qd := decimal.NewFromInt(dec.Quantity)

	var removedCost decimal.Decimal
	if dec.Action == trader.ActionSell {
		held := st.agent.Portfolio.Position(dec.Ticker)
		if held > 0 {
			avg := st.costBasis[dec.Ticker].Div(decimal.NewFromInt(held))
			removedCost = avg.Mul(qd)
		}
	}

	if err := trader.Apply(dec, st.agent.Portfolio, price); err != nil {
		return err
	}

	st.trades++
	switch dec.Action {
	case trader.ActionBuy:
		st.costBasis[dec.Ticker] = st.costBasis[dec.Ticker].Add(pd.Mul(qd))
	case trader.ActionSell:
		proceeds := pd.Mul(qd)
		if proceeds.GreaterThan(removedCost) {
			st.wins++
		}
		st.costBasis[dec.Ticker] = st.costBasis[dec.Ticker].Sub(removedCost)
		if st.agent.Portfolio.Position(dec.Ticker) == 0 {
			delete(st.costBasis, dec.Ticker)
		}
	}
	return nil
}

func (e *Engine) markErrored(id, message string) {
	// 终态写入不随 run ctx 取消，用独立超时。
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.UpdateRunStatus(ctx, id, RunStatusErrored, 0, message); err != nil {
		logger.With("run_id", id).Errorf("终态写入失败: %v", err)
	}
}

func buildSummaries(states []*agentState, lastPrices map[string]float64) []AgentSummary {
	out := make([]AgentSummary, 0, len(states))
	for _, st := range states {
		pf := st.agent.Portfolio
		finalValue := pf.Value(lastPrices).InexactFloat64()
		initial := st.spec.InitialCash
		returnPct := 0.0
		if initial > 0 {
			returnPct = (finalValue - initial) / initial * 100
		}
		winRate := 0.0
		if st.trades > 0 {
			winRate = float64(st.wins) / float64(st.trades) * 100
		}
		out = append(out, AgentSummary{
			Name:           st.agent.Name,
			Style:          st.agent.Style,
			InitialCash:    initial,
			FinalCash:      pf.Cash().InexactFloat64(),
			FinalValue:     finalValue,
			TotalReturnPct: returnPct,
			Holdings:       pf.Positions(),
			Trades:         st.trades,
			Wins:           st.wins,
			WinRate:        winRate,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinalValue > out[j].FinalValue })
	return out
}

// dateLister 数据源能报告实际覆盖的交易日时实现该接口（sqlite 行情库）。
type dateLister interface {
	TradingDates(ctx context.Context, tickers []string, start, end string) ([]string, error)
}

// runDates 枚举本次 run 的步进日期。行情库数据源按实际覆盖日枚举，
// 停牌/缺数日直接不产生步骤；合成数据源回落到日历工作日。
func (e *Engine) runDates(ctx context.Context, cfg RunConfig) []string {
	if lister, ok := e.provider.(dateLister); ok {
		dates, err := lister.TradingDates(ctx, cfg.Tickers, cfg.StartDate, cfg.EndDate)
		if err == nil {
			return dates
		}
		logger.Warnf("交易日枚举失败，回落到日历工作日: %v", err)
	}
	return tradingDates(cfg.StartDate, cfg.EndDate)
}

// tradingDates 枚举 [start, end] 内的工作日（周六/周日跳过）。
// 入参已在 buildConfig 校验，解析失败不会发生。
func tradingDates(start, end string) []string {
	s, _ := time.Parse(market.DateLayout, start)
	t, _ := time.Parse(market.DateLayout, end)
	var out []string
	for d := s; !d.After(t); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d.Format(market.DateLayout))
	}
	return out
}
