package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradearena/internal/analysis"
	"tradearena/internal/debate"
	"tradearena/internal/market"
	"tradearena/internal/oracle"
	"tradearena/internal/trader"
)

func newTestEngine(t *testing.T, provider market.Provider, maxConcurrent int) *Engine {
	t.Helper()
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	o := oracle.NewScriptedOracle()
	stage, err := analysis.NewStage(
		analysis.NewTechnicalAnalyst(o, "m"),
		analysis.NewSentimentAnalyst(o, "m"),
	)
	require.NoError(t, err)
	dbt, err := debate.NewEngine(o, "m", nil)
	require.NoError(t, err)
	decider, err := trader.NewDecider(o, "m")
	require.NoError(t, err)

	engine, err := NewEngine(store, provider, stage, dbt, decider, Defaults{
		Tickers:             []string{"AAPL"},
		DebateRounds:        1,
		InitialCash:         10000,
		MaxPositionFraction: 0.3,
	}, maxConcurrent)
	require.NoError(t, err)
	return engine
}

func testAgents() []AgentSpec {
	return []AgentSpec{
		{Name: "alpha", Style: "aggressive", InitialCash: 10000},
		{Name: "beta", Style: "conservative", InitialCash: 10000},
	}
}

func waitForRun(t *testing.T, e *Engine, id string) Run {
	t.Helper()
	var run Run
	require.Eventually(t, func() bool {
		got, err := e.Status(context.Background(), id)
		if err != nil {
			return false
		}
		run = got
		return run.Status == RunStatusCompleted || run.Status == RunStatusErrored
	}, 30*time.Second, 50*time.Millisecond)
	return run
}

func TestRunCompletesWithRecordsAndSummaries(t *testing.T) {
	e := newTestEngine(t, market.NewSyntheticProvider(10), 2)

	run, err := e.StartRun(context.Background(), RunRequest{
		Tickers:   []string{"AAPL", "MSFT"},
		StartDate: "2024-01-01",
		EndDate:   "2024-01-12",
	}, testAgents())
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusPending, run.Status)

	final := waitForRun(t, e, run.ID)
	require.Equal(t, RunStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)

	results, err := e.Results(context.Background(), run.ID)
	require.NoError(t, err)

	// 2024-01-01 到 01-12 共 10 个工作日 × 2 标的
	require.Len(t, results.Records, 20)
	for _, rec := range results.Records {
		assert.Equal(t, StepStatusOK, rec.Status)
		assert.Len(t, rec.Opinions, 2)
		assert.NotEmpty(t, rec.Verdict.Arguments)
		require.Len(t, rec.Decisions, 2)
		require.Len(t, rec.Values, 2)
		for name, v := range rec.Values {
			assert.Positive(t, v, "agent %s", name)
		}
	}

	require.Len(t, results.Agents, 2)
	for _, s := range results.Agents {
		assert.Positive(t, s.FinalValue)
		assert.GreaterOrEqual(t, s.Trades, 0)
		assert.LessOrEqual(t, s.Wins, s.Trades)
	}
}

// 同参数重复提交：脚本化 oracle + 合成行情下，两次 run 的决定逐条一致。
func TestRunReplayIsDeterministic(t *testing.T) {
	e := newTestEngine(t, market.NewSyntheticProvider(10), 2)
	req := RunRequest{Tickers: []string{"AAPL"}, StartDate: "2024-01-01", EndDate: "2024-01-05"}

	first, err := e.StartRun(context.Background(), req, testAgents())
	require.NoError(t, err)
	waitForRun(t, e, first.ID)

	second, err := e.StartRun(context.Background(), req, testAgents())
	require.NoError(t, err)
	waitForRun(t, e, second.ID)

	r1, err := e.Results(context.Background(), first.ID)
	require.NoError(t, err)
	r2, err := e.Results(context.Background(), second.ID)
	require.NoError(t, err)

	require.Equal(t, len(r1.Records), len(r2.Records))
	for i := range r1.Records {
		assert.Equal(t, r1.Records[i].Decisions, r2.Records[i].Decisions)
		assert.Equal(t, r1.Records[i].Values, r2.Records[i].Values)
	}
	assert.Equal(t, r1.Agents, r2.Agents)
}

func TestStartRunRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, market.NewSyntheticProvider(10), 2)

	_, err := e.StartRun(context.Background(), RunRequest{StartDate: "bad", EndDate: "2024-01-05"}, testAgents())
	assert.Error(t, err)

	_, err = e.StartRun(context.Background(), RunRequest{StartDate: "2024-01-05", EndDate: "2024-01-01"}, testAgents())
	assert.Error(t, err)

	_, err = e.StartRun(context.Background(), RunRequest{StartDate: "2024-01-01", EndDate: "2024-01-05"}, nil)
	assert.Error(t, err)

	// 全空白 tickers 同步拒绝，不登记 run
	_, err = e.StartRun(context.Background(), RunRequest{
		Tickers: []string{"  ", ""}, StartDate: "2024-01-01", EndDate: "2024-01-05",
	}, testAgents())
	assert.Error(t, err)
	runs, err := e.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// blockingProvider 在放行前挂住第一次行情请求，用于并发上限与取消测试。
type blockingProvider struct {
	inner market.Provider
	gate  chan struct{}
}

func (p *blockingProvider) MarketSnapshot(ctx context.Context, ticker, date string) (market.MarketSnapshot, error) {
	select {
	case <-p.gate:
	case <-ctx.Done():
		return market.MarketSnapshot{}, ctx.Err()
	}
	return p.inner.MarketSnapshot(ctx, ticker, date)
}

func (p *blockingProvider) SentimentSnapshot(ctx context.Context, ticker, date string) (market.SentimentSnapshot, error) {
	return p.inner.SentimentSnapshot(ctx, ticker, date)
}

func TestStartRunEnforcesConcurrencyLimit(t *testing.T) {
	gate := make(chan struct{})
	provider := &blockingProvider{inner: market.NewSyntheticProvider(10), gate: gate}
	e := newTestEngine(t, provider, 1)
	req := RunRequest{Tickers: []string{"AAPL"}, StartDate: "2024-01-01", EndDate: "2024-01-02"}

	first, err := e.StartRun(context.Background(), req, testAgents())
	require.NoError(t, err)

	_, err = e.StartRun(context.Background(), req, testAgents())
	assert.ErrorIs(t, err, ErrTooManyRuns)

	close(gate)
	waitForRun(t, e, first.ID)

	// 槽位释放后可再次提交
	var thirdID string
	require.Eventually(t, func() bool {
		run, err := e.StartRun(context.Background(), req, testAgents())
		if err != nil {
			return false
		}
		thirdID = run.ID
		return true
	}, 30*time.Second, 50*time.Millisecond)
	waitForRun(t, e, thirdID)
}

// slowProvider 每次行情请求固定延迟，便于在 run 执行过程中观察进度。
type slowProvider struct {
	inner market.Provider
	delay time.Duration
}

func (p *slowProvider) MarketSnapshot(ctx context.Context, ticker, date string) (market.MarketSnapshot, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return market.MarketSnapshot{}, ctx.Err()
	}
	return p.inner.MarketSnapshot(ctx, ticker, date)
}

func (p *slowProvider) SentimentSnapshot(ctx context.Context, ticker, date string) (market.SentimentSnapshot, error) {
	return p.inner.SentimentSnapshot(ctx, ticker, date)
}

// 进度只向前推进，100 只属于完成态。
func TestRunProgressIsMonotonic(t *testing.T) {
	provider := &slowProvider{inner: market.NewSyntheticProvider(10), delay: 5 * time.Millisecond}
	e := newTestEngine(t, provider, 1)

	run, err := e.StartRun(context.Background(), RunRequest{
		Tickers: []string{"AAPL", "MSFT"}, StartDate: "2024-01-01", EndDate: "2024-02-09",
	}, testAgents())
	require.NoError(t, err)

	deadline := time.Now().Add(30 * time.Second)
	last := 0
	var final Run
	for {
		require.True(t, time.Now().Before(deadline), "run 未在期限内结束")
		got, err := e.Status(context.Background(), run.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.Progress, last, "进度出现回退: %d → %d", last, got.Progress)
		if got.Status != RunStatusCompleted {
			require.LessOrEqual(t, got.Progress, 99)
		}
		last = got.Progress
		if got.Status == RunStatusCompleted || got.Status == RunStatusErrored {
			final = got
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, RunStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
}

// 取消后的终态写入不允许把已推进的进度拉回去。
func TestCancelledRunKeepsProgressFloor(t *testing.T) {
	provider := &slowProvider{inner: market.NewSyntheticProvider(10), delay: 5 * time.Millisecond}
	e := newTestEngine(t, provider, 1)

	run, err := e.StartRun(context.Background(), RunRequest{
		Tickers: []string{"AAPL", "MSFT"}, StartDate: "2024-01-01", EndDate: "2024-03-29",
	}, testAgents())
	require.NoError(t, err)

	var observed int
	require.Eventually(t, func() bool {
		got, err := e.Status(context.Background(), run.ID)
		if err != nil {
			return false
		}
		observed = got.Progress
		return got.Status == RunStatusRunning && got.Progress > 0
	}, 30*time.Second, 2*time.Millisecond)

	require.True(t, e.CancelRun(run.ID))
	final := waitForRun(t, e, run.ID)
	require.Equal(t, RunStatusErrored, final.Status)
	assert.Equal(t, "已取消", final.Message)
	assert.GreaterOrEqual(t, final.Progress, observed)
	assert.Less(t, final.Progress, 100)
}

func TestCancelRunStopsAtStepBoundary(t *testing.T) {
	gate := make(chan struct{})
	provider := &blockingProvider{inner: market.NewSyntheticProvider(10), gate: gate}
	e := newTestEngine(t, provider, 1)

	run, err := e.StartRun(context.Background(), RunRequest{
		Tickers: []string{"AAPL"}, StartDate: "2024-01-01", EndDate: "2024-03-29",
	}, testAgents())
	require.NoError(t, err)

	require.True(t, e.CancelRun(run.ID))
	close(gate)

	final := waitForRun(t, e, run.ID)
	assert.Equal(t, RunStatusErrored, final.Status)
	// 终态写入后后台 goroutine 随即注销，取消句柄消失
	assert.Eventually(t, func() bool { return !e.CancelRun(run.ID) }, 5*time.Second, 20*time.Millisecond)
}

func TestDeleteRunRefusesActiveRun(t *testing.T) {
	gate := make(chan struct{})
	provider := &blockingProvider{inner: market.NewSyntheticProvider(10), gate: gate}
	e := newTestEngine(t, provider, 1)

	run, err := e.StartRun(context.Background(), RunRequest{
		Tickers: []string{"AAPL"}, StartDate: "2024-01-01", EndDate: "2024-01-05",
	}, testAgents())
	require.NoError(t, err)

	assert.ErrorIs(t, e.DeleteRun(context.Background(), run.ID), ErrRunActive)

	close(gate)
	waitForRun(t, e, run.ID)

	// 终态落库与后台 goroutine 注销之间存在极短窗口，删除重试到成功
	require.Eventually(t, func() bool {
		return e.DeleteRun(context.Background(), run.ID) == nil
	}, 5*time.Second, 20*time.Millisecond)
	_, err = e.Status(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// 行情库数据源按实际覆盖日步进，缺数日不产生步骤。
func TestRunDatesFollowStoreCoverage(t *testing.T) {
	ms, err := market.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })

	ctx := context.Background()
	require.NoError(t, ms.UpsertCandles(ctx, []market.Candle{
		{Ticker: "AAPL", Date: "2024-01-03", Open: 174, High: 176, Low: 173, Close: 175, Volume: 1000},
		{Ticker: "AAPL", Date: "2024-01-10", Open: 178, High: 181, Low: 177, Close: 180, Volume: 1200},
	}))
	provider, err := market.NewStoreProvider(market.StoreProviderConfig{Store: ms})
	require.NoError(t, err)

	e := newTestEngine(t, provider, 1)
	run, err := e.StartRun(ctx, RunRequest{
		Tickers: []string{"AAPL"}, StartDate: "2024-01-01", EndDate: "2024-01-12",
	}, testAgents())
	require.NoError(t, err)

	final := waitForRun(t, e, run.ID)
	require.Equal(t, RunStatusCompleted, final.Status)

	results, err := e.Results(ctx, run.ID)
	require.NoError(t, err)
	// 区间内有 9 个工作日，但行情库只覆盖其中两天
	require.Len(t, results.Records, 2)
	assert.Equal(t, "2024-01-03", results.Records[0].Date)
	assert.Equal(t, "2024-01-10", results.Records[1].Date)
}

func TestRunDebateStandalone(t *testing.T) {
	e := newTestEngine(t, market.NewSyntheticProvider(10), 1)

	result, err := e.RunDebate(context.Background(), "aapl", "2024-01-03", 2)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", result.Ticker)
	assert.Len(t, result.Opinions, 2)
	assert.Len(t, result.Verdict.Arguments, 4)

	// 周六无行情
	_, err = e.RunDebate(context.Background(), "AAPL", "2024-01-06", 1)
	assert.ErrorIs(t, err, market.ErrNoData)
}

func TestTradingDatesSkipWeekends(t *testing.T) {
	dates := tradingDates("2024-01-05", "2024-01-09") // 五 六 日 一 二
	assert.Equal(t, []string{"2024-01-05", "2024-01-08", "2024-01-09"}, dates)

	assert.Empty(t, tradingDates("2024-01-06", "2024-01-07")) // 纯周末
}
