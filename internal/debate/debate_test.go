package debate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradearena/internal/analysis"
	"tradearena/internal/oracle"
)

type fakeOracle struct {
	calls int
	err   error
}

func (f *fakeOracle) Name() string { return "fake" }

func (f *fakeOracle) Query(_ context.Context, req oracle.QueryRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf(`{"argument":"argument %d for prompt length %d","key_points":["p1"],"conviction":0.6}`, f.calls, len(req.User)), nil
}

// fixedScorer 测试用：固定两侧得分。
type fixedScorer struct {
	advocate, skeptic float64
}

func (s fixedScorer) Score([]Argument, []analysis.Opinion) (float64, float64) {
	return s.advocate, s.skeptic
}

func sampleOpinions() []analysis.Opinion {
	return []analysis.Opinion{
		{Source: "technical", Signal: analysis.SignalBullish, Confidence: 70, Rationale: "sma crossover"},
		{Source: "sentiment", Signal: analysis.SignalBearish, Confidence: 55, Rationale: "negative chatter"},
	}
}

func TestDebateTerminatesWithExactTurnCount(t *testing.T) {
	o := &fakeOracle{}
	e, err := NewEngine(o, "gpt-4o-mini", fixedScorer{advocate: 5, skeptic: 3})
	require.NoError(t, err)

	verdict, err := e.Run(context.Background(), sampleOpinions(), "AAPL", "2024-01-02", 3)
	require.NoError(t, err)

	// 每轮正反各一条发言，顺序固定：advocate 先手
	require.Len(t, verdict.Arguments, 6)
	for i, arg := range verdict.Arguments {
		assert.Equal(t, i/2+1, arg.Round)
		if i%2 == 0 {
			assert.Equal(t, SideAdvocate, arg.Side)
		} else {
			assert.Equal(t, SideSkeptic, arg.Side)
		}
		assert.Equal(t, arg.Round > 1, arg.IsRebuttal)
	}
	assert.Equal(t, SideAdvocate, verdict.Winner)
	assert.InDelta(t, 2, verdict.Margin, 1e-9)
}

func TestDebateTieGoesToSkeptic(t *testing.T) {
	e, err := NewEngine(&fakeOracle{}, "gpt-4o-mini", fixedScorer{advocate: 4, skeptic: 4})
	require.NoError(t, err)

	verdict, err := e.Run(context.Background(), sampleOpinions(), "AAPL", "2024-01-02", 1)
	require.NoError(t, err)
	assert.Equal(t, SideSkeptic, verdict.Winner)
	assert.Zero(t, verdict.Margin)
}

func TestDebateFailSoftOnOracleFailure(t *testing.T) {
	o := &fakeOracle{err: errors.New("rate limited")}
	e, err := NewEngine(o, "gpt-4o-mini", nil)
	require.NoError(t, err)

	verdict, err := e.Run(context.Background(), sampleOpinions(), "AAPL", "2024-01-02", 2)
	require.NoError(t, err)

	// 全部失败也要走完全部轮次，用占位发言填充
	require.Len(t, verdict.Arguments, 4)
	for _, arg := range verdict.Arguments {
		assert.NotEmpty(t, arg.Text)
	}
	// 每条发言重试一次：2 轮 × 2 方 × 2 次
	assert.Equal(t, 8, o.calls)
}

func TestDebateZeroRoundsClampedToOne(t *testing.T) {
	e, err := NewEngine(&fakeOracle{}, "gpt-4o-mini", fixedScorer{})
	require.NoError(t, err)

	verdict, err := e.Run(context.Background(), sampleOpinions(), "AAPL", "2024-01-02", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, verdict.Rounds)
	assert.Len(t, verdict.Arguments, 2)
}

func TestExtractArgumentText(t *testing.T) {
	assert.Equal(t, "hello", extractArgumentText(`{"argument":"hello"}`))
	assert.Equal(t, "hello", extractArgumentText("```json\n{\"argument\":\"hello\"}\n```"))
	// 非 JSON 的纯文本直接作为发言
	assert.Equal(t, "just plain prose", extractArgumentText("just plain prose"))
	// JSON 但缺 argument 字段视为解析失败
	assert.Empty(t, extractArgumentText(`{"other":"x"}`))
	assert.Empty(t, extractArgumentText("   "))
}

func TestHeuristicScorerAlignment(t *testing.T) {
	s := NewHeuristicScorer()
	args := []Argument{
		{Round: 1, Side: SideAdvocate, Text: "momentum is strong, sma_20 above sma_50 with rsi at 61 and volume up 12%"},
		{Round: 1, Side: SideSkeptic, Text: "too risky"},
	}
	bullish := []analysis.Opinion{
		{Source: "technical", Signal: analysis.SignalBullish, Confidence: 80},
		{Source: "sentiment", Signal: analysis.SignalBullish, Confidence: 60},
	}
	adv, skep := s.Score(args, bullish)
	assert.Greater(t, adv, skep)
}
