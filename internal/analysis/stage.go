package analysis

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// 中文说明：
// Stage 持有一组 Analyst 实现，对来源个数与身份不做任何假设。
// 同一步内各来源相互独立，因而并发执行；聚合只在全部完成后发生。
// 任一来源失败不影响其它来源（Analyze 自身已兜底为中性意见）。

type Stage struct {
	analysts []Analyst
}

func NewStage(analysts ...Analyst) (*Stage, error) {
	if len(analysts) == 0 {
		return nil, fmt.Errorf("analysis stage 至少需要一个 analyst")
	}
	return &Stage{analysts: analysts}, nil
}

// Run 并发执行所有分析来源并按来源名排序返回。
func (s *Stage) Run(ctx context.Context, in Input) []Opinion {
	opinions := make([]Opinion, len(s.analysts))
	group, gctx := errgroup.WithContext(ctx)
	for i, analyst := range s.analysts {
		i, analyst := i, analyst
		group.Go(func() error {
			opinions[i] = analyst.Analyze(gctx, in)
			return nil
		})
	}
	// Analyze 不返回错误，Wait 仅用于同步。
	_ = group.Wait()
	sort.Slice(opinions, func(i, j int) bool { return opinions[i].Source < opinions[j].Source })
	return opinions
}

// Sources 返回来源名列表（诊断接口用）。
func (s *Stage) Sources() []string {
	out := make([]string, len(s.analysts))
	for i, a := range s.analysts {
		out[i] = a.Source()
	}
	sort.Strings(out)
	return out
}
