package analysis

import (
	"fmt"

	"tradearena/internal/pkg/jsonutil"

	"github.com/tidwall/gjson"
)

// parseOpinion 从模型原始输出中解析结构化意见。
// 解析不出合法 JSON 时返回错误，由调用方回落为中性意见。
func parseOpinion(source, raw string) (Opinion, error) {
	cleaned := jsonutil.StripCodeFence(raw)
	obj, ok := jsonutil.ExtractObject(cleaned)
	if !ok {
		return Opinion{}, fmt.Errorf("输出中未找到 JSON 对象")
	}
	if !gjson.Valid(obj) {
		return Opinion{}, fmt.Errorf("JSON 格式无效")
	}
	parsed := gjson.Parse(obj)
	signalRaw := parsed.Get("signal").String()
	if signalRaw == "" {
		// 兼容旧提示词字段
		signalRaw = parsed.Get("trend").String()
	}
	if signalRaw == "" {
		return Opinion{}, fmt.Errorf("缺少 signal 字段")
	}
	op := Opinion{
		Source:     source,
		Signal:     NormalizeSignal(signalRaw),
		Confidence: ClampConfidence(int(parsed.Get("confidence").Int())),
		Rationale:  parsed.Get("rationale").String(),
	}
	parsed.Get("key_factors").ForEach(func(_, value gjson.Result) bool {
		if s := value.String(); s != "" {
			op.KeyFactors = append(op.KeyFactors, s)
		}
		return true
	})
	return op, nil
}
