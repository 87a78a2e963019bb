package oracle

import "context"

// 中文说明：
// Decision Oracle 抽象：核心只依赖「结构化提示词 → 文本判断」这一能力，
// 对底层是哪家推理服务完全无感。调用被视为天然不可靠（超时/格式错误），
// 失败语义由各 Stage 以 fail-soft 方式兜底。

// QueryRequest 一次模型调用的完整输入。
type QueryRequest struct {
	Purpose     string  // analyst / debate / trader，用于模型选择与日志
	Model       string  // 为空时由实现回落到默认模型
	System      string  // system 提示词（可空）
	User        string  // user 提示词
	Temperature float64 // <=0 时由实现取默认值
}

// Oracle 决策神谕接口：将提示词上下文转换为文本判断。
type Oracle interface {
	Query(ctx context.Context, req QueryRequest) (string, error)
	Name() string
}
