package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradearena/internal/logger"

	"golang.org/x/time/rate"
)

// 中文说明：
// ChatClient：兼容 OpenAI / DeepSeek / Qwen 的聊天补全接口（/v1/chat/completions）。
// 带限速与对 429/5xx 的有限重试；上层的 fail-soft 策略依赖这里最终返回 error 而非挂起。

type ChatClientConfig struct {
	BaseURL         string
	APIKey          string
	DefaultModel    string
	Timeout         time.Duration
	MaxRetries      int // 0 表示默认重试 2 次
	RateLimitPerMin int
}

type ChatClient struct {
	baseURL      string
	apiKey       string
	defaultModel string
	timeout      time.Duration
	maxRetries   int
	limiter      *rate.Limiter
	httpc        *http.Client
}

func NewChatClient(cfg ChatClientConfig) *ChatClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	return &ChatClient{
		baseURL:      normalizeBaseURL(cfg.BaseURL),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		timeout:      timeout,
		maxRetries:   maxRetries,
		limiter:      rate.NewLimiter(rate.Limit(float64(perMin)/60.0), max(1, perMin/6)),
		httpc:        &http.Client{Timeout: timeout},
	}
}

func (c *ChatClient) Name() string { return "openai" }

// normalizeBaseURL 规范化 BaseURL，避免用户把完整的 /chat/completions 也写进了配置导致重复路径。
func normalizeBaseURL(url string) string {
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *ChatClient) Query(ctx context.Context, req QueryRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = 0.5
	}

	messages := []map[string]string{}
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.User})
	body := map[string]any{"model": model, "messages": messages, "temperature": temperature}
	b, _ := json.Marshal(body)

	logger.LogOracleRequest(c.Name(), req.Purpose, req.System, req.User)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
		}

		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			lastErr = err
			break
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				lastErr = derr
				break
			}
			if len(r.Choices) == 0 {
				lastErr = fmt.Errorf("empty choices")
				break
			}
			out := r.Choices[0].Message.Content
			logger.LogOracleResponse(c.Name(), req.Purpose, out, nil)
			return out, nil
		}
		// 非 2xx：尝试解析错误消息
		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		// 对 429/5xx 进行有限重试（带 Retry-After 支持）
		if retryableStatus(resp.StatusCode) && attempt < c.maxRetries {
			wait := time.Duration(0)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			if wait == 0 {
				// 指数退避：0.8s, 1.6s, 3.2s ...
				wait = 800 * time.Millisecond << attempt
				if wait > 8*time.Second {
					wait = 8 * time.Second
				}
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		break
	}
	logger.LogOracleResponse(c.Name(), req.Purpose, "", lastErr)
	return "", lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
