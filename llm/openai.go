package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/internal/tlsutil"
	"github.com/BaSui01/safetycore/llm/circuitbreaker"
	"github.com/BaSui01/safetycore/types"
)

// Config OpenAI 兼容接口配置
type Config struct {
	APIKey      string        `yaml:"api_key" env:"API_KEY" json:"-"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL" json:"base_url"`
	Model       string        `yaml:"model" env:"MODEL" json:"model"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" json:"timeout"`

	// 连续失败 BreakerThreshold 次后熔断，BreakerResetTimeout 后放行一次试探
	BreakerThreshold    int           `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD" json:"breaker_threshold"`
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT" json:"breaker_reset_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   300,
		Timeout:     30 * time.Second,

		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// OpenAIClient 基于 /chat/completions 的语言模型客户端
type OpenAIClient struct {
	cfg     Config
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

// NewOpenAIClient 创建客户端，未设置的字段取默认值
func NewOpenAIClient(cfg Config, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	logger = logger.With(zap.String("component", "llm_client"))
	return &OpenAIClient{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
			IsFailure:    isModelOutage,
		}, logger),
		logger: logger,
	}
}

// isModelOutage 只有传输失败、超时与可重试的上游错误计入熔断；畸形响应说明模型仍可达
func isModelOutage(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrExternalServiceTimeout:
		return true
	case types.ErrUpstreamError:
		return types.IsRetryable(err)
	default:
		return false
	}
}

// BreakerState 熔断器当前状态
func (c *OpenAIClient) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Generate 普通补全
func (c *OpenAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
}

// Classify 以 JSON 模式请求并解码结果
func (c *OpenAIClient) Classify(ctx context.Context, prompt string, out any) error {
	content, err := c.complete(ctx, chatRequest{
		Model: c.cfg.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a classifier. Respond only with a single JSON object."},
			{Role: RoleUser, Content: prompt},
		},
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFence(content)), out); err != nil {
		return types.NewError(types.ErrMalformedModelResponse, "model returned malformed JSON").
			WithCause(err).WithComponent("llm")
	}
	return nil
}

func (c *OpenAIClient) complete(ctx context.Context, body chatRequest) (string, error) {
	content, err := circuitbreaker.CallWithResult(c.breaker, ctx, func(ctx context.Context) (string, error) {
		return c.send(ctx, body)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
		return "", types.NewError(types.ErrUpstreamError, "language model temporarily unavailable").
			WithCause(err).WithComponent("llm")
	}
	return content, err
}

func (c *OpenAIClient) send(ctx context.Context, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", types.NewError(types.ErrExternalServiceTimeout, "language model timed out").
				WithCause(err).WithComponent("llm")
		}
		return "", types.NewError(types.ErrUpstreamError, "language model request failed").
			WithCause(err).WithRetryable(true).WithComponent("llm")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("language model error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))).
			WithRetryable(retryable).WithComponent("llm")
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", types.NewError(types.ErrMalformedModelResponse, "failed to decode completion").
			WithCause(err).WithComponent("llm")
	}
	if len(cr.Choices) == 0 {
		return "", types.NewError(types.ErrMalformedModelResponse, "empty choices in completion").
			WithComponent("llm")
	}

	c.logger.Debug("completion finished",
		zap.String("model", cr.Model),
		zap.String("finish_reason", cr.Choices[0].FinishReason),
		zap.Duration("latency", time.Since(start)))
	return cr.Choices[0].Message.Content, nil
}
