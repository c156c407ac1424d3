package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/internal/tlsutil"
)

// OpenAIProvider 使用 OpenAI Moderation API 执行审核
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI 审核提供者
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "openai_moderation")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai-moderation" }

type openAIModerationRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type openAIModerationResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool               `json:"flagged"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Moderate 检查文本是否违反内容策略
func (p *OpenAIProvider) Moderate(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	payload, err := json.Marshal(openAIModerationRequest{Model: model, Input: req.Input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/moderations", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("moderation error: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var oResp openAIModerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]ModerationResult, len(oResp.Results))
	for i, r := range oResp.Results {
		results[i] = ModerationResult{Flagged: r.Flagged, Scores: r.CategoryScores}
	}

	return &ModerationResponse{
		Provider:  p.Name(),
		Model:     oResp.Model,
		Results:   results,
		CreatedAt: time.Now(),
	}, nil
}

// Score 审核单条文本并返回毒性类别分数，实现 guardrails.ToxicityClassifier
func (p *OpenAIProvider) Score(ctx context.Context, text string) (map[string]float64, error) {
	resp, err := p.Moderate(ctx, &ModerationRequest{Input: []string{text}})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("moderation response has no results")
	}
	result := resp.Results[0]
	p.logger.Debug("moderation scored",
		zap.String("model", resp.Model),
		zap.Bool("flagged", result.Flagged),
		zap.Int("text_length", len(text)))
	return result.ToxicityScores(), nil
}
