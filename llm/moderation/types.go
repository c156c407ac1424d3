package moderation

import (
	"context"
	"time"
)

// ModerationProvider defines the interface for content moderation.
type ModerationProvider interface {
	Name() string
	Moderate(ctx context.Context, req *ModerationRequest) (*ModerationResponse, error)
}

// ModerationRequest represents a moderation request.
type ModerationRequest struct {
	Input []string `json:"input"`           // Text inputs to moderate
	Model string   `json:"model,omitempty"` // Model to use
}

// ModerationResponse represents a moderation response.
type ModerationResponse struct {
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Results   []ModerationResult `json:"results"`
	CreatedAt time.Time          `json:"created_at"`
}

// ModerationResult represents the result for a single input.
type ModerationResult struct {
	Flagged bool `json:"flagged"`
	// Scores 服务商原始类别名 -> 分数
	Scores map[string]float64 `json:"scores"`
}

// Toxicity 类别名
const (
	CategoryToxicity       = "toxicity"
	CategoryInsult         = "insult"
	CategoryThreat         = "threat"
	CategoryIdentityAttack = "identity_attack"
	CategoryObscene        = "obscene"
	CategorySelfHarm       = "self_harm"
)

// categoryMapping 防护层类别 -> 服务商类别（取最高分）
var categoryMapping = map[string][]string{
	CategoryInsult:         {"harassment"},
	CategoryThreat:         {"hate/threatening", "harassment/threatening", "violence"},
	CategoryIdentityAttack: {"hate"},
	CategoryObscene:        {"sexual"},
	CategorySelfHarm:       {"self-harm", "self-harm/intent"},
}

// ToxicityScores 将服务商分数折算为毒性类别分数
func (r ModerationResult) ToxicityScores() map[string]float64 {
	out := make(map[string]float64, len(categoryMapping)+1)
	for category, sources := range categoryMapping {
		best := 0.0
		for _, s := range sources {
			if v := r.Scores[s]; v > best {
				best = v
			}
		}
		out[category] = best
	}
	overall := 0.0
	for _, v := range r.Scores {
		if v > overall {
			overall = v
		}
	}
	out[CategoryToxicity] = overall
	return out
}
