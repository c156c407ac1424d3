package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/BaSui01/safetycore/types"
)

// 运行时配置键
const (
	KeyToxicityThreshold       = "toxicity_threshold"
	KeyPIIThreshold            = "pii_threshold"
	KeyEnablePIIScrubbing      = "enable_pii_scrubbing"
	KeyEnableToxicityDetection = "enable_toxicity_detection"
	KeyEnableInputValidation   = "enable_input_validation"
	KeyBlockOnHighRisk         = "block_on_high_risk"
)

// RuntimeConfig 可在运行时调整的阈值与开关
type RuntimeConfig struct {
	ToxicityThreshold       float64 `yaml:"toxicity_threshold" env:"TOXICITY_THRESHOLD" json:"toxicity_threshold"`
	PIIThreshold            float64 `yaml:"pii_threshold" env:"PII_THRESHOLD" json:"pii_threshold"`
	EnablePIIScrubbing      bool    `yaml:"enable_pii_scrubbing" env:"ENABLE_PII_SCRUBBING" json:"enable_pii_scrubbing"`
	EnableToxicityDetection bool    `yaml:"enable_toxicity_detection" env:"ENABLE_TOXICITY_DETECTION" json:"enable_toxicity_detection"`
	EnableInputValidation   bool    `yaml:"enable_input_validation" env:"ENABLE_INPUT_VALIDATION" json:"enable_input_validation"`
	BlockOnHighRisk         bool    `yaml:"block_on_high_risk" env:"BLOCK_ON_HIGH_RISK" json:"block_on_high_risk"`
}

// DefaultRuntimeConfig 返回默认运行时配置
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ToxicityThreshold:       0.7,
		PIIThreshold:            0.5,
		EnablePIIScrubbing:      true,
		EnableToxicityDetection: true,
		EnableInputValidation:   true,
		BlockOnHighRisk:         true,
	}
}

// Validate 校验阈值范围
func (c RuntimeConfig) Validate() error {
	var problems []string
	if !inUnitRange(c.ToxicityThreshold) {
		problems = append(problems, fmt.Sprintf("%s must be within [0, 1], got %v", KeyToxicityThreshold, c.ToxicityThreshold))
	}
	if !inUnitRange(c.PIIThreshold) {
		problems = append(problems, fmt.Sprintf("%s must be within [0, 1], got %v", KeyPIIThreshold, c.PIIThreshold))
	}
	if len(problems) > 0 {
		return types.NewError(types.ErrInvalidConfig, strings.Join(problems, "; ")).WithComponent("orchestrator")
	}
	return nil
}

// inUnitRange 判断 v 是否位于 [0, 1]，NaN 视为越界
func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// ToMap 以配置键导出
func (c RuntimeConfig) ToMap() map[string]any {
	return map[string]any{
		KeyToxicityThreshold:       c.ToxicityThreshold,
		KeyPIIThreshold:            c.PIIThreshold,
		KeyEnablePIIScrubbing:      c.EnablePIIScrubbing,
		KeyEnableToxicityDetection: c.EnableToxicityDetection,
		KeyEnableInputValidation:   c.EnableInputValidation,
		KeyBlockOnHighRisk:         c.BlockOnHighRisk,
	}
}

// Merge 在副本上应用更新；未知键、类型错误或越界值会使整个更新失败
func (c RuntimeConfig) Merge(updates map[string]any) (RuntimeConfig, error) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := c
	var problems []string
	for _, k := range keys {
		v := updates[k]
		var err error
		switch k {
		case KeyToxicityThreshold:
			next.ToxicityThreshold, err = toFloat(v)
		case KeyPIIThreshold:
			next.PIIThreshold, err = toFloat(v)
		case KeyEnablePIIScrubbing:
			next.EnablePIIScrubbing, err = toBool(v)
		case KeyEnableToxicityDetection:
			next.EnableToxicityDetection, err = toBool(v)
		case KeyEnableInputValidation:
			next.EnableInputValidation, err = toBool(v)
		case KeyBlockOnHighRisk:
			next.BlockOnHighRisk, err = toBool(v)
		default:
			err = errors.New("unknown key")
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", k, err))
		}
	}
	if len(problems) > 0 {
		return c, types.NewError(types.ErrInvalidConfig, "invalid config update: "+strings.Join(problems, "; ")).
			WithComponent("orchestrator")
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
	return b, nil
}
