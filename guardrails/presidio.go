package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/safetycore/internal/tlsutil"
)

// presidioTypes Presidio 实体名 -> 本地类型
var presidioTypes = map[string]PIIType{
	"EMAIL_ADDRESS":     PIIEmail,
	"PHONE_NUMBER":      PIIPhone,
	"US_SSN":            PIISSN,
	"CREDIT_CARD":       PIICreditCard,
	"IP_ADDRESS":        PIIIPAddress,
	"PERSON":            PIIPerson,
	"LOCATION":          PIILocation,
	"US_BANK_NUMBER":    PIIBankNumber,
	"IBAN_CODE":         PIIBankNumber,
	"US_DRIVER_LICENSE": PIIDriverLicense,
	"URL":               PIIURL,
}

// PresidioConfig Presidio analyzer 配置
type PresidioConfig struct {
	BaseURL  string        `yaml:"base_url" env:"BASE_URL" json:"base_url"`
	Language string        `yaml:"language" env:"LANGUAGE" json:"language"`
	Entities []string      `yaml:"entities" env:"ENTITIES" json:"entities"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT" json:"timeout"`
}

// PresidioRecognizer 通过 Presidio analyzer /analyze 接口识别实体
type PresidioRecognizer struct {
	baseURL  string
	language string
	entities []string
	client   *http.Client
}

type presidioRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Entities []string `json:"entities,omitempty"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// NewPresidioRecognizer 创建 Presidio 识别器
func NewPresidioRecognizer(cfg PresidioConfig) *PresidioRecognizer {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if len(cfg.Entities) == 0 {
		cfg.Entities = []string{"PHONE_NUMBER", "EMAIL_ADDRESS", "CREDIT_CARD", "US_SSN", "PERSON", "LOCATION", "IP_ADDRESS"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &PresidioRecognizer{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
		entities: cfg.Entities,
		client:   tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

// Recognize 调用 analyzer 并将字符偏移转换为字节偏移
func (p *PresidioRecognizer) Recognize(ctx context.Context, text string) ([]PIIEntity, error) {
	body, err := json.Marshal(presidioRequest{Text: text, Language: p.language, Entities: p.entities})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal presidio request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create presidio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presidio analyzer unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("presidio returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []presidioResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode presidio response: %w", err)
	}

	offsets := runeOffsets(text)
	entities := make([]PIIEntity, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End >= len(offsets) || r.Start >= r.End {
			continue
		}
		typ, ok := presidioTypes[r.EntityType]
		if !ok {
			typ = PIIType(r.EntityType)
		}
		entities = append(entities, PIIEntity{
			Type:       typ,
			Start:      offsets[r.Start],
			End:        offsets[r.End],
			Confidence: r.Score,
			Source:     "presidio",
		})
	}
	return entities, nil
}

// runeOffsets 返回第 i 个字符的字节偏移，末尾附加 len(text)
func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
