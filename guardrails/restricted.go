package guardrails

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultRestrictedKeywords 默认受限关键词，按词首匹配（drug 命中 drugs）
var DefaultRestrictedKeywords = []string{
	"kill", "murder", "suicide", "bomb", "terrorist", "hate", "discriminate",
	"harass", "abuse", "violence", "weapon", "drug", "illegal", "explicit",
	"porn", "groom",
}

// keywordCategory 关键词到教育类别的映射
var keywordCategory = map[string]string{
	"kill":         EducationViolence,
	"murder":       EducationViolence,
	"bomb":         EducationViolence,
	"terrorist":    EducationViolence,
	"violence":     EducationViolence,
	"weapon":       EducationViolence,
	"abuse":        EducationViolence,
	"suicide":      EducationSelfHarm,
	"drug":         EducationDrugs,
	"illegal":      EducationIllegal,
	"explicit":     EducationExplicit,
	"porn":         EducationExplicit,
	"groom":        EducationExplicit,
	"hate":         EducationHateSpeech,
	"discriminate": EducationHateSpeech,
	"harass":       EducationHateSpeech,
}

// 教育类别
const (
	EducationViolence   = "violence"
	EducationSelfHarm   = "self_harm"
	EducationDrugs      = "drugs"
	EducationIllegal    = "illegal_activities"
	EducationExplicit   = "explicit_content"
	EducationHateSpeech = "hate_speech"
	EducationGeneral    = "general"
)

// 垃圾信息信号
const (
	SignalCharRepetition = "character_repetition"
	SignalExcessiveCaps  = "excessive_caps"
	SignalLinkDensity    = "link_density"
	SignalWordRepetition = "word_repetition"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	hashtagPattern = regexp.MustCompile(`#\w+`)
	capsPattern    = regexp.MustCompile(`\b[A-Z]{3,}\b`)
)

// RestrictedResult 受限内容检查结果
type RestrictedResult struct {
	HasRestricted bool      `json:"has_restricted"`
	Keywords      []string  `json:"keywords,omitempty"`
	SpamSignals   []string  `json:"spam_signals,omitempty"`
	Category      string    `json:"category,omitempty"`
	Risk          RiskLevel `json:"risk"`
}

// RestrictedChecker 受限关键词与垃圾信息检查
type RestrictedChecker struct {
	keywords []string
	pattern  *regexp.Regexp
}

// NewRestrictedChecker 创建受限内容检查器，keywords 为空时使用默认列表
func NewRestrictedChecker(keywords []string) *RestrictedChecker {
	if len(keywords) == 0 {
		keywords = DefaultRestrictedKeywords
	}
	quoted := make([]string, 0, len(keywords))
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		normalized = append(normalized, k)
		quoted = append(quoted, regexp.QuoteMeta(k))
	}
	// 较长关键词优先，避免前缀遮蔽
	sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return &RestrictedChecker{
		keywords: normalized,
		pattern:  regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\w*`),
	}
}

// Check 扫描关键词与垃圾信息信号，风险等级按信号数量给出
func (c *RestrictedChecker) Check(text string) *RestrictedResult {
	result := &RestrictedResult{Risk: RiskLow}

	seen := map[string]bool{}
	for _, m := range c.pattern.FindAllStringSubmatch(text, -1) {
		kw := strings.ToLower(m[1])
		if !seen[kw] {
			seen[kw] = true
			result.Keywords = append(result.Keywords, kw)
		}
	}
	result.SpamSignals = spamSignals(text)

	result.HasRestricted = len(result.Keywords) > 0 || len(result.SpamSignals) > 0
	switch {
	case len(result.Keywords) >= 3 || len(result.SpamSignals) >= 2:
		result.Risk = RiskHigh
	case result.HasRestricted:
		result.Risk = RiskMedium
	}
	if len(result.Keywords) > 0 {
		result.Category = categoryFor(result.Keywords)
	} else if result.HasRestricted {
		result.Category = EducationGeneral
	}
	return result
}

// categoryFor 选出教育类别，自伤优先
func categoryFor(keywords []string) string {
	best := ""
	for _, kw := range keywords {
		cat, ok := keywordCategory[kw]
		if !ok {
			cat = EducationGeneral
		}
		if cat == EducationSelfHarm {
			return cat
		}
		if best == "" {
			best = cat
		}
	}
	return best
}

func spamSignals(text string) []string {
	var signals []string

	if hasCharRun(text, 5) {
		signals = append(signals, SignalCharRepetition)
	}

	words := strings.Fields(text)
	if len(capsPattern.FindAllString(text, -1)) >= 3 {
		signals = append(signals, SignalExcessiveCaps)
	}

	links := len(urlPattern.FindAllString(text, -1)) + len(hashtagPattern.FindAllString(text, -1))
	if links > 0 && len(words) > 0 && float64(links)/float64(len(words)) >= 0.25 {
		signals = append(signals, SignalLinkDensity)
	}

	if _, ratio := dominantWord(words); len(words) > 10 && ratio > 0.3 {
		signals = append(signals, SignalWordRepetition)
	}
	return signals
}

// hasCharRun 是否存在同一非空白字符连续出现 n 次及以上
func hasCharRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= n {
				return true
			}
			continue
		}
		prev, run = r, 1
	}
	return false
}

// dominantWord 返回出现次数最多的词及其占比（不区分大小写）
func dominantWord(words []string) (string, float64) {
	if len(words) == 0 {
		return "", 0
	}
	counts := make(map[string]int, len(words))
	best, bestN := "", 0
	for _, w := range words {
		w = strings.ToLower(w)
		counts[w]++
		if counts[w] > bestN || (counts[w] == bestN && w < best) {
			best, bestN = w, counts[w]
		}
	}
	return best, float64(bestN) / float64(len(words))
}
