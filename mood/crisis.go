package mood

import (
	"regexp"
	"strings"
)

var crisisPattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join([]string{
	`kill(?:ing)? myself`,
	`end(?:ing)? my life`,
	`take my (?:own )?life`,
	`suicid(?:e|al)`,
	`want(?:ed)? to die`,
	`wish i (?:was|were) dead`,
	`better off dead`,
	`no reason to live`,
	`hurt(?:ing)? myself`,
	`self[- ]?harm`,
	`can'?t go on`,
}, "|") + `)\b`)

// ScanCrisis 返回文本中命中的危机短语（小写、去重，按出现顺序）
func ScanCrisis(text string) []string {
	matches := crisisPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.ToLower(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// applyCrisis 命中危机短语时强制升级
func applyCrisis(a *Analysis, text string) {
	phrases := ScanCrisis(text)
	if len(phrases) == 0 {
		return
	}
	a.Crisis = true
	a.SupportNeeded = true
	a.Sensitivity = SensitivityHigh
	for _, p := range phrases {
		a.Indicators = append(a.Indicators, "crisis: "+p)
	}
}

// Screen 只做本地危机短语扫描，不调用模型；用于跳过完整分析的拦截路径
func Screen(text string) Analysis {
	a := Fallback()
	applyCrisis(&a, text)
	return a
}
