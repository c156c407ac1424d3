package conversation

import (
	"regexp"
	"strings"
)

// 话题类型
const (
	TopicEducational = "educational"
	TopicPersonal    = "personal"
)

var topicPatterns = []struct {
	topicType string
	words     []string
}{
	{TopicEducational, []string{
		"science", "math", "history", "biology", "chemistry", "physics",
		"literature", "art", "music", "technology", "programming",
	}},
	{TopicPersonal, []string{
		"family", "friends", "relationship", "work", "school", "health",
		"goals", "dreams", "future", "memories",
	}},
}

var topicMatchers = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(topicPatterns))
	for i, p := range topicPatterns {
		out[i] = regexp.MustCompile(`(?i)\b(` + strings.Join(p.words, "|") + `)\b`)
	}
	return out
}()

// ExtractTopics 按出现顺序返回消息中提到的话题（去重）
func ExtractTopics(text string) []Topic {
	var out []Topic
	seen := map[string]bool{}
	for i, re := range topicMatchers {
		for _, m := range re.FindAllString(text, -1) {
			name := strings.ToLower(m)
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, Topic{Name: name, Type: topicPatterns[i].topicType})
		}
	}
	return out
}
