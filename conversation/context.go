package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/safetycore/mood"
)

const (
	// MaxHistory 保留的消息轮数
	MaxHistory = 15
	// MaxMoodSamples 保留的情绪样本数
	MaxMoodSamples = 10
	// trendWindow 计算趋势使用的样本数
	trendWindow = 5
	// maxSuggestions 引导建议条数上限
	maxSuggestions = 3
)

// Trend 情绪趋势
type Trend string

const (
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
	TrendImproving Trend = "improving"
)

// MoodTrend 情绪趋势分析结果
type MoodTrend struct {
	Trend       Trend     `json:"trend"`
	Direction   string    `json:"direction"`
	PrimaryMood mood.Mood `json:"primary_mood"`
}

// Message 一条对话消息
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MoodSample 情绪样本
type MoodSample struct {
	Mood       mood.Mood `json:"mood"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Topic 讨论过的话题
type Topic struct {
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	FirstMentioned time.Time `json:"first_mentioned"`
}

// EducationalTopic 已覆盖的教育话题
type EducationalTopic struct {
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// 偏好键
const (
	PrefMorning     = "morning_preference"
	PrefLifeGenre   = "life_genre"
	PrefWeeklyGoal  = "weekly_goal"
	PrefFavoriteApp = "favorite_app"
)

var preferenceTemplates = []struct {
	key    string
	format string
}{
	{PrefMorning, "Tell me about your %s routine"},
	{PrefLifeGenre, "Let's talk about %s - what's your favorite story?"},
	{PrefWeeklyGoal, "How's your progress on your goal: %s?"},
	{PrefFavoriteApp, "What do you like most about %s?"},
}

// GenericSuggestions 通用的积极话题
var GenericSuggestions = []string{
	"What's something that made you smile today?",
	"Tell me about a recent achievement you're proud of",
	"What's your favorite way to relax?",
	"Share something interesting you learned recently",
}

// Context 单个会话的上下文
type Context struct {
	UserID    string
	SessionID string

	mu           sync.Mutex
	prefs        map[string]string
	history      []Message
	currentMood  mood.Mood
	moods        []MoodSample
	topics       []Topic
	educational  []EducationalTopic
	lastActivity time.Time
	now          func() time.Time
}

func newContext(userID, sessionID string, prefs map[string]string, now func() time.Time) *Context {
	copied := make(map[string]string, len(prefs))
	for k, v := range prefs {
		copied[k] = v
	}
	return &Context{
		UserID:       userID,
		SessionID:    sessionID,
		prefs:        copied,
		currentMood:  mood.Neutral,
		lastActivity: now(),
		now:          now,
	}
}

// AddMessage 追加消息并刷新活动时间
func (c *Context) AddMessage(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addMessageLocked(msg)
}

func (c *Context) addMessageLocked(msg Message) {
	now := c.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	c.history = append(c.history, msg)
	if len(c.history) > MaxHistory {
		c.history = append([]Message(nil), c.history[len(c.history)-MaxHistory:]...)
	}
	c.lastActivity = now
}

// UpdateMood 记录情绪样本
func (c *Context) UpdateMood(m mood.Mood, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateMoodLocked(m, confidence)
}

func (c *Context) updateMoodLocked(m mood.Mood, confidence float64) {
	c.currentMood = m
	c.moods = append(c.moods, MoodSample{Mood: m, Confidence: confidence, Timestamp: c.now()})
	if len(c.moods) > MaxMoodSamples {
		c.moods = append([]MoodSample(nil), c.moods[len(c.moods)-MaxMoodSamples:]...)
	}
}

// AddTopic 记录话题，同名话题只记录一次
func (c *Context) AddTopic(name, topicType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addTopicLocked(name, topicType)
}

func (c *Context) addTopicLocked(name, topicType string) {
	for _, t := range c.topics {
		if t.Name == name {
			return
		}
	}
	c.topics = append(c.topics, Topic{Name: name, Type: topicType, FirstMentioned: c.now()})
}

// AddEducationalTopic 记录一次教育引导
func (c *Context) AddEducationalTopic(topic, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addEducationalLocked(topic, content)
}

func (c *Context) addEducationalLocked(topic, content string) {
	c.educational = append(c.educational, EducationalTopic{Topic: topic, Content: content, Timestamp: c.now()})
}

// RecentContext 返回最近 limit 条消息的副本
func (c *Context) RecentContext(limit int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if limit <= 0 || limit > len(c.history) {
		limit = len(c.history)
	}
	return append([]Message(nil), c.history[len(c.history)-limit:]...)
}

// Turns 以情绪分析使用的格式返回最近 limit 轮
func (c *Context) Turns(limit int) []mood.Turn {
	recent := c.RecentContext(limit)
	turns := make([]mood.Turn, len(recent))
	for i, m := range recent {
		turns[i] = mood.Turn{Role: m.Role, Content: m.Content}
	}
	return turns
}

// CurrentMood 返回最近一次记录的情绪
func (c *Context) CurrentMood() mood.Mood {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentMood
}

// LastActivity 返回最后活动时间
func (c *Context) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// HistoryLen 返回保留的消息数
func (c *Context) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// MoodSamples 返回情绪样本副本
func (c *Context) MoodSamples() []MoodSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MoodSample(nil), c.moods...)
}

// MoodTrend 计算最近情绪样本的趋势
func (c *Context) MoodTrend() MoodTrend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moodTrendLocked()
}

func (c *Context) moodTrendLocked() MoodTrend {
	if len(c.moods) < 2 {
		return MoodTrend{Trend: TrendStable, Direction: "none", PrimaryMood: c.currentMood}
	}
	window := c.moods
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}

	counts := make(map[mood.Mood]int, len(window))
	primary, best := mood.Neutral, 0
	// 从新到旧遍历，票数相同时较新的情绪优先
	for i := len(window) - 1; i >= 0; i-- {
		m := window[i].Mood
		counts[m]++
		if counts[m] > best {
			primary, best = m, counts[m]
		}
	}

	n := len(window)
	switch {
	case counts[mood.Sad]*5 >= n*3:
		return MoodTrend{Trend: TrendDeclining, Direction: "negative", PrimaryMood: mood.Sad}
	case counts[mood.Happy]*5 >= n*3:
		return MoodTrend{Trend: TrendImproving, Direction: "positive", PrimaryMood: mood.Happy}
	default:
		return MoodTrend{Trend: TrendStable, Direction: "neutral", PrimaryMood: primary}
	}
}

// ShouldRedirect 判断是否需要引导对话
func (c *Context) ShouldRedirect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldRedirectLocked()
}

func (c *Context) shouldRedirectLocked() bool {
	trend := c.moodTrendLocked()
	if trend.Trend == TrendDeclining {
		return true
	}
	return len(c.educational) > 3 && trend.PrimaryMood != mood.Happy
}

// RedirectSuggestions 返回至多 3 条引导建议
func (c *Context) RedirectSuggestions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suggestionsLocked()
}

func (c *Context) suggestionsLocked() []string {
	out := make([]string, 0, maxSuggestions)
	for _, t := range preferenceTemplates {
		if len(out) == maxSuggestions {
			return out
		}
		if v := c.prefs[t.key]; v != "" {
			out = append(out, fmt.Sprintf(t.format, v))
		}
	}
	for _, s := range GenericSuggestions {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, s)
	}
	return out
}

// Summary 会话摘要
type Summary struct {
	SessionID              string    `json:"session_id"`
	UserID                 string    `json:"user_id"`
	CurrentMood            mood.Mood `json:"current_mood"`
	MoodTrend              MoodTrend `json:"mood_trend"`
	TopicsCount            int       `json:"topics_count"`
	EducationalTopicsCount int       `json:"educational_topics_count"`
	MessageCount           int       `json:"message_count"`
	ShouldRedirect         bool      `json:"should_redirect"`
	RedirectSuggestions    []string  `json:"redirect_suggestions"`
	LastActivity           time.Time `json:"last_activity"`
}

// Summary 返回会话摘要，仅在需要引导时附带建议
func (c *Context) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		SessionID:              c.SessionID,
		UserID:                 c.UserID,
		CurrentMood:            c.currentMood,
		MoodTrend:              c.moodTrendLocked(),
		TopicsCount:            len(c.topics),
		EducationalTopicsCount: len(c.educational),
		MessageCount:           len(c.history),
		ShouldRedirect:         c.shouldRedirectLocked(),
		RedirectSuggestions:    []string{},
		LastActivity:           c.lastActivity,
	}
	if s.ShouldRedirect {
		s.RedirectSuggestions = c.suggestionsLocked()
	}
	return s
}
