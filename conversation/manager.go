package conversation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/mood"
)

// ManagerConfig 会话管理配置
type ManagerConfig struct {
	// TTL 空闲超过该时长的会话会被清理
	TTL time.Duration `yaml:"ttl" env:"TTL" json:"ttl"`
	// SweepInterval 后台清理间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" json:"sweep_interval"`
	// MaxSessions 会话数上限，超出时淘汰最久未活动的会话
	MaxSessions int `yaml:"max_sessions" env:"MAX_SESSIONS" json:"max_sessions"`
}

// DefaultManagerConfig 返回默认配置
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		TTL:           24 * time.Hour,
		SweepInterval: 10 * time.Minute,
		MaxSessions:   10000,
	}
}

// Manager 会话上下文管理器
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Context
}

// NewManager 创建管理器
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultManagerConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "context_manager")),
		now:      time.Now,
		sessions: make(map[string]*Context),
	}
}

// GetOrCreate 返回会话上下文，不存在时创建
func (m *Manager) GetOrCreate(userID, sessionID string, prefs map[string]string) *Context {
	m.mu.RLock()
	c, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(userID, sessionID, prefs)
}

func (m *Manager) getOrCreateLocked(userID, sessionID string, prefs map[string]string) *Context {
	if c, ok := m.sessions[sessionID]; ok {
		return c
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestLocked()
	}
	c := newContext(userID, sessionID, prefs, m.now)
	m.sessions[sessionID] = c
	return c
}

// Peek 查找会话，不创建
func (m *Manager) Peek(sessionID string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[sessionID]
	return c, ok
}

// Entry 一条入站消息需要写入会话的内容
type Entry struct {
	Message    Message
	Mood       mood.Mood
	Confidence float64
	Topics     []Topic
	// Education 非空时记录一次教育引导
	Education *EducationalTopic
}

// Record 取得或创建会话，并在持有管理器锁期间写入 e。
// 写入总是落在当前登记的会话上，不会写进已被淘汰的旧对象。
func (m *Manager) Record(userID, sessionID string, prefs map[string]string, e Entry) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.getOrCreateLocked(userID, sessionID, prefs)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addMessageLocked(e.Message)
	if e.Mood != "" {
		c.updateMoodLocked(e.Mood, e.Confidence)
	}
	for _, t := range e.Topics {
		c.addTopicLocked(t.Name, t.Type)
	}
	if e.Education != nil {
		c.addEducationalLocked(e.Education.Topic, e.Education.Content)
	}
	return c
}

// Remove 删除会话
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len 返回当前会话数
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep 清理空闲超过 maxAge 的会话，返回清理数量
func (m *Manager) Sweep(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.sessions {
		if c.LastActivity().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("swept idle sessions",
			zap.Int("removed", removed),
			zap.Int("remaining", len(m.sessions)))
	}
	return removed
}

// Start 按 SweepInterval 周期性清理，ctx 取消后退出
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(m.cfg.TTL)
			}
		}
	}()
}

func (m *Manager) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, c := range m.sessions {
		if last := c.LastActivity(); oldestID == "" || last.Before(oldest) {
			oldestID, oldest = id, last
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
		m.logger.Warn("session capacity reached, evicted least recently active session",
			zap.Int("max_sessions", m.cfg.MaxSessions))
	}
}
