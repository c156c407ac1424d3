package guardrails

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// AuditEventType 审计事件类型
type AuditEventType string

const (
	// AuditEventOutputUnsafe 输出被替换为安全回复
	AuditEventOutputUnsafe AuditEventType = "output_unsafe"
	// AuditEventOutputScrubbed 输出中的 PII 被脱敏
	AuditEventOutputScrubbed AuditEventType = "output_scrubbed"
	// AuditEventOutputError 输出校验内部错误
	AuditEventOutputError AuditEventType = "output_error"
)

// AuditLogEntry 审计日志条目，只保存内容哈希
type AuditLogEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	ContentHash string         `json:"content_hash"`
	Kinds       []string       `json:"kinds,omitempty"`
	RiskLevel   RiskLevel      `json:"risk_level"`
}

// AuditLogger 审计日志记录器
type AuditLogger interface {
	Log(ctx context.Context, entry *AuditLogEntry) error
	Query(ctx context.Context, filter *AuditLogFilter) ([]*AuditLogEntry, error)
}

// AuditLogFilter 审计日志查询过滤器
type AuditLogFilter struct {
	StartTime  *time.Time
	EventTypes []AuditEventType
	Limit      int
}

// MemoryAuditLogger 内存审计日志，超过容量时丢弃最旧条目
type MemoryAuditLogger struct {
	entries []*AuditLogEntry
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryAuditLogger 创建内存审计日志
func NewMemoryAuditLogger(maxSize int) *MemoryAuditLogger {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryAuditLogger{maxSize: maxSize}
}

// Log 记录审计日志
func (l *MemoryAuditLogger) Log(_ context.Context, entry *AuditLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.maxSize {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
	return nil
}

// Query 按过滤条件返回条目，按记录顺序
func (l *MemoryAuditLogger) Query(_ context.Context, filter *AuditLogFilter) ([]*AuditLogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*AuditLogEntry
	for _, e := range l.entries {
		if matchAuditFilter(e, filter) {
			result = append(result, e)
		}
	}
	if filter != nil && filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Len 返回当前条目数
func (l *MemoryAuditLogger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func matchAuditFilter(e *AuditLogEntry, filter *AuditLogFilter) bool {
	if filter == nil {
		return true
	}
	if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if len(filter.EventTypes) == 0 {
		return true
	}
	for _, t := range filter.EventTypes {
		if e.EventType == t {
			return true
		}
	}
	return false
}

// hashContent 计算内容的 SHA256 哈希
func hashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
