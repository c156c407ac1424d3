// 配置热重载实现。
//
// 只有 guardrails 段可热更新；其余段变更后会记录告警，需要重启生效。
package config

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GuardrailsApplier 接收 guardrails 段的增量更新
type GuardrailsApplier interface {
	UpdateConfig(updates map[string]any) error
}

// ConfigChange 一次 guardrails 字段变更
type ConfigChange struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
	Applied   bool      `json:"applied"`
	Error     string    `json:"error,omitempty"`
}

// GuardrailsReloader 监听配置文件并热更新 guardrails 段
type GuardrailsReloader struct {
	loader *Loader
	target GuardrailsApplier
	logger *zap.Logger

	mu         sync.Mutex
	current    *Config
	changeLog  []ConfigChange
	maxHistory int
	watcher    *FileWatcher
}

// NewGuardrailsReloader 创建热重载器，initial 为启动时已生效的配置
func NewGuardrailsReloader(loader *Loader, initial *Config, target GuardrailsApplier, logger *zap.Logger) *GuardrailsReloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardrailsReloader{
		loader:     loader,
		target:     target,
		logger:     logger.With(zap.String("component", "config_reloader")),
		current:    initial,
		maxHistory: 100,
	}
}

// Reload 重新加载配置并应用 guardrails 段的变更
// 加载或校验失败时保持当前配置不变
func (r *GuardrailsReloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		r.logger.Warn("config reload rejected", zap.Error(err))
		return fmt.Errorf("reload config: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sections := restartSections(r.current, next); len(sections) > 0 {
		r.logger.Warn("config sections changed that require a restart", zap.Strings("sections", sections))
	}

	changes := diffSettings(r.current.Guardrails.ToMap(), next.Guardrails.ToMap(), time.Now())
	if len(changes) == 0 {
		r.current = next
		return nil
	}

	updates := make(map[string]any, len(changes))
	for _, c := range changes {
		updates[c.Key] = c.NewValue
	}
	if err := r.target.UpdateConfig(updates); err != nil {
		for i := range changes {
			changes[i].Error = err.Error()
		}
		r.recordLocked(changes)
		r.logger.Error("guardrails config update failed", zap.Error(err))
		return err
	}

	for i := range changes {
		changes[i].Applied = true
		r.logger.Info("guardrails setting reloaded",
			zap.String("key", changes[i].Key),
			zap.Any("old_value", changes[i].OldValue),
			zap.Any("new_value", changes[i].NewValue))
	}
	r.recordLocked(changes)
	r.current = next
	return nil
}

func (r *GuardrailsReloader) recordLocked(changes []ConfigChange) {
	r.changeLog = append(r.changeLog, changes...)
	if over := len(r.changeLog) - r.maxHistory; over > 0 {
		r.changeLog = r.changeLog[over:]
	}
}

// ChangeLog 返回最近的变更记录，limit <= 0 返回全部
func (r *GuardrailsReloader) ChangeLog(limit int) []ConfigChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	if limit > 0 && len(r.changeLog) > limit {
		start = len(r.changeLog) - limit
	}
	out := make([]ConfigChange, len(r.changeLog)-start)
	copy(out, r.changeLog[start:])
	return out
}

// Start 监听配置文件，文件变更时调用 Reload
func (r *GuardrailsReloader) Start(ctx context.Context, opts ...WatcherOption) error {
	path := r.loader.ConfigPath()
	if path == "" {
		return fmt.Errorf("no config file to watch")
	}

	opts = append([]WatcherOption{WithWatcherLogger(r.logger)}, opts...)
	w, err := NewFileWatcher([]string{path}, opts...)
	if err != nil {
		return err
	}
	w.OnChange(func(event FileEvent) {
		if event.Op == FileOpRemove {
			r.logger.Warn("config file removed, keeping current settings", zap.String("path", event.Path))
			return
		}
		_ = r.Reload()
	})
	if err := w.Start(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Stop 停止监听
func (r *GuardrailsReloader) Stop() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Stop()
}

// diffSettings 按键名排序返回变化的设置
func diffSettings(oldMap, newMap map[string]any, now time.Time) []ConfigChange {
	keys := make([]string, 0, len(newMap))
	for k := range newMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes []ConfigChange
	for _, k := range keys {
		if reflect.DeepEqual(oldMap[k], newMap[k]) {
			continue
		}
		changes = append(changes, ConfigChange{
			Timestamp: now,
			Key:       k,
			OldValue:  oldMap[k],
			NewValue:  newMap[k],
		})
	}
	return changes
}

// restartSections 返回除 guardrails 外发生变化的配置段
func restartSections(oldCfg, newCfg *Config) []string {
	ov := reflect.ValueOf(oldCfg).Elem()
	nv := reflect.ValueOf(newCfg).Elem()
	t := ov.Type()

	var sections []string
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("yaml")
		if name == "guardrails" {
			continue
		}
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			sections = append(sections, name)
		}
	}
	return sections
}
