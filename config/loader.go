// =============================================================================
// 📦 safetycore 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SAFETYCORE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/safetycore/conversation"
	"github.com/BaSui01/safetycore/guardrails"
	"github.com/BaSui01/safetycore/internal/cache"
	"github.com/BaSui01/safetycore/llm"
	"github.com/BaSui01/safetycore/llm/moderation"
	"github.com/BaSui01/safetycore/mood"
	"github.com/BaSui01/safetycore/orchestrator"
	"github.com/BaSui01/safetycore/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 safetycore 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Guardrails 运行时阈值与开关，可热更新
	Guardrails orchestrator.RuntimeConfig `yaml:"guardrails" env:"GUARDRAILS"`

	// Input 输入结构规则
	Input guardrails.InputRules `yaml:"input" env:"INPUT"`

	// Toxicity 毒性检测配置
	Toxicity ToxicityConfig `yaml:"toxicity" env:"TOXICITY"`

	// PII 识别配置
	PII PIIConfig `yaml:"pii" env:"PII"`

	// Output 输出防护配置
	Output OutputConfig `yaml:"output" env:"OUTPUT"`

	// LLM 情绪分析使用的语言模型
	LLM llm.Config `yaml:"llm" env:"LLM"`

	// Mood 情绪分析配置
	Mood mood.Config `yaml:"mood" env:"MOOD"`

	// Context 会话上下文配置
	Context conversation.ManagerConfig `yaml:"context" env:"CONTEXT"`

	// Redis 情绪分析缓存
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端每分钟允许的请求数
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// Prometheus 指标命名空间
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

// ToxicityConfig 毒性检测配置
type ToxicityConfig struct {
	// Provider: keyword, openai
	Provider string `yaml:"provider" env:"PROVIDER"`
	// Moderation OpenAI moderation 接口配置
	Moderation moderation.OpenAIConfig `yaml:"moderation" env:"MODERATION"`
}

// PIIConfig PII 识别配置
type PIIConfig struct {
	// 是否启用 Presidio analyzer，关闭时只用正则
	PresidioEnabled bool `yaml:"presidio_enabled" env:"PRESIDIO_ENABLED"`
	// Presidio analyzer 配置
	Presidio guardrails.PresidioConfig `yaml:"presidio" env:"PRESIDIO"`
	// 识别服务调用超时
	RecognizerTimeout time.Duration `yaml:"recognizer_timeout" env:"RECOGNIZER_TIMEOUT"`
}

// OutputConfig 输出防护配置
type OutputConfig struct {
	// 回复最短长度
	MinLength int `yaml:"min_length" env:"MIN_LENGTH"`
	// 回复最长长度
	MaxLength int `yaml:"max_length" env:"MAX_LENGTH"`
	// 用户输入不超过该长度时跳过相关性检查
	AlignmentMinInput int `yaml:"alignment_min_input" env:"ALIGNMENT_MIN_INPUT"`
	// 安全回复随机种子，0 表示按启动时间
	FallbackSeed int64 `yaml:"fallback_seed" env:"FALLBACK_SEED"`
	// 内存审计日志容量
	AuditCapacity int `yaml:"audit_capacity" env:"AUDIT_CAPACITY"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 启用 TLS
	TLSEnabled bool `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// CacheConfig 转换为缓存管理器配置
func (r RedisConfig) CacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Addr = r.Addr
	cfg.Password = r.Password
	cfg.DB = r.DB
	cfg.TLSEnabled = r.TLSEnabled
	if r.KeyPrefix != "" {
		cfg.KeyPrefix = r.KeyPrefix
	}
	if r.PoolSize > 0 {
		cfg.PoolSize = r.PoolSize
	}
	if r.MinIdleConns > 0 {
		cfg.MinIdleConns = r.MinIdleConns
	}
	return cfg
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SAFETYCORE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 返回配置文件路径
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load 加载并验证配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 内置校验与自定义验证器
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
	validToxicity   = map[string]bool{ToxicityProviderKeyword: true, ToxicityProviderOpenAI: true}
)

// Validate 验证配置，一次性返回所有问题
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, "rate_limit_per_minute must not be negative")
	}

	if err := c.Guardrails.Validate(); err != nil {
		var e *types.Error
		if errors.As(err, &e) {
			errs = append(errs, e.Message)
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.Input.MinLength < 0 || c.Input.MaxLength < c.Input.MinLength {
		errs = append(errs, "input length bounds are inconsistent")
	}
	if c.Input.MinWords < 0 || c.Input.MaxWords < c.Input.MinWords {
		errs = append(errs, "input word bounds are inconsistent")
	}

	if !validToxicity[c.Toxicity.Provider] {
		errs = append(errs, fmt.Sprintf("unknown toxicity provider %q", c.Toxicity.Provider))
	}
	if c.Toxicity.Provider == ToxicityProviderOpenAI && c.Toxicity.Moderation.APIKey == "" {
		errs = append(errs, "toxicity.moderation.api_key is required for the openai provider")
	}

	if c.PII.PresidioEnabled && c.PII.Presidio.BaseURL == "" {
		errs = append(errs, "pii.presidio.base_url is required when presidio is enabled")
	}

	if c.Output.MaxLength > 0 && c.Output.MaxLength < c.Output.MinLength {
		errs = append(errs, "output length bounds are inconsistent")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if !validLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig, "config validation errors: "+strings.Join(errs, "; "))
	}

	return nil
}
