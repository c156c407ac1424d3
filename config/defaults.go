// =============================================================================
// 📦 safetycore 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/safetycore/conversation"
	"github.com/BaSui01/safetycore/guardrails"
	"github.com/BaSui01/safetycore/llm"
	"github.com/BaSui01/safetycore/llm/moderation"
	"github.com/BaSui01/safetycore/mood"
	"github.com/BaSui01/safetycore/orchestrator"
)

// 毒性检测提供方
const (
	ToxicityProviderKeyword = "keyword"
	ToxicityProviderOpenAI  = "openai"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Guardrails: orchestrator.DefaultRuntimeConfig(),
		Input:      guardrails.DefaultInputRules(),
		Toxicity:   DefaultToxicityConfig(),
		PII:        DefaultPIIConfig(),
		Output:     DefaultOutputConfig(),
		LLM:        llm.DefaultConfig(),
		Mood:       mood.DefaultConfig(),
		Context:    conversation.DefaultManagerConfig(),
		Redis:      DefaultRedisConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RateLimitPerMinute: 30,
		RateLimitBurst:     5,
		MetricsNamespace:   "safetycore",
	}
}

// DefaultToxicityConfig 返回默认毒性检测配置
func DefaultToxicityConfig() ToxicityConfig {
	return ToxicityConfig{
		Provider:   ToxicityProviderKeyword,
		Moderation: moderation.DefaultOpenAIConfig(),
	}
}

// DefaultPIIConfig 返回默认 PII 配置
func DefaultPIIConfig() PIIConfig {
	return PIIConfig{
		PresidioEnabled: false,
		Presidio: guardrails.PresidioConfig{
			BaseURL:  "http://localhost:5002",
			Language: "en",
			Timeout:  3 * time.Second,
		},
		RecognizerTimeout: 3 * time.Second,
	}
}

// DefaultOutputConfig 返回默认输出防护配置
func DefaultOutputConfig() OutputConfig {
	def := guardrails.DefaultOutputGuardConfig()
	return OutputConfig{
		MinLength:         def.MinLength,
		MaxLength:         def.MaxLength,
		AlignmentMinInput: def.AlignmentMinInput,
		AuditCapacity:     1000,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "safetycore:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "safetycore",
		SampleRate:   0.1,
	}
}
