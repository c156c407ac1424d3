// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/safetycore/types"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 服务器
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, "safetycore", cfg.Server.MetricsNamespace)

	// 运行时阈值
	assert.Equal(t, 0.7, cfg.Guardrails.ToxicityThreshold)
	assert.Equal(t, 0.5, cfg.Guardrails.PIIThreshold)
	assert.True(t, cfg.Guardrails.EnablePIIScrubbing)
	assert.True(t, cfg.Guardrails.BlockOnHighRisk)

	// 输入规则
	assert.Equal(t, 1, cfg.Input.MinLength)
	assert.Equal(t, 2000, cfg.Input.MaxLength)
	assert.Equal(t, 300, cfg.Input.MaxWords)
	assert.Equal(t, 20, cfg.Input.MaxLines)

	// 检测器与外部服务
	assert.Equal(t, ToxicityProviderKeyword, cfg.Toxicity.Provider)
	assert.Equal(t, "omni-moderation-latest", cfg.Toxicity.Moderation.Model)
	assert.False(t, cfg.PII.PresidioEnabled)
	assert.Equal(t, 5, cfg.Mood.HistoryTurns)
	assert.Equal(t, 24*time.Hour, cfg.Context.TTL)
	assert.False(t, cfg.Redis.Enabled)

	// 日志
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

func TestRedisConfig_CacheConfig(t *testing.T) {
	r := DefaultRedisConfig()
	r.Addr = "redis:6379"
	r.DB = 2
	r.TLSEnabled = true

	c := r.CacheConfig()
	assert.Equal(t, "redis:6379", c.Addr)
	assert.True(t, c.TLSEnabled)
	assert.Equal(t, 2, c.DB)
	assert.Equal(t, "safetycore:", c.KeyPrefix)
	assert.Equal(t, 10, c.PoolSize)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 0.7, cfg.Guardrails.ToxicityThreshold)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  rate_limit_per_minute: 60

guardrails:
  toxicity_threshold: 0.8
  enable_pii_scrubbing: false

input:
  max_length: 500

toxicity:
  provider: openai
  moderation:
    api_key: "sk-test"
    timeout: 2s

pii:
  presidio_enabled: true
  presidio:
    base_url: "http://presidio:5002"
    entities: ["EMAIL_ADDRESS", "PERSON"]

context:
  ttl: 2h
  max_sessions: 50

redis:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60, cfg.Server.RateLimitPerMinute)

	assert.Equal(t, 0.8, cfg.Guardrails.ToxicityThreshold)
	assert.False(t, cfg.Guardrails.EnablePIIScrubbing)
	assert.Equal(t, 0.5, cfg.Guardrails.PIIThreshold, "unset keys keep defaults")

	assert.Equal(t, 500, cfg.Input.MaxLength)
	assert.Equal(t, 1, cfg.Input.MinLength)

	assert.Equal(t, ToxicityProviderOpenAI, cfg.Toxicity.Provider)
	assert.Equal(t, "sk-test", cfg.Toxicity.Moderation.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Toxicity.Moderation.Timeout)

	assert.True(t, cfg.PII.PresidioEnabled)
	assert.Equal(t, "http://presidio:5002", cfg.PII.Presidio.BaseURL)
	assert.Equal(t, []string{"EMAIL_ADDRESS", "PERSON"}, cfg.PII.Presidio.Entities)

	assert.Equal(t, 2*time.Hour, cfg.Context.TTL)
	assert.Equal(t, 50, cfg.Context.MaxSessions)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("SAFETYCORE_SERVER_HTTP_PORT", "7777")
	t.Setenv("SAFETYCORE_GUARDRAILS_TOXICITY_THRESHOLD", "0.9")
	t.Setenv("SAFETYCORE_GUARDRAILS_BLOCK_ON_HIGH_RISK", "false")
	t.Setenv("SAFETYCORE_INPUT_MAX_WORDS", "100")
	t.Setenv("SAFETYCORE_PII_PRESIDIO_ENTITIES", "PERSON, LOCATION")
	t.Setenv("SAFETYCORE_MOOD_TIMEOUT", "750ms")
	t.Setenv("SAFETYCORE_LLM_MODEL", "gpt-4o")
	t.Setenv("SAFETYCORE_REDIS_ADDR", "env-redis:6379")
	t.Setenv("SAFETYCORE_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 0.9, cfg.Guardrails.ToxicityThreshold)
	assert.False(t, cfg.Guardrails.BlockOnHighRisk)
	assert.Equal(t, 100, cfg.Input.MaxWords)
	assert.Equal(t, []string{"PERSON", "LOCATION"}, cfg.PII.Presidio.Entities)
	assert.Equal(t, 750*time.Millisecond, cfg.Mood.Timeout)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
guardrails:
  toxicity_threshold: 0.6
  pii_threshold: 0.4
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("SAFETYCORE_SERVER_HTTP_PORT", "9999")
	t.Setenv("SAFETYCORE_GUARDRAILS_TOXICITY_THRESHOLD", "0.65")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 0.65, cfg.Guardrails.ToxicityThreshold)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, 0.4, cfg.Guardrails.PIIThreshold)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/nonexistent/config.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("SAFETYCORE_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETYCORE_SERVER_HTTP_PORT")
}

func TestLoader_WithValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if !c.Redis.Enabled {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

// --- Validate 测试 ---

func TestConfig_Validate_CollectsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Guardrails.ToxicityThreshold = 1.5
	cfg.Input.MaxLength = 0
	cfg.Toxicity.Provider = "perspective"
	cfg.PII.PresidioEnabled = true
	cfg.PII.Presidio.BaseURL = ""
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	cfg.Log.Level = "verbose"
	cfg.Telemetry.SampleRate = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))

	for _, want := range []string{
		"invalid HTTP port",
		"toxicity_threshold",
		"input length bounds",
		`unknown toxicity provider "perspective"`,
		"pii.presidio.base_url",
		"redis.addr",
		`invalid log level "verbose"`,
		"sample_rate",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfig_Validate_OpenAIRequiresKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Toxicity.Provider = ToxicityProviderOpenAI

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "toxicity.moderation.api_key")

	cfg.Toxicity.Moderation.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestMustLoad_Panics(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log:\n  format: xml\n"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
