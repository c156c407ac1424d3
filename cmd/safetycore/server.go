package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/api/handlers"
	"github.com/BaSui01/safetycore/config"
	"github.com/BaSui01/safetycore/conversation"
	"github.com/BaSui01/safetycore/guardrails"
	"github.com/BaSui01/safetycore/internal/cache"
	"github.com/BaSui01/safetycore/internal/metrics"
	"github.com/BaSui01/safetycore/internal/server"
	"github.com/BaSui01/safetycore/internal/telemetry"
	"github.com/BaSui01/safetycore/llm"
	"github.com/BaSui01/safetycore/llm/moderation"
	"github.com/BaSui01/safetycore/mood"
	"github.com/BaSui01/safetycore/orchestrator"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装护栏流水线并管理 HTTP 服务生命周期
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	orch      *orchestrator.Orchestrator
	collector *metrics.Collector
	health    *handlers.HealthHandler
	reloader  *config.GuardrailsReloader
	cache     *cache.Manager
	otel      *telemetry.Providers

	httpManager *server.Manager
	cancel      context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Start 初始化所有组件并启动 HTTP 服务（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	// 1. 遥测，失败时保持 noop 继续运行
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.otel = providers

	// 2. 指标与健康检查
	s.collector = metrics.NewCollector(s.cfg.Server.MetricsNamespace, s.logger)
	s.health = handlers.NewHealthHandler(Version, s.logger)

	// 3. 护栏流水线
	orch, err := s.buildOrchestrator(ctx)
	if err != nil {
		return fmt.Errorf("failed to build guardrails pipeline: %w", err)
	}
	s.orch = orch

	// 4. 配置热更新
	if s.configPath != "" {
		loader := config.NewLoader().WithConfigPath(s.configPath)
		s.reloader = config.NewGuardrailsReloader(loader, s.cfg, s.orch, s.logger)
		if err := s.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config reloader: %w", err)
		}
	}

	// 5. HTTP 服务
	if err := s.startHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("safetycore started",
		zap.String("addr", s.httpManager.Addr()),
		zap.Bool("hot_reload_enabled", s.reloader != nil),
		zap.Bool("telemetry_enabled", s.otel.Enabled()),
	)
	return nil
}

// =============================================================================
// 🔧 组件装配
// =============================================================================

// buildOrchestrator 按配置构造各防护组件并注入编排器
func (s *Server) buildOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	cfg := s.cfg

	validator, err := guardrails.NewInputValidator(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("input validator: %w", err)
	}

	toxicity := s.buildToxicityGuard()
	pii := s.buildPIIGuard()

	outputCfg := guardrails.DefaultOutputGuardConfig()
	outputCfg.ToxicityThreshold = cfg.Guardrails.ToxicityThreshold
	outputCfg.MinLength = cfg.Output.MinLength
	outputCfg.MaxLength = cfg.Output.MaxLength
	outputCfg.AlignmentMinInput = cfg.Output.AlignmentMinInput
	seed := cfg.Output.FallbackSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	outputCfg.Fallback = guardrails.NewRandomFallback(nil, seed)
	outputCfg.AuditLogger = guardrails.NewMemoryAuditLogger(cfg.Output.AuditCapacity)
	output := guardrails.NewOutputGuard(toxicity, pii, outputCfg, s.logger)

	var model llm.LanguageModel
	if cfg.LLM.APIKey != "" {
		model = llm.NewOpenAIClient(cfg.LLM, s.logger)
	} else {
		s.logger.Info("LLM API key not configured, mood analysis uses the neutral fallback")
	}

	sessions := conversation.NewManager(cfg.Context, s.logger)
	if cfg.Context.SweepInterval > 0 {
		sessions.Start(ctx)
	}

	return orchestrator.New(orchestrator.Dependencies{
		Validator:  validator,
		Toxicity:   toxicity,
		Restricted: guardrails.NewRestrictedChecker(nil),
		PII:        pii,
		Output:     output,
		Mood:       mood.NewAnalyzer(model, s.buildMoodCache(), cfg.Mood, s.logger),
		Sessions:   sessions,
		Metrics:    s.collector,
	}, cfg.Guardrails, s.logger)
}

func (s *Server) buildToxicityGuard() *guardrails.ToxicityGuard {
	tc := s.cfg.Toxicity
	if tc.Provider != config.ToxicityProviderOpenAI {
		return guardrails.NewToxicityGuard(nil, 0, s.logger)
	}
	s.logger.Info("toxicity detection uses the moderation API with keyword fallback",
		zap.String("model", tc.Moderation.Model))
	return guardrails.NewToxicityGuard(moderation.NewOpenAIProvider(tc.Moderation, s.logger), tc.Moderation.Timeout, s.logger)
}

func (s *Server) buildPIIGuard() *guardrails.PIIGuard {
	piiCfg := guardrails.DefaultPIIGuardConfig()
	piiCfg.Threshold = s.cfg.Guardrails.PIIThreshold
	if s.cfg.PII.RecognizerTimeout > 0 {
		piiCfg.RecognizerTimeout = s.cfg.PII.RecognizerTimeout
	}

	var recognizer guardrails.PIIEntityRecognizer
	if s.cfg.PII.PresidioEnabled {
		recognizer = guardrails.NewPresidioRecognizer(s.cfg.PII.Presidio)
		s.logger.Info("PII recognition uses Presidio", zap.String("base_url", s.cfg.PII.Presidio.BaseURL))
	}
	return guardrails.NewPIIGuard(piiCfg, recognizer, s.logger)
}

// buildMoodCache Redis 不可用时不启用缓存，情绪分析直接回源
func (s *Server) buildMoodCache() mood.Cache {
	if !s.cfg.Redis.Enabled {
		return nil
	}
	manager, err := cache.NewManager(s.cfg.Redis.CacheConfig(), s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, mood cache disabled", zap.Error(err))
		return nil
	}
	s.cache = manager
	s.health.RegisterCheck(handlers.NewFuncCheck("redis", manager.Ping))
	s.collector.RegisterCacheStats("mood", manager.GetStats)
	return mood.NewRedisCache(manager, s.cfg.Mood.CacheTTL, s.logger)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// newRouter 注册全部路由
func (s *Server) newRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealth)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	mux.HandleFunc("GET /version", s.health.HandleVersion(BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.Handler())

	handlers.NewSafetyHandler(s.orch, s.logger).Register(mux)
	return mux
}

func (s *Server) startHTTPServer(ctx context.Context) error {
	skipRateLimit := []string{"/health", "/healthz", "/ready", "/version", "/metrics"}
	handler := Chain(s.newRouter(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		RateLimiter(ctx, s.cfg.Server.RateLimitPerMinute, s.cfg.Server.RateLimitBurst, skipRateLimit, s.logger),
	)

	sc := s.cfg.Server
	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)

	// 逆序执行：先停热更新，再关 Redis，最后刷新遥测
	s.httpManager.OnShutdown(func(ctx context.Context) error {
		return s.otel.Shutdown(ctx)
	})
	if s.cache != nil {
		s.httpManager.OnShutdown(func(context.Context) error {
			return s.cache.Close()
		})
	}
	if s.reloader != nil {
		s.httpManager.OnShutdown(func(context.Context) error {
			return s.reloader.Stop()
		})
	}

	return s.httpManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待信号后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) error {
	defer s.cancel()
	return s.httpManager.WaitForShutdown(ctx)
}
