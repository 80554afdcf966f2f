package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BaSui01/councilgate/api/handlers"
	"github.com/BaSui01/councilgate/config"
	"github.com/BaSui01/councilgate/council"
	"github.com/BaSui01/councilgate/internal/metrics"
	"github.com/BaSui01/councilgate/internal/server"
	"github.com/BaSui01/councilgate/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// skipAuthPaths 不需要认证的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 councilgate 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler  *handlers.HealthHandler
	councilHandler *handlers.CouncilHandler
	chatHandler    *handlers.ChatHandler

	// 指标收集器
	metricsCollector *metrics.Collector
	otel             *telemetry.Providers
	stack            *councilStack

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例。otelProviders 可为 nil。
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Init 装配指标、审议团与 Handlers，并构建两个 HTTP 服务
func (s *Server) Init() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("councilgate", s.logger)

	// 2. 装配审议团
	opts := []council.PanelOption{council.WithRecorder(s.metricsCollector)}
	if s.otel != nil {
		opts = append(opts, council.WithTracerProvider(s.otel.TracerProvider()))
	}
	stack, err := buildCouncil(s.cfg, s.metricsCollector, s.logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to build council: %w", err)
	}
	s.stack = stack

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 构建 HTTP / Metrics 服务
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel
	handler, err := s.buildHandler(rateLimiterCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to build middleware: %w", err)
	}
	s.httpManager = server.NewManager(handler, server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                        // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    s.cfg.Server.WriteTimeout,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		}, s.logger)
	}
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	threshold := s.cfg.Council.RiskThreshold

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(s.stack.provider))
	s.healthHandler.RegisterCheck(handlers.NewBreakerHealthCheck("circuit_breaker", s.stack.provider.BreakerState))

	s.councilHandler = handlers.NewCouncilHandler(s.stack.panel, threshold, s.logger)
	s.chatHandler = handlers.NewChatHandler(s.stack.panel,
		backendFactory(s.stack.generator, s.cfg.LLM.Model), threshold, s.logger)

	s.logger.Info("Handlers initialized", zap.Float64("risk_threshold", threshold))
}

// routes 注册路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(telemetry.Version(), BuildTime, GitCommit))

	// API 路由
	mux.HandleFunc("POST /api/v1/evaluate", s.councilHandler.HandleEvaluate)
	mux.HandleFunc("POST /api/v1/chat", s.chatHandler.HandleChat)
	mux.HandleFunc("GET /api/v1/council", s.councilHandler.HandleInfo)

	return mux
}

// buildHandler 构建中间件链。ctx 控制限流器后台清理的生命周期。
func (s *Server) buildHandler(ctx context.Context) (http.Handler, error) {
	sc := s.cfg.Server
	mws := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.otel.TracerProvider(), skipAuthPaths),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(sc.CORSAllowedOrigins),
	}
	if sc.RateLimitRPS > 0 {
		mws = append(mws, RateLimiter(ctx, sc.RateLimitRPS, sc.RateLimitBurst, s.logger))
	}
	if len(sc.APIKeys) > 0 {
		mws = append(mws, APIKeyAuth(sc.APIKeys, skipAuthPaths, sc.AllowQueryAPIKey, s.logger))
	}
	if sc.JWT.Enabled() {
		jwtAuth, err := JWTAuth(sc.JWT, skipAuthPaths, s.logger)
		if err != nil {
			return nil, err
		}
		mws = append(mws, jwtAuth)
	}
	if len(sc.APIKeys) == 0 && !sc.JWT.Enabled() {
		s.logger.Warn("no api keys or jwt configured, API is unauthenticated")
	}
	return Chain(s.routes(), mws...), nil
}

// Run 启动所有服务并阻塞，直到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	err := g.Wait()
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	s.shutdownTelemetry(context.WithoutCancel(ctx))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) shutdownTelemetry(ctx context.Context) {
	if s.otel == nil {
		return
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
}
