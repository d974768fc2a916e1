package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/agent/session"
	"github.com/shivanandmn/wingman/api/handlers"
	"github.com/shivanandmn/wingman/config"
	"github.com/shivanandmn/wingman/internal/metrics"
	"github.com/shivanandmn/wingman/internal/server"
	"github.com/shivanandmn/wingman/internal/telemetry"
	"github.com/shivanandmn/wingman/llm"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, metrics server and definitions watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Wingman",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(ctx); err != nil {
		srv.Shutdown()
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srv.httpManager.Errors():
		logger.Error("HTTP server failed", zap.Error(err))
	case err := <-srv.metricsManager.Errors():
		logger.Error("metrics server failed", zap.Error(err))
	}

	srv.Shutdown()
	logger.Info("Wingman stopped")
	return nil
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装定义存储、执行引擎、HTTP/Metrics 双端口与定义目录监听
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	manager   *crews.Manager
	watcher   *config.FileWatcher

	httpManager    *server.Manager
	metricsManager *server.Manager

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{cfg: cfg, logger: logger, telemetry: otelProviders}
}

// Start 启动所有服务
func (s *Server) Start(ctx context.Context) error {
	// 1. 指标收集器
	s.collector = metrics.NewCollector("wingman", s.logger)

	// 2. 执行器、引擎与 crew 管理器
	if err := s.initManager(ctx); err != nil {
		return fmt.Errorf("failed to init crew manager: %w", err)
	}

	// 3. 定义目录监听
	if err := s.startWatcher(ctx); err != nil {
		return fmt.Errorf("failed to start definitions watcher: %w", err)
	}

	// 4. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Bool("watch", s.cfg.Crew.Watch),
	)
	return nil
}

func (s *Server) initManager(ctx context.Context) error {
	exec, err := llm.NewExecutor(ctx, s.cfg.LLM, s.logger)
	if err != nil {
		return err
	}

	engine := crews.NewEngine(exec,
		crews.WithLogger(s.logger),
		crews.WithRecorder(s.collector),
		crews.WithTracer(s.telemetry.Tracer("wingman/crews")),
		crews.WithRateWindow(s.cfg.Crew.RateWindow),
		crews.WithMaxDelegationDepth(s.cfg.Crew.MaxDelegationDepth),
	)
	s.manager = crews.NewManager(declarative.NewStore(s.logger), engine, s.logger,
		crews.WithDefaults(s.cfg.Crew.DefaultContext),
		crews.WithReloadHook(s.collector.RecordReload),
	)

	// 初始加载失败时继续启动，/ready 报告未就绪
	if err := s.manager.ReloadDir(s.cfg.Crew.DefinitionsDir); err != nil {
		s.logger.Error("initial definitions load failed",
			zap.String("dir", s.cfg.Crew.DefinitionsDir),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Server) startWatcher(ctx context.Context) error {
	if !s.cfg.Crew.Watch {
		return nil
	}
	s.watcher = config.NewFileWatcher(s.cfg.Crew.DefinitionsDir,
		config.WithPollInterval(s.cfg.Crew.WatchInterval),
		config.WithWatcherLogger(s.logger),
	)
	s.watcher.OnChange(func(events []config.FileEvent) {
		s.logger.Info("definitions changed, reloading", zap.Int("files", len(events)))
		if err := s.manager.ReloadDir(s.cfg.Crew.DefinitionsDir); err != nil {
			s.logger.Warn("reload rejected, keeping previous definitions", zap.Error(err))
		}
	})
	return s.watcher.Start(ctx)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.DefinitionsCheck(s.manager.Definitions))
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /api/v1/health", health.HandleStatus)
	mux.HandleFunc("GET /api/v1/health/{$}", health.HandleStatus)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))

	handlers.NewCrewHandler(s.manager, s.logger,
		handlers.WithDefinitionsDir(s.cfg.Crew.DefinitionsDir),
		handlers.WithRunTimeout(s.cfg.Crew.RunTimeout),
	).Register(mux)
	handlers.NewSessionHandler(session.NewManager(s.manager, s.logger), s.logger,
		handlers.WithSessionTimeout(s.cfg.Crew.RunTimeout),
	).Register(mux)
	return mux
}

func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	s.httpManager = server.NewManager("api", handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 优雅关闭：停止监听 → 关闭 HTTP → 关闭 Metrics → 刷新遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
