package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/inkwell/internal/config"
	"github.com/ifuryst/inkwell/internal/service"
	"github.com/ifuryst/inkwell/internal/service/generator"
	"github.com/ifuryst/inkwell/internal/store"
)

type Server struct {
	Config   *config.Config
	DB       *gorm.DB
	Router   *gin.Engine
	Logger   *zap.Logger
	Server   *http.Server
	Registry *prometheus.Registry

	// Services
	Store        *store.GormStore
	Auth         *service.AuthService
	Orchestrator *service.Orchestrator
	Scheduler    *service.Scheduler
}

// Option overrides a collaborator of the server.
type Option func(*options)

type options struct {
	content generator.ContentGenerator
	images  generator.ImageGenerator
	now     func() time.Time
}

// WithContentGenerator replaces the configured chat client.
func WithContentGenerator(g generator.ContentGenerator) Option {
	return func(o *options) { o.content = g }
}

// WithImageGenerator replaces the configured image client.
func WithImageGenerator(g generator.ImageGenerator) Option {
	return func(o *options) { o.images = g }
}

// WithClock replaces the wall clock used to decide what is due.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewServer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	db, err := store.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return New(cfg, db, logger, opts...), nil
}

// New wires every service around an already migrated database.
func New(cfg *config.Config, db *gorm.DB, logger *zap.Logger, opts ...Option) *Server {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics("inkwell", registry)

	// Initialize services
	st := store.NewGormStore(db)
	runner := service.NewTaskRunner(logger, metrics)
	runLogger := service.NewRunLogger(st, cfg.RunLog.Retention, logger)
	notifier := service.NewNotificationService(st, logger)
	publishers := service.NewPublisherManager(&cfg.Publisher, logger)

	content := o.content
	if content == nil {
		content = generator.NewChatClient(cfg.Generator)
	}
	images := o.images
	if images == nil && cfg.Image.Enabled {
		images = generator.NewImageClient(cfg.Image)
	}

	finalizer := service.NewFinalizer(st, content, images, publishers, notifier, metrics, logger)

	orchOpts := []service.OrchestratorOption{
		service.WithBudget(config.Duration(cfg.Cron.MaxDuration, 300*time.Second)),
	}
	if o.now != nil {
		orchOpts = append(orchOpts, service.WithClock(o.now))
	}
	orch := service.NewOrchestrator(st, finalizer, runner, runLogger, metrics, logger, orchOpts...)
	scheduler := service.NewScheduler(&cfg.Scheduler, logger, orch)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:       cfg,
		DB:           db,
		Router:       router,
		Logger:       logger,
		Registry:     registry,
		Store:        st,
		Auth:         service.NewAuthService(logger, cfg.Cron.Secret),
		Orchestrator: orch,
		Scheduler:    scheduler,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.handleHealth)
	s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))

	auth := s.Auth.AuthMiddleware()

	cron := s.Router.Group("/api/cron", auth)
	{
		cron.GET("/publish", s.handleCronPublish)
		cron.POST("/publish", s.handleCronPublish)
	}

	api := s.Router.Group("/api/v1", auth)
	{
		api.GET("/runs", s.handleListRuns)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.Logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleCronPublish(c *gin.Context) {
	summary, err := s.Orchestrator.Run(c.Request.Context(), service.TriggerHTTP)
	if err != nil {
		s.Logger.Error("Cron run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}

	runs, err := s.Orchestrator.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// RunOnce performs one invocation and waits for its background work.
func (s *Server) RunOnce(ctx context.Context) (*service.RunSummary, error) {
	summary, err := s.Orchestrator.Run(ctx, service.TriggerCLI)
	waitErr := s.Orchestrator.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if waitErr != nil {
		return summary, fmt.Errorf("background work did not finish: %w", waitErr)
	}
	return summary, nil
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	var err error
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop scheduler first
	s.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
		config.Duration(s.Config.Server.ShutdownTimeout, 30*time.Second))
	defer cancel()

	var errs []error
	if s.Server != nil {
		if err := s.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if err := s.Orchestrator.Wait(shutdownCtx); err != nil {
		s.Logger.Warn("Background tasks still running at shutdown", zap.Error(err))
		errs = append(errs, err)
	}

	if sqlDB, err := s.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}
