package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/bookbridge/core/internal/config"
	"github.com/bookbridge/core/internal/middleware"
	"github.com/bookbridge/core/internal/pkg/tracing"
)

// Version is reported by the info endpoint and tracing resource.
const Version = "1.0.0"

// App holds the HTTP server dependencies.
type App struct {
	cfg       *config.AppConfig
	router    *gin.Engine
	pipeline  *Pipeline
	logger    *zap.Logger
	shutdown  tracing.ShutdownFunc
	startedAt time.Time
}

// New initializes the application: tracing → pipeline → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	shutdown, err := tracing.Init(context.Background(), cfg.Tracing, Version, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	pipeline, err := NewPipeline(cfg, logger)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	router.Use(middleware.Logger(logger))
	router.Use(newCORS(cfg))

	app := &App{
		cfg:       cfg,
		router:    router,
		pipeline:  pipeline,
		logger:    logger,
		shutdown:  shutdown,
		startedAt: time.Now(),
	}
	app.registerRoutes()
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops precompute runs, closes the stores and flushes spans.
func (a *App) Shutdown(ctx context.Context) {
	a.pipeline.Close()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("tracing shutdown failed", zap.Error(err))
	}
}
