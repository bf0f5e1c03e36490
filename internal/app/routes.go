package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bookbridge/core/internal/middleware"
	"github.com/bookbridge/core/internal/modules/library/book"
	"github.com/bookbridge/core/internal/modules/reading/delivery"
	"github.com/bookbridge/core/internal/modules/reading/precompute"
	"github.com/bookbridge/core/internal/modules/system/health"
	"github.com/bookbridge/core/internal/pkg/objectstore"
	"github.com/bookbridge/core/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() {
	r := a.router
	p := a.pipeline

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"ok": 0, "code": http.StatusMethodNotAllowed, "message": "method not allowed"})
	})

	// Locally stored audio is served by this process; S3 objects are not.
	if local, ok := p.Objects.(*objectstore.Local); ok && strings.HasPrefix(a.cfg.Storage.PublicBaseURL, "/") {
		r.Static(a.cfg.Storage.PublicBaseURL, local.Root())
	}

	api := r.Group(apiPrefix)
	api.Use(middleware.Idempotence(p.Redis.Raw()))

	api.GET("", func(c *gin.Context) {
		c.PureJSON(http.StatusOK, gin.H{"name": "bookbridge", "version": Version})
	})
	health.RegisterRoutes(api, p.DB, p.Redis, a.startedAt)
	book.NewHandler(p.Books).RegisterRoutes(api)

	// Generation fans out to paid backends.
	gen := api.Group("", middleware.RateLimit(p.Redis.Raw(), a.cfg.RateLimit))
	delivery.NewHandler(p.Delivery).RegisterRoutes(gen)
	precompute.NewHandler(p.Precompute).RegisterRoutes(gen)
}
