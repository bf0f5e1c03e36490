// Package health reports whether the stores the pipeline depends on answer.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	pkgredis "github.com/bookbridge/core/internal/pkg/redis"
)

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type dbPinger struct{ db *gorm.DB }

func (p dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// RegisterRoutes mounts GET /health. rc may be nil when Redis is not used.
func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, rc *pkgredis.Client, startedAt time.Time) {
	checks := map[string]Pinger{"database": dbPinger{db}}
	if rc != nil {
		checks["redis"] = rc
	}
	rg.GET("/health", handler(checks, startedAt))
}

func handler(checks map[string]Pinger, startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		status := "ok"
		code := http.StatusOK
		body := gin.H{}
		for name, p := range checks {
			ok := p.Ping(ctx) == nil
			body[name] = ok
			if !ok {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		body["status"] = status
		body["uptime"] = time.Since(startedAt).Truncate(time.Second).String()
		c.JSON(code, body)
	}
}
