package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/bookbridge/core/internal/pkg/response"
)

const (
	idempotenceHeader = "x-idempotence"
	idempotenceTTL    = 60 * time.Second

	stateInFlight = "0"
	stateDone     = "1"
)

// Idempotence rejects a repeated mutating request while the first one is in
// flight, and for idempotenceTTL after it succeeded. Failed requests release
// their key. Redis errors fail open.
func Idempotence(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		key := idempotenceKey(c)
		if key == "" {
			c.Next()
			return
		}

		ctx := context.WithoutCancel(c.Request.Context())
		redisKey := "bb:idempotence:" + key
		fresh, err := rdb.SetNX(ctx, redisKey, stateInFlight, idempotenceTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !fresh {
			if rdb.Get(ctx, redisKey).Val() == stateInFlight {
				response.Conflict(c, "identical request is still being processed")
			} else {
				response.Conflict(c, "identical request already succeeded, retry after 60 seconds")
			}
			return
		}

		c.Next()

		if status := c.Writer.Status(); status >= 200 && status < 300 {
			rdb.Set(ctx, redisKey, stateDone, redis.KeepTTL)
		} else {
			rdb.Del(ctx, redisKey)
		}
	}
}

// idempotenceKey is the x-idempotence header, or a fingerprint of the
// request line, body and client. The body is restored for the handler.
func idempotenceKey(c *gin.Context) string {
	if hdr := c.GetHeader(idempotenceHeader); hdr != "" {
		return hdr
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	h := sha256.New()
	for _, part := range [][]byte{
		[]byte(c.Request.Method),
		[]byte(c.Request.URL.String()),
		body,
		[]byte(c.Request.UserAgent()),
		[]byte(c.ClientIP()),
	} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
