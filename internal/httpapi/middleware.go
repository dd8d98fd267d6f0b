package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"media-broker/internal/broker"
	"media-broker/internal/metrics"
)

const authHeader = "x-auth-token"

// requireToken rejects requests whose x-auth-token header is absent or
// does not match token. It runs before any body is read.
func requireToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := c.GetHeader(authHeader)
		if got == "" {
			writeError(c, http.StatusUnauthorized, "missing x-auth-token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			writeError(c, http.StatusUnauthorized, "invalid x-auth-token")
			return
		}
		c.Next()
	}
}

// cors answers preflight requests and marks every response as readable
// from any origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+authHeader)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// accessLog records one debug line and the request metrics per request.
// Headers are never logged since they carry the auth token.
func accessLog(logger broker.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.RecordRequest(c.Request.Method, route, strconv.Itoa(status), elapsed.Seconds())
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", elapsed.String(),
		)
	}
}
