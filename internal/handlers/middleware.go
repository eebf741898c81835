// Package handlers exposes the lifecycle services over HTTP with gin.
package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jesadaho/asset-ace-sub000/internal/apperr"
	"github.com/jesadaho/asset-ace-sub000/internal/identity"
	"github.com/jesadaho/asset-ace-sub000/internal/ratelimit"
)

const userIDKey = "user_id"

// AuthMiddleware resolves the bearer credential to a user id.
func AuthMiddleware(v identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(c, apperr.Unauthorized("missing bearer credential"))
			c.Abort()
			return
		}

		userID, err := v.Verify(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredential) {
				respondError(c, apperr.Unauthorized("invalid credential"))
			} else {
				respondError(c, apperr.Unavailable("identity provider", err))
			}
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user of the request.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RateLimitMiddleware limits requests per authenticated user.
func RateLimitMiddleware(limiter *ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := UserID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Please try again later.",
				"code":  "RATE_LIMITED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminAuth guards admin routes with a static token. An empty token disables them.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin API is disabled", "code": "ADMIN_DISABLED"})
			c.Abort()
			return
		}
		got := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			respondError(c, apperr.Unauthorized("invalid admin token"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// respondError writes {"error", "code"}. Causes of internal and
// collaborator failures are logged, not returned.
func respondError(c *gin.Context, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "kind", e.Kind.String(), "error", err)
	}
	c.JSON(status, gin.H{"error": e.Message, "code": e.Code})
}

// bindJSON decodes the body, reporting malformed input as a validation failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}
