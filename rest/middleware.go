// Package rest is the HTTP surface: gin router, handlers and middleware.
package rest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/shortly-systems/shortly/services/ratelimit"
	"github.com/shortly-systems/shortly/utils/apperror"
)

const principalKey = "shortly.principal"

// Principal is the authenticated caller, threaded through the gin context
// instead of dynamic request attributes.
type Principal struct {
	UserID string
	Tier   ratelimit.Tier
}

// CurrentPrincipal returns the caller, if authenticated.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// AuthContext parses an optional Bearer token and stores the principal.
// Requests without a token proceed anonymously; a malformed token is treated
// the same (endpoints that require auth reject later).
func AuthContext(accessSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.Next()
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(accessSecret), nil
		})
		if err != nil || !token.Valid {
			c.Next()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.Next()
			return
		}
		principal := Principal{Tier: ratelimit.TierStandard}
		if sub, _ := claims["sub"].(string); sub != "" {
			principal.UserID = sub
		}
		if tier, _ := claims["tier"].(string); tier != "" {
			principal.Tier = ratelimit.Tier(tier)
		}
		if principal.UserID != "" {
			c.Set(principalKey, principal)
		}
		c.Next()
	}
}

// RateLimit applies tiered admission control and stamps the X-RateLimit-*
// headers on every response, plus Retry-After on denial.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		tier := ratelimit.TierAnonymous
		if principal, ok := CurrentPrincipal(c); ok {
			key = "user:" + principal.UserID
			tier = principal.Tier
		}

		decision := limiter.Consume(c.Request.Context(), key, tier)

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfter))
			c.AbortWithStatusJSON(apperror.ErrRateLimited.HTTPStatus, gin.H{
				"error":      apperror.CodeRateLimitExceeded,
				"message":    apperror.ErrRateLimited.Message,
				"retryAfter": decision.RetryAfter,
			})
			return
		}
		c.Next()
	}
}

// RequestLogger logs each request with latency; the redirect path is logged
// at debug to keep hot-path logging cheap.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(started).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request")
		case strings.HasPrefix(c.Request.URL.Path, "/api/"):
			entry.Info("request")
		default:
			entry.Debug("request")
		}
	}
}

// renderError maps any error to its taxonomy response. Suggestions travel in
// the body when the error carries them (ALIAS_TAKEN).
func renderError(c *gin.Context, err error) {
	appErr := apperror.FromError(err)
	body := gin.H{
		"error":   appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Details != nil {
		if suggestions, ok := appErr.Details["suggestions"]; ok {
			body["suggestions"] = suggestions
		}
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, body)
}
