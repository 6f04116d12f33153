package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

type ctxKey int

const ctxOperator ctxKey = iota

// RequireToken verifies a bearer token and injects the operator
// identity into the request context.
func RequireToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(strings.TrimPrefix(raw, bearerPrefix), time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), ctxOperator, claims.Operator))
		c.Set("operator", claims.Operator)
		c.Next()
	}
}

// Operator returns the authenticated operator name, or "" when the
// request was not authenticated.
func Operator(ctx context.Context) string {
	if s, ok := ctx.Value(ctxOperator).(string); ok {
		return s
	}
	return ""
}
