package elks

import (
	"net/http"

	"repcall/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireProviderIP rejects webhook requests that do not originate from
// the provider's published IP list. Webhook endpoints have no other
// authentication.
func RequireProviderIP(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]bool, len(allowed))
	for _, ip := range allowed {
		allowedSet[ip] = true
	}
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowedSet[clientIP] {
			logger.FromGin(c).Debug("refusing webhook caller", "client_ip", clientIP)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "You don't look like an elk.",
				"client_ip": clientIP,
			})
			return
		}
		c.Next()
	}
}
