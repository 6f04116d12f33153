package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"repcall/internal/auth"
	"repcall/internal/config"
	"repcall/internal/elks"
	"repcall/internal/httpapi"
	"repcall/internal/ivr"
)

type routeDeps struct {
	cfg      config.Config
	auth     *auth.Manager
	api      httpapi.Handlers
	webhooks *ivr.Handlers
	metrics  http.Handler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics))

	// Provider webhooks. The allow-list covers the callback POSTs; the
	// media fetch stays open because the provider's audio fetcher does
	// not come from the published webhook ranges.
	phone := r.Group("/phone")
	callbacks := phone.Group("", elks.RequireProviderIP(d.cfg.Elks.AllowedIPs))
	d.webhooks.Register(callbacks, phone)

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/token", d.api.IssueToken)
		v1.GET("/destinations/suggested", d.api.SuggestDestination)

		calls := v1.Group("/calls")
		calls.Use(auth.RequireToken(d.auth))
		{
			calls.POST("", d.api.StartCall)
		}
	}
}
