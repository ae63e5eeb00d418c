package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/shortly-systems/shortly/docs"
	"github.com/shortly-systems/shortly/services/ratelimit"
	"github.com/shortly-systems/shortly/utils/apperror"
	"github.com/shortly-systems/shortly/utils/config"
)

// NewRouter wires middleware and routes. The redirect route and the API share
// auth and rate limiting; probes, metrics and docs stay unthrottled.
func NewRouter(cfg *config.Config, server *Server, limiter *ratelimit.Limiter, log *logrus.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))

	r.GET("/health", server.handleHealth)
	r.GET("/live", server.handleHealth)
	r.GET("/ready", server.handleReady)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := AuthContext(cfg.Security.AccessSecret)
	limited := RateLimit(limiter)

	r.GET("/:shortCode", auth, limited, server.handleRedirect)

	api := r.Group("/api/v1", auth, limited)
	{
		api.POST("/url/shorten", server.handleShorten)
		api.POST("/url/shorten/bulk", server.handleBulkShorten)
		api.GET("/url/resolve/:shortCode", server.handleResolve)
		api.DELETE("/url/:shortCode", server.handleDelete)
		api.GET("/ws/:shortCode", server.handleLiveClicks)
		api.GET("/admin/stats", server.handleAdminStats)
		api.POST("/admin/cache/warmup", server.handleCacheWarmup)
	}

	r.NoRoute(func(c *gin.Context) {
		renderError(c, apperror.ErrRouteNotFound)
	})
	return r
}
