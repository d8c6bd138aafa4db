package main

import (
	"net/http/pprof"
	"slices"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/chocobo244/creatingcustomersegment/docs"
	"github.com/chocobo244/creatingcustomersegment/internal/auth"
	"github.com/chocobo244/creatingcustomersegment/internal/cache"
	"github.com/chocobo244/creatingcustomersegment/internal/config"
	"github.com/chocobo244/creatingcustomersegment/internal/errors"
	"github.com/chocobo244/creatingcustomersegment/internal/monitoring"
	"github.com/chocobo244/creatingcustomersegment/internal/security"
)

// cachedPrefixes are the POST routes whose responses are a pure function of
// tenant and body. compare is left out because it defaults the conversion
// date to the current time.
var cachedPrefixes = []string{
	"/attribution/b2b/calculate",
	"/attribution/b2b/channel-insights",
	"/attribution/b2b/alignment-report",
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AddAllowHeaders(tenantHeader, "X-Request-ID")
	cfg.AddExposeHeaders("X-Request-ID", "X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset")
	return cfg
}

func securityConfig(cfg *config.Config) security.Config {
	sc := security.DefaultConfig()
	sc.MaxBodyBytes = cfg.MaxBodyBytes
	sc.RequestTimeout = cfg.RequestTimeout
	sc.EnableHSTS = cfg.EnableHSTS
	return sc
}

func setupRouter(s *Server) *gin.Engine {
	r := gin.New()

	// Tracing first so every later middleware sees the request id
	r.Use(monitoring.TracingMiddleware(s.tracer))
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(errors.RecoveryHandler())
	r.Use(errors.ErrorHandler())
	r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))
	r.Use(security.NewMiddleware(securityConfig(s.cfg)).Handlers()...)
	if s.limiter != nil {
		r.Use(s.limiter.IPRateLimitMiddleware())
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	if p := s.metrics.Prometheus(); p != nil {
		r.GET("/metrics/prometheus", gin.WrapH(p.Handler()))
	}
	r.GET("/cache/stats", s.handleCacheStats)
	r.GET("/pools", s.handlePoolStats)

	if s.cfg.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	attr := r.Group("/attribution")
	if s.limiter != nil {
		attr.Use(s.limiter.TenantRateLimitMiddleware())
	}
	attr.Use(cache.Middleware(s.store, s.metrics, cachedPrefixes...))
	{
		b2b := attr.Group("/b2b")
		b2b.POST("/calculate", s.handleCalculate)
		b2b.POST("/batch", s.handleBatch)
		b2b.POST("/channel-insights", s.handleChannelInsights)
		b2b.POST("/alignment-report", s.handleAlignmentReport)
		b2b.GET("/touchpoint-types", s.handleTouchpointTypes)
		b2b.GET("/model-info", s.handleModelInfo)
		b2b.GET("/config", s.handleGetModelConfig)
		if s.auth != nil {
			b2b.PUT("/config", s.auth.Require(auth.ScopeAdmin), s.handlePutModelConfig)
		}

		attr.POST("/compare", s.handleCompare)
		attr.GET("/runs", s.handleListRuns)
		attr.GET("/runs/:id", s.handleGetRun)
		attr.GET("/channels/leaderboard", s.handleChannelLeaderboard)
	}

	if s.limiter != nil {
		r.GET("/ratelimit/status", s.limiter.HandleStatus)
		if s.auth != nil {
			admin := r.Group("/admin/ratelimits", s.auth.Require(auth.ScopeAdmin))
			admin.GET("", s.limiter.HandleAdminStats)
			admin.DELETE("", s.limiter.HandleAdminResetAll)
			admin.DELETE("/:scope/:id", s.limiter.HandleAdminReset)
		}
	}

	if s.auth == nil {
		s.logger.SystemLogger("admin_disabled", "model config writes and rate limit administration are not mounted; set ATTRIBUTION_ADMIN_JWT_SECRET to enable them")
	}

	if s.cfg.EnablePprof {
		s.logger.SystemLogger("pprof_enabled", "profiling endpoints mounted under /debug/pprof")
		r.GET("/debug/pprof/*filepath", profileHandler)
	}

	return r
}

// profileHandler serves net/http/pprof under one catch-all route
func profileHandler(c *gin.Context) {
	switch strings.TrimPrefix(c.Param("filepath"), "/") {
	case "cmdline":
		pprof.Cmdline(c.Writer, c.Request)
	case "profile":
		pprof.Profile(c.Writer, c.Request)
	case "symbol":
		pprof.Symbol(c.Writer, c.Request)
	case "trace":
		pprof.Trace(c.Writer, c.Request)
	default:
		pprof.Index(c.Writer, c.Request)
	}
}
