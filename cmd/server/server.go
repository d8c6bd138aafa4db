package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/auth"
	"github.com/chocobo244/creatingcustomersegment/internal/cache"
	"github.com/chocobo244/creatingcustomersegment/internal/config"
	"github.com/chocobo244/creatingcustomersegment/internal/database"
	"github.com/chocobo244/creatingcustomersegment/internal/leaderboard"
	"github.com/chocobo244/creatingcustomersegment/internal/monitoring"
	"github.com/chocobo244/creatingcustomersegment/internal/ratelimit"
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

const (
	tenantHeader   = "X-Tenant-ID"
	serviceName    = "b2b-attribution"
	serviceVersion = "1.0.0"
)

// Server carries the collaborators shared by every handler. runs, boards, db,
// redis and auth are optional and may be nil.
type Server struct {
	cfg     *config.Config
	configs *attribution.ConfigStore
	store   cache.Store
	runs    *database.RunService
	boards  *leaderboard.Service
	db      *database.DB
	redis   *ratelimit.RedisClient
	limiter *ratelimit.RateLimiter
	auth    *auth.Authenticator
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
	tracer  *monitoring.Tracer
	started time.Time
}

func tenantFrom(c *gin.Context) string {
	return c.GetHeader(tenantHeader)
}

// engineFor builds an engine over the tenant's model tables and resolves the
// blend to use: the request override when present, else the tenant default.
func (s *Server) engineFor(tenant string, override *types.FactorWeights) (*attribution.Engine, types.FactorWeights, error) {
	cfg, err := s.configs.Load(tenant)
	if err != nil {
		return nil, types.FactorWeights{}, err
	}

	engine := attribution.NewEngine(cfg)
	w := engine.DefaultWeights()
	if override != nil {
		w = *override
	}
	return engine, w, nil
}

// recordRun stores a run when history is enabled. Storage failures are
// logged and never fail the request.
func (s *Server) recordRun(ctx context.Context, tenant string, res *attribution.Result) string {
	if s.runs == nil {
		return ""
	}
	runID, err := s.runs.Record(ctx, tenant, res)
	if err != nil {
		s.logger.Warn("Failed to store attribution run",
			"opportunity_id", res.OpportunityID,
			"tenant", tenant,
			"error", err,
		)
		return ""
	}
	if s.boards != nil {
		s.boards.Invalidate(ctx, tenant)
	}
	return runID
}
