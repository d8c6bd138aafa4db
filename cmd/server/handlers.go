package main

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chocobo244/creatingcustomersegment/internal/attribution"
	"github.com/chocobo244/creatingcustomersegment/internal/database"
	"github.com/chocobo244/creatingcustomersegment/internal/errors"
	"github.com/chocobo244/creatingcustomersegment/internal/insights"
	"github.com/chocobo244/creatingcustomersegment/internal/types"
)

// attributionResponse is a single opportunity's attribution with its summary
type attributionResponse struct {
	*attribution.Result
	Summary attribution.Summary `json:"summary"`
	RunID   string              `json:"run_id,omitempty"`
}

func failureReason(err error) string {
	switch {
	case stderrors.Is(err, attribution.ErrInvalidWeights):
		return "invalid_weights"
	case stderrors.Is(err, attribution.ErrInvalidOpportunity):
		return "invalid_opportunity"
	case stderrors.Is(err, attribution.ErrInvalidTenant):
		return "invalid_tenant"
	default:
		return "internal"
	}
}

// attribute binds an AttributionRequest and runs the engine over it. On
// failure the error is attached to the context and ok is false.
func (s *Server) attribute(c *gin.Context) (req types.AttributionRequest, res *attribution.Result, ok bool) {
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.FromBindError("Invalid attribution request", err))
		return req, nil, false
	}

	engine, w, err := s.engineFor(tenantFrom(c), req.Weights)
	if err != nil {
		s.metrics.RecordAttributionFailure(failureReason(err))
		c.Error(err)
		return req, nil, false
	}

	span, _ := s.tracer.StartSpan(c.Request.Context(), "attribution.attribute")
	span.Tags["opportunity_id"] = req.Opportunity.ID

	start := time.Now()
	res, err = engine.Attribute(req.Touchpoints, req.Leads, req.Opportunity, w)
	s.tracer.EndSpan(span, err)
	if err != nil {
		s.metrics.RecordAttributionFailure(failureReason(err))
		c.Error(err)
		return req, nil, false
	}

	duration := time.Since(start)
	s.metrics.RecordAttribution(res.Method, len(res.Credits), len(res.Dropped), duration)
	s.logger.AttributionLogger(res.OpportunityID, res.Method, len(res.Credits), len(res.Dropped), res.ConversionValue, duration, false)

	return req, res, true
}

func (s *Server) handleCalculate(c *gin.Context) {
	_, res, ok := s.attribute(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, attributionResponse{
		Result:  res,
		Summary: attribution.Summarize(res.Values()),
		RunID:   s.recordRun(c.Request.Context(), tenantFrom(c), res),
	})
}

func (s *Server) handleChannelInsights(c *gin.Context) {
	req, res, ok := s.attribute(c)
	if !ok {
		return
	}

	channels := insights.ChannelInsights(res.Values(), req.Touchpoints)
	c.JSON(http.StatusOK, gin.H{
		"opportunity_id":   res.OpportunityID,
		"conversion_value": res.ConversionValue,
		"method":           res.Method,
		"channels":         channels,
		"insights":         insights.ChannelNarrative(channels),
	})
}

func (s *Server) handleAlignmentReport(c *gin.Context) {
	req, res, ok := s.attribute(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"opportunity_id":   res.OpportunityID,
		"conversion_value": res.ConversionValue,
		"method":           res.Method,
		"alignment":        insights.Alignment(res.Values(), req.Touchpoints),
	})
}

func (s *Server) handleBatch(c *gin.Context) {
	var req types.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.FromBindError("Invalid batch request", err))
		return
	}

	tenant := tenantFrom(c)
	engine, w, err := s.engineFor(tenant, req.Weights)
	if err != nil {
		c.Error(err)
		return
	}

	ctx := c.Request.Context()

	items := attribution.GroupByAccount(req.Opportunities, req.Touchpoints)

	start := time.Now()
	results, err := engine.BatchAttribute(ctx, items, req.Leads, w, s.cfg.BatchWorkers)
	duration := time.Since(start)
	s.logger.BatchLogger(len(items), s.cfg.BatchWorkers, duration, err)
	if err != nil {
		s.metrics.RecordAttributionFailure(failureReason(err))
		c.Error(err)
		return
	}
	s.metrics.RecordBatch(len(results), duration)

	out := make([]attributionResponse, len(results))
	var total float64
	for i, res := range results {
		s.metrics.RecordAttribution(res.Method, len(res.Credits), len(res.Dropped), 0)
		total += res.ConversionValue
		out[i] = attributionResponse{
			Result:  res,
			Summary: attribution.Summarize(res.Values()),
			RunID:   s.recordRun(ctx, tenant, res),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"results":            out,
		"count":              len(out),
		"total_value":        total,
		"processing_time_ms": duration.Milliseconds(),
	})
}

func (s *Server) handleCompare(c *gin.Context) {
	var req types.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.FromBindError("Invalid comparison request", err))
		return
	}

	conversion := req.ConversionDate
	if conversion.IsZero() {
		conversion = time.Now().UTC()
	}

	models := make([]attribution.Model, len(req.Models))
	for i, m := range req.Models {
		models[i] = attribution.Model(m)
	}

	results, err := attribution.CompareModels(req.Touchpoints, req.ConversionValue, conversion, models)
	if err != nil {
		c.Error(err)
		return
	}
	s.metrics.IncrementModelComparison()

	c.JSON(http.StatusOK, gin.H{
		"conversion_value": req.ConversionValue,
		"conversion_date":  conversion,
		"models":           results,
	})
}

func (s *Server) handleTouchpointTypes(c *gin.Context) {
	engine, _, err := s.engineFor(tenantFrom(c), nil)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"touchpoint_types": engine.TouchpointTypeWeights(),
	})
}

func (s *Server) handleModelInfo(c *gin.Context) {
	engine, _, err := s.engineFor(tenantFrom(c), nil)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, engine.ModelInfo())
}

func (s *Server) handleGetModelConfig(c *gin.Context) {
	cfg, err := s.configs.Load(tenantFrom(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// handlePutModelConfig stores a tenant's model tables. Cached responses are
// dropped so they cannot outlive the tables that produced them.
func (s *Server) handlePutModelConfig(c *gin.Context) {
	tenant := tenantFrom(c)
	if tenant == "" {
		c.Error(errors.NewValidationError("X-Tenant-ID header is required to store a model config"))
		return
	}

	var cfg attribution.ModelConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.Error(errors.FromBindError("Invalid model config", err))
		return
	}

	if err := s.configs.Save(tenant, cfg); err != nil {
		c.Error(err)
		return
	}

	if err := s.store.Clear(c.Request.Context()); err != nil {
		s.logger.Warn("Failed to clear response cache", "tenant", tenant, "error", err)
	}
	s.logger.SystemLogger("model_config_updated", "tenant "+tenant)

	stored, err := s.configs.Load(tenant)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func (s *Server) requireRuns(c *gin.Context) bool {
	if s.runs == nil {
		c.Error(errors.NewUnavailableError("Run history is disabled", nil))
		return false
	}
	return true
}

func (s *Server) handleListRuns(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}

	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)

	runs, err := s.runs.List(c.Request.Context(), tenantFrom(c), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"count":  len(runs),
		"offset": offset,
	})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}

	id := c.Param("id")
	run, err := s.runs.Get(c.Request.Context(), id)
	if stderrors.Is(err, database.ErrRunNotFound) || (err == nil && run.Tenant != tenantFrom(c)) {
		c.Error(errors.NewNotFoundError("run", id))
		return
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, run)
}

func (s *Server) handleChannelLeaderboard(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}

	board, err := s.boards.Get(c.Request.Context(), tenantFrom(c), queryInt(c, "limit", 0))
	if err != nil {
		c.Error(err)
		return
	}
	s.logger.CacheLogger("leaderboard_get", board.Tenant, board.Cached, board.Count)

	c.JSON(http.StatusOK, board)
}

func (s *Server) handleHealth(c *gin.Context) {
	services := gin.H{}
	status := "ok"

	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			services["database"] = gin.H{"status": "down", "error": err.Error()}
			status = "degraded"
		} else {
			services["database"] = gin.H{"status": "up"}
		}
	}

	if s.redis.IsEnabled() {
		if err := s.redis.HealthCheck(c.Request.Context()); err != nil {
			services["redis"] = gin.H{"status": "down", "error": err.Error()}
			status = "degraded"
		} else {
			services["redis"] = gin.H{"status": "up"}
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":         status,
		"timestamp":      time.Now().Format(time.RFC3339),
		"version":        serviceVersion,
		"model_version":  attribution.ModelVersion,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"services":       services,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetStats())
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Stats(c.Request.Context()))
}

func (s *Server) handlePoolStats(c *gin.Context) {
	pools := gin.H{}
	if s.db != nil {
		pools["database"] = s.db.GetPoolStats()
	}
	if s.redis.IsEnabled() {
		pools["redis"] = s.redis.GetPoolStats()
	}
	c.JSON(http.StatusOK, pools)
}
