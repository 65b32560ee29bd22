package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pattern-engine/internal/analytics"
	"pattern-engine/internal/auth"
	"pattern-engine/internal/patterns"
	"pattern-engine/internal/signals"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"timestamp":  time.Now().UTC(),
		"ws_clients": s.hub.ClientCount(),
	})
}

// detectRequest triggers a detection run over fresh candles.
type detectRequest struct {
	StrategyID string `json:"strategyId" binding:"required"`
	Symbol     string `json:"symbol" binding:"required"`
	Timeframe  string `json:"timeframe" binding:"required"`
	Limit      int    `json:"limit"`
}

func (s *Server) handleDetect(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	sigs, err := s.service.Detect(c.Request.Context(), auth.GetUserID(c), req.StrategyID, req.Symbol, req.Timeframe, req.Limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signals": sigs,
		"count":   len(sigs),
	})
}

type createStrategyRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) handleCreateStrategy(c *gin.Context) {
	var req createStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strat := s.strategies.Register(auth.GetUserID(c), req.Name)
	c.JSON(http.StatusCreated, strat)
}

func (s *Server) handleListStrategies(c *gin.Context) {
	list := s.strategies.ListByUser(auth.GetUserID(c))
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"strategies": list})
}

func (s *Server) handleSignalsByStrategy(c *gin.Context) {
	var active *bool
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active must be true or false"})
			return
		}
		active = &v
	}

	sigs, err := s.service.ListByStrategy(c.Request.Context(), auth.GetUserID(c), c.Param("strategyId"), active)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs, "count": len(sigs)})
}

func (s *Server) handleSignalsBySymbol(c *gin.Context) {
	var pt patterns.PatternType
	if raw := c.Query("patternType"); raw != "" {
		parsed, err := patterns.ParsePatternType(raw)
		if err != nil {
			s.respondError(c, err)
			return
		}
		pt = parsed
	}

	sigs, err := s.service.ListBySymbol(c.Request.Context(), c.Param("symbol"), pt)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": sigs, "count": len(sigs)})
}

// bulkUpdateRequest applies one update to many signals, id by id.
type bulkUpdateRequest struct {
	IDs    []string             `json:"ids" binding:"required,min=1"`
	Update signals.SignalUpdate `json:"update"`
}

func (s *Server) handleBulkUpdateSignals(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.service.BulkUpdateSignals(c.Request.Context(), auth.GetUserID(c), req.IDs, req.Update)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// Partial success is still a 200; per-id failures live in the body.
	c.JSON(http.StatusOK, res)
}

type createConfigRequest struct {
	StrategyID  string                  `json:"strategyId" binding:"required"`
	PatternType string                  `json:"patternType" binding:"required"`
	Config      patterns.DetectorConfig `json:"config"`
	IsActive    bool                    `json:"isActive"`
}

func (s *Server) handleCreateConfig(c *gin.Context) {
	var req createConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pt, err := patterns.ParsePatternType(req.PatternType)
	if err != nil {
		s.respondError(c, err)
		return
	}

	cfg, err := s.service.CreateConfig(c.Request.Context(), auth.GetUserID(c), req.StrategyID, pt, req.Config, req.IsActive)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (s *Server) handleListConfigs(c *gin.Context) {
	strategyID := c.Query("strategyId")
	if strategyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategyId query parameter is required"})
		return
	}

	cfgs, err := s.service.ListConfigs(c.Request.Context(), auth.GetUserID(c), strategyID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": cfgs, "count": len(cfgs)})
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var upd signals.ConfigUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.service.UpdateConfig(c.Request.Context(), auth.GetUserID(c), c.Param("id"), upd)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleDeleteConfig(c *gin.Context) {
	if err := s.service.DeleteConfig(c.Request.Context(), auth.GetUserID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type recordOutcomeRequest struct {
	SignalID   string            `json:"signalId" binding:"required"`
	Outcome    string            `json:"outcome" binding:"required"`
	ProfitLoss float64           `json:"profitLoss"`
	HoldTime   int               `json:"holdTime"` // minutes
	Metadata   map[string]string `json:"metadata"`
}

func (s *Server) handleRecordOutcome(c *gin.Context) {
	var req recordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o, err := s.service.RecordOutcome(c.Request.Context(), auth.GetUserID(c), req.SignalID,
		patterns.OutcomeResult(req.Outcome), req.ProfitLoss, req.HoldTime, req.Metadata)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (s *Server) handleOutcomesBySignal(c *gin.Context) {
	outcomes, err := s.service.OutcomesBySignal(c.Request.Context(), auth.GetUserID(c), c.Param("signalId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes, "count": len(outcomes)})
}

func (s *Server) handleOutcomesByStrategy(c *gin.Context) {
	outcomes, err := s.service.OutcomesByStrategy(c.Request.Context(), auth.GetUserID(c), c.Param("strategyId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes, "count": len(outcomes)})
}

func (s *Server) handlePerformance(c *gin.Context) {
	pt, err := patterns.ParsePatternType(c.Param("patternType"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	strategyID := c.Query("strategyId")
	if !s.authorizeStrategyQuery(c, strategyID) {
		return
	}

	metrics, err := s.analyzer.Performance(c.Request.Context(), pt, strategyID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (s *Server) handleDashboard(c *gin.Context) {
	strategyID := c.Query("strategyId")
	if !s.authorizeStrategyQuery(c, strategyID) {
		return
	}

	stats, err := s.analyzer.Dashboard(c.Request.Context(), strategyID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req analytics.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StrategyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategyId is required"})
		return
	}
	if !s.authorizeStrategyQuery(c, req.StrategyID) {
		return
	}

	res, err := s.backtester.Run(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleTriggerScan(c *gin.Context) {
	if s.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scanner is not enabled"})
		return
	}
	c.JSON(http.StatusOK, s.scanner.Scan())
}

func (s *Server) handleLastScan(c *gin.Context) {
	if s.scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scanner is not enabled"})
		return
	}

	result := s.scanner.LastResult()
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan has run yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// authorizeStrategyQuery enforces ownership on an optional strategy scope.
// An empty id means the global scope and passes. Writes the error response
// itself and reports whether the handler may continue.
func (s *Server) authorizeStrategyQuery(c *gin.Context, strategyID string) bool {
	if strategyID == "" {
		return true
	}

	owner, ok := s.strategies.Owner(strategyID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return false
	}
	if owner != auth.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return false
	}
	return true
}
