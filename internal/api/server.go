// Package api exposes pattern detection, signal management and analytics
// over HTTP, with an event-driven WebSocket feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pattern-engine/internal/analytics"
	"pattern-engine/internal/auth"
	"pattern-engine/internal/events"
	"pattern-engine/internal/patterns"
	"pattern-engine/internal/scanner"
	"pattern-engine/internal/signals"
	"pattern-engine/internal/strategies"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	service    *signals.Service
	analyzer   *analytics.Analyzer
	backtester *analytics.BacktestEngine
	scanner    *scanner.Scanner
	strategies *strategies.Registry
	eventBus   *events.EventBus
	jwtManager *auth.JWTManager
	hub        *WSHub
	logger     zerolog.Logger
}

// NewServer wires the API server. scanner may be nil when scanning is
// disabled.
func NewServer(
	config ServerConfig,
	service *signals.Service,
	analyzer *analytics.Analyzer,
	backtester *analytics.BacktestEngine,
	sc *scanner.Scanner,
	registry *strategies.Registry,
	eventBus *events.EventBus,
	jwtManager *auth.JWTManager,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:     router,
		config:     config,
		service:    service,
		analyzer:   analyzer,
		backtester: backtester,
		scanner:    sc,
		strategies: registry,
		eventBus:   eventBus,
		jwtManager: jwtManager,
		hub:        NewWSHub(eventBus, logger),
		logger:     logger.With().Str("component", "APIServer").Logger(),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(auth.Middleware(s.jwtManager))
	{
		api.POST("/detect", s.handleDetect)

		api.POST("/strategies", s.handleCreateStrategy)
		api.GET("/strategies", s.handleListStrategies)

		api.GET("/signals/strategy/:strategyId", s.handleSignalsByStrategy)
		api.GET("/signals/symbol/:symbol", s.handleSignalsBySymbol)
		api.PATCH("/signals/bulk", s.handleBulkUpdateSignals)

		api.POST("/configs", s.handleCreateConfig)
		api.GET("/configs", s.handleListConfigs)
		api.PUT("/configs/:id", s.handleUpdateConfig)
		api.DELETE("/configs/:id", s.handleDeleteConfig)

		api.POST("/outcomes", s.handleRecordOutcome)
		api.GET("/outcomes/signal/:signalId", s.handleOutcomesBySignal)
		api.GET("/outcomes/strategy/:strategyId", s.handleOutcomesByStrategy)

		api.GET("/performance/:patternType", s.handlePerformance)
		api.GET("/dashboard", s.handleDashboard)
		api.POST("/backtest", s.handleBacktest)

		api.POST("/scan", s.handleTriggerScan)
		api.GET("/scan/last", s.handleLastScan)
	}
}

// Start runs the WebSocket hub and serves HTTP until Shutdown.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	l := logger.With().Str("component", "HTTP").Logger()
	return func(c *gin.Context) {
		c.Next()
		l.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request handled")
	}
}

// respondError maps domain errors onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var insufficient *signals.InsufficientDataError
	var invalidType *patterns.InvalidPatternTypeError
	var validation *signals.ValidationError

	switch {
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "insufficient data",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.As(err, &invalidType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  err.Error(),
			"field":  validation.Field,
			"reason": validation.Reason,
		})
	case errors.Is(err, signals.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, signals.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, signals.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
