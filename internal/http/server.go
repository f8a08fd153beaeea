// Package http provides the admin HTTP surface for lexorch.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/brianjwalters/lexorch/internal/router"
	"github.com/brianjwalters/lexorch/pkg/extraction"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// MinConfidence is the lowest confidence bound accepted by the
	// patterns listing endpoint.
	MinConfidence = 0.0
	// MaxConfidence is the highest confidence bound accepted by the
	// patterns listing endpoint.
	MaxConfidence = 1.0
)

// Server hosts the extraction engine's introspection and operational
// surface: health, Prometheus metrics, and thin wrappers around
// pkg/extraction's Extract, Route, and read-only operations.
type Server struct {
	echo    *echo.Echo
	engine  *extraction.Engine
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// NewServer creates a new HTTP server backed by eng.
func NewServer(eng *extraction.Engine, logger *zap.Logger, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(httpMetrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		engine:  eng,
		logger:  logger,
		config:  cfg,
		metrics: httpMetrics,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/route", s.handleRoute)
	v1.POST("/extract", s.handleExtract)
	v1.GET("/entity-types", s.handleListEntityTypes)
	v1.GET("/patterns", s.handleListPatterns)
	v1.GET("/relationships", s.handleListRelationships)
	v1.GET("/cache", s.handleCacheStatistics)
	v1.DELETE("/cache", s.handleCacheClear)
	v1.POST("/patterns/reload", s.handleReloadPatterns)
}

// RouteRequest is the request body for POST /api/v1/route and
// POST /api/v1/extract.
type RouteRequest struct {
	DocumentID           string         `json:"document_id,omitempty"`
	Text                 string         `json:"text"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	StrategyOverride     string         `json:"strategy_override,omitempty"`
	ExtractRelationships bool           `json:"extract_relationships,omitempty"`
	GraphRAGMode         bool           `json:"graph_rag_mode,omitempty"`
}

func (r RouteRequest) options() router.Options {
	return router.Options{
		StrategyOverride:     r.StrategyOverride,
		ExtractRelationships: r.ExtractRelationships,
		GraphRAGMode:         r.GraphRAGMode,
	}
}

// handleHealth returns a basic liveness response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleRoute classifies a document without running any extraction wave.
func (s *Server) handleRoute(c echo.Context) error {
	var req RouteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	decision, err := s.engine.Route(req.Text, req.Metadata, req.options())
	if err != nil {
		s.logger.Warn("routing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, decision)
}

// handleExtract routes a document and runs extraction to completion.
func (s *Server) handleExtract(c echo.Context) error {
	var req RouteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	result, err := s.engine.Extract(c.Request().Context(), req.DocumentID, req.Text, req.Metadata, req.options())
	if err != nil {
		s.logger.Warn("extraction failed", zap.Error(err), zap.String("document_id", req.DocumentID))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// handleListEntityTypes returns every entity type the pattern store indexes.
func (s *Server) handleListEntityTypes(c echo.Context) error {
	types := s.engine.ListEntityTypes(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{"entity_types": types})
}

// handleListPatterns returns loaded patterns, optionally filtered by a
// min_confidence query parameter.
func (s *Server) handleListPatterns(c echo.Context) error {
	minConfidence := MinConfidence
	if raw := c.QueryParam("min_confidence"); raw != "" {
		var parsed float64
		if _, err := fmt.Sscanf(raw, "%f", &parsed); err != nil || parsed < MinConfidence || parsed > MaxConfidence {
			return echo.NewHTTPError(http.StatusBadRequest, "min_confidence must be a number between 0 and 1")
		}
		minConfidence = parsed
	}

	patterns := s.engine.ListPatterns(c.Request().Context(), minConfidence)
	return c.JSON(http.StatusOK, map[string]any{"patterns": patterns})
}

// handleListRelationships returns every loaded relationship pattern grouped
// by category.
func (s *Server) handleListRelationships(c echo.Context) error {
	rels := s.engine.ListRelationships(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{"relationships": rels})
}

// handleCacheStatistics returns pattern cache performance counters.
func (s *Server) handleCacheStatistics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.CacheStatistics(c.Request().Context()))
}

// handleCacheClear discards every cached pattern-store read.
func (s *Server) handleCacheClear(c echo.Context) error {
	s.engine.CacheClear(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

// handleReloadPatterns re-reads the pattern store directory and clears the
// pattern cache.
func (s *Server) handleReloadPatterns(c echo.Context) error {
	if err := s.engine.ReloadPatterns(c.Request().Context()); err != nil {
		s.logger.Error("pattern reload failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to reload patterns")
	}
	return c.NoContent(http.StatusNoContent)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
