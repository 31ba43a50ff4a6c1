// Package httpapi exposes the work assistant over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/ingest"
	"github.com/ledgerline/workassist/internal/query"
	"github.com/ledgerline/workassist/internal/semindex"
	"github.com/ledgerline/workassist/internal/store"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Server provides HTTP endpoints for the work assistant.
type Server struct {
	echo        *echo.Echo
	store       *store.Store
	coordinator *ingest.Coordinator
	engine      *query.Engine
	index       *semindex.Index
	logger      *zap.Logger
	config      Config
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(entities *store.Store, coordinator *ingest.Coordinator, engine *query.Engine, index *semindex.Index, logger *zap.Logger, cfg Config) (*Server, error) {
	if entities == nil {
		return nil, fmt.Errorf("store is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("ingestion coordinator is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if index == nil {
		return nil, fmt.Errorf("semantic index is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
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
		echo:        e,
		store:       entities,
		coordinator: coordinator,
		engine:      engine,
		index:       index,
		logger:      logger,
		config:      cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	work := s.echo.Group("/api/work")
	work.GET("/projects", s.handleListProjects)
	work.POST("/projects", s.handleCreateProject)
	work.GET("/projects/:id", s.handleGetProject)
	work.PUT("/projects/:id", s.handleUpdateProject)
	work.DELETE("/projects/:id", s.handleDeleteProject)
	work.POST("/emails/process", s.handleProcessEmail)
	work.GET("/emails", s.handleListEmails)
	work.POST("/status-updates", s.handleCreateStatusUpdate)
	work.GET("/status-updates/:projectID", s.handleListStatusUpdates)
	work.GET("/deliverables", s.handleListDeliverables)
	work.POST("/deliverables", s.handleCreateDeliverable)
	work.PUT("/deliverables/:id", s.handleUpdateDeliverable)
	work.DELETE("/deliverables/:id", s.handleDeleteDeliverable)
	work.POST("/query", s.handleQuery)
	work.GET("/people", s.handleListPeople)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// httpError maps domain sentinel errors to HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, ingest.ErrMissingSender),
		errors.Is(err, ingest.ErrMissingContent),
		errors.Is(err, ingest.ErrMissingProject),
		errors.Is(err, query.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
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
