// Package http provides the dashboard and ops HTTP surface for dispatchd.
//
// The hosting shell polls these endpoints for the status indicator and
// tree views, and commits to a task through the dispatch endpoint. Task
// outcomes otherwise flow through the tool protocol.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	dmcp "github.com/fyrsmithlabs/dispatchd/internal/mcp"
	"github.com/fyrsmithlabs/dispatchd/internal/protocol"
	"github.com/fyrsmithlabs/dispatchd/internal/scheduler"
	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for dispatchd.
type Server struct {
	echo     *echo.Echo
	service  *protocol.Service
	sched    *scheduler.Scheduler
	registry *dmcp.ToolRegistry
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(service *protocol.Service, sched *scheduler.Scheduler, registry *dmcp.ToolRegistry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("protocol service is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9815,
		}
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
		echo:     e,
		service:  service,
		sched:    sched,
		registry: registry,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/dashboard", s.handleDashboard)
	v1.GET("/queue", s.handleQueue)
	v1.GET("/tools", s.handleTools)
	v1.POST("/dispatch", s.handleDispatch)
	v1.POST("/complete", s.handleComplete)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// QueueResponse is the response body for GET /api/v1/queue.
type QueueResponse struct {
	Filter string                 `json:"filter"`
	Count  int                    `json:"count"`
	Tasks  []protocol.TaskSummary `json:"tasks"`
}

// ToolsResponse is the response body for GET /api/v1/tools.
type ToolsResponse struct {
	Count int                  `json:"count"`
	Tools []*dmcp.ToolMetadata `json:"tools"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleDashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Dashboard())
}

func (s *Server) handleQueue(c echo.Context) error {
	filter := scheduler.Filter(c.QueryParam("filter"))
	if filter == "" {
		filter = scheduler.FilterReady
	}
	if !filter.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "filter must be ready, blocked, or all")
	}

	var priority task.Priority
	if p := c.QueryParam("priority"); p != "" {
		parsed, err := task.ParsePriority(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid priority")
		}
		priority = parsed
	}

	tasks := s.sched.Select(filter, priority)
	resp := QueueResponse{
		Filter: string(filter),
		Count:  len(tasks),
		Tasks:  make([]protocol.TaskSummary, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, protocol.TaskSummary{
			ID:       t.ID,
			Title:    t.Title,
			Priority: t.Priority,
			Status:   t.Status,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTools(c echo.Context) error {
	if s.registry == nil {
		return c.JSON(http.StatusOK, ToolsResponse{Tools: []*dmcp.ToolMetadata{}})
	}
	tools := s.registry.Search(c.QueryParam("q"))
	return c.JSON(http.StatusOK, ToolsResponse{Count: len(tools), Tools: tools})
}

func (s *Server) handleDispatch(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	result, err := s.service.Dispatch(body)
	if err != nil {
		return protocolHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleComplete(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	result, err := s.service.Complete(body)
	if err != nil {
		return protocolHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	return body, nil
}

// protocolHTTPError maps protocol error codes onto HTTP statuses.
func protocolHTTPError(err error) error {
	pe, ok := protocol.AsError(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch pe.Code {
	case protocol.CodeNotFound:
		return echo.NewHTTPError(http.StatusNotFound, pe.Message)
	case protocol.CodeInvalidState:
		return echo.NewHTTPError(http.StatusConflict, pe.Message)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, pe.Message)
	}
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
