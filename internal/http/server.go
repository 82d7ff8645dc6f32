// Package http serves the complyd API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complyd/internal/logging"
	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
	"github.com/fyrsmithlabs/complyd/internal/workflow"
)

// HeaderSessionID selects the short-term memory session for a request.
const HeaderSessionID = "X-Session-ID"

const maxSearchK = 50

// Runner answers queries.
type Runner interface {
	Run(ctx context.Context, query string, opts workflow.RunOptions) (*workflow.Result, error)
}

// Server provides HTTP endpoints for complyd.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	memory  *memory.Coordinator
	profile *profile.Store
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// requestValidator adapts go-playground/validator to echo.
type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i any) error {
	return rv.v.Struct(i)
}

// NewServer creates a new HTTP server. profileStore defaults to the
// coordinator's profile.
func NewServer(runner Runner, coord *memory.Coordinator, profileStore *profile.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if coord == nil {
		return nil, fmt.Errorf("memory coordinator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if profileStore == nil {
		profileStore = coord.Profile()
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	e.Use(sessionContext)

	s := &Server{
		echo:    e,
		runner:  runner,
		memory:  coord,
		profile: profileStore,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

// sessionContext carries the request and session ids into the request
// context.
func sessionContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			ctx = logging.WithRequestID(ctx, id)
		}
		if id := c.Request().Header.Get(HeaderSessionID); id != "" {
			if err := logging.ValidateID(id); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
			}
			ctx = logging.WithSessionID(ctx, id)
		}
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.GET("/memory/stats", s.handleMemoryStats)
	v1.GET("/memory/search", s.handleMemorySearch)
	v1.DELETE("/memory", s.handleMemoryClear)
	v1.GET("/profile", s.handleProfile)
	v1.DELETE("/profile", s.handleProfileClear)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("query must be at least %d characters", workflow.MinQueryLength))
	}

	res, err := s.runner.Run(c.Request().Context(), req.Query, workflow.RunOptions{
		SkipMemory:  req.SkipMemory,
		AutoApprove: req.AutoApprove,
	})
	if err != nil {
		if workflow.IsInputError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleMemoryStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.memory.Stats(c.Request().Context()))
}

func (s *Server) handleMemorySearch(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}
	k := memory.DefaultRecallK
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchK {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("k must be 1-%d", maxSearchK))
		}
		k = n
	}
	records := s.memory.Search(c.Request().Context(), q, k)
	if records == nil {
		records = []memory.Record{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Query: q, Results: records})
}

func (s *Server) handleMemoryClear(c echo.Context) error {
	n, err := s.memory.Clear(c.Request().Context())
	if err != nil {
		if errors.Is(err, memory.ErrBackendUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "long-term memory unavailable")
		}
		s.logger.Error("clearing memory failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "clearing memory failed")
	}
	s.memory.ShortTerm(c.Request().Context()).Clear()
	return c.JSON(http.StatusOK, ClearResponse{Deleted: n})
}

func (s *Server) handleProfile(c echo.Context) error {
	if s.profile == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "profile store unavailable")
	}
	return c.JSON(http.StatusOK, ProfileResponse{
		Profile: s.profile.Snapshot(),
		Stats:   s.profile.Stats(),
		Summary: s.profile.Format(),
	})
}

func (s *Server) handleProfileClear(c echo.Context) error {
	if s.profile == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "profile store unavailable")
	}
	if err := s.profile.Clear(); err != nil {
		s.logger.Error("clearing profile failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "clearing profile failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
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
