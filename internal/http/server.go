// Package http provides the switchboard HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchboard/internal/logging"
	"github.com/fyrsmithlabs/switchboard/internal/metrics"
	"github.com/fyrsmithlabs/switchboard/internal/orchestrator"
	"github.com/fyrsmithlabs/switchboard/internal/registry"
	"github.com/fyrsmithlabs/switchboard/internal/selection"
	"github.com/fyrsmithlabs/switchboard/internal/telemetry"
	"github.com/fyrsmithlabs/switchboard/internal/tracker"
)

// QueryRunner runs queries and exposes session state.
type QueryRunner interface {
	SelectAndRun(ctx context.Context, query string, qc orchestrator.QueryContext) (*orchestrator.Result, error)
	GetSessionState(sessionID string) (tracker.SessionState, error)
	GetSessionLog(sessionID string) ([]tracker.Event, error)
	ListSessions() []tracker.SessionState
	GetCacheStats() registry.Stats
	Subscribe(sessionID string) *tracker.Subscription
	Unsubscribe(sub *tracker.Subscription)
}

// Registry reloads specialist definitions.
type Registry interface {
	Refresh(ctx context.Context, force bool) error
	HotReload(ctx context.Context, id string) error
}

// Resources lists the resource pool with live metrics.
type Resources interface {
	Resources() []metrics.Resource
	All() []metrics.Stats
}

// ResourceScorer explains selection scores for a task.
type ResourceScorer interface {
	Scores(taskType string, complexity float64) []selection.Score
}

// HealthChecker reports telemetry health.
type HealthChecker interface {
	Health() telemetry.HealthStatus
}

// Deps are the collaborators the server exposes. Driver, Registry and
// Resources are required.
type Deps struct {
	Driver    QueryRunner
	Registry  Registry
	Resources Resources

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Scorer adds score breakdowns to /api/v1/resources. Optional.
	Scorer ResourceScorer
	// Health is optional.
	Health HealthChecker
	// Tracer is optional; requests are not traced without it.
	Tracer trace.Tracer
	// Metrics is optional.
	Metrics *HTTPMetrics
}

// Server provides HTTP endpoints for switchboard.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	Version         string
	ShutdownTimeout time.Duration

	// Heartbeat is the SSE keep-alive interval.
	Heartbeat time.Duration
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Driver == nil {
		return nil, fmt.Errorf("driver cannot be nil")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if deps.Resources == nil {
		return nil, fmt.Errorf("resources cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext())
	if deps.Tracer != nil {
		e.Use(Tracing(deps.Tracer))
	}
	if deps.Metrics != nil {
		e.Use(deps.Metrics.MetricsMiddleware())
	}
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
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	e.HTTPErrorHandler = s.handleError

	// Register routes
	s.registerRoutes()

	return s, nil
}

// handleError renders every error as an ErrorResponse. Unexpected errors
// are logged and reported generically.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		s.logger.Error("unhandled request error",
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn("failed to write error response", zap.Error(err))
	}
}

// requestContext copies the request id into the request context so that
// downstream logs carry it.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if logging.ValidateID(rid, "request_id") == nil {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), rid)))
			}
			return next(c)
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/queries", s.handleQuery)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.GET("/sessions/:id/log", s.handleGetSessionLog)
	v1.GET("/stream", s.handleStream)
	v1.GET("/cache/stats", s.handleCacheStats)
	v1.POST("/cache/refresh", s.handleCacheRefresh)
	v1.POST("/specialists/:id/reload", s.handleReload)
	v1.GET("/resources", s.handleResources)
}

// handleHealth reports liveness and telemetry degradation.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Sessions: len(s.deps.Driver.ListSessions()),
	}
	if s.deps.Health != nil {
		if h := s.deps.Health.Health(); h.Degraded {
			resp.Status = "degraded"
			resp.Reasons = h.Reasons
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleQuery runs a query to completion and returns its result.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.Complexity < 0 || req.Complexity > 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "complexity must be between 0 and 1")
	}

	res, err := s.deps.Driver.SelectAndRun(c.Request().Context(), req.Query, orchestrator.QueryContext{
		Specialists: req.Specialists,
		Complexity:  req.Complexity,
		SessionID:   req.SessionID,
	})
	if res != nil {
		return c.JSON(resultStatus(res), res)
	}

	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	case errors.Is(err, orchestrator.ErrInvalidSessionID):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session_id")
	case errors.Is(err, tracker.ErrDuplicateSession):
		return echo.NewHTTPError(http.StatusConflict, "session already exists")
	default:
		s.logger.Error("query failed before session start", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// resultStatus maps a result to an HTTP status code.
func resultStatus(res *orchestrator.Result) int {
	if res.Status == orchestrator.StatusCompleted {
		return http.StatusOK
	}
	switch res.ErrorKind {
	case orchestrator.KindNoSpecialists:
		return http.StatusUnprocessableEntity
	case orchestrator.KindNoResourceAvailable:
		return http.StatusServiceUnavailable
	case orchestrator.KindGenerationFailed:
		return http.StatusBadGateway
	case orchestrator.KindTimeout:
		return http.StatusGatewayTimeout
	case orchestrator.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListSessions(c echo.Context) error {
	sessions := s.deps.Driver.ListSessions()
	if c.QueryParam("active") == "true" {
		active := sessions[:0]
		for _, st := range sessions {
			if !st.Terminal() {
				active = append(active, st)
			}
		}
		sessions = active
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: sessions, Count: len(sessions)})
}

func (s *Server) handleGetSession(c echo.Context) error {
	st, err := s.deps.Driver.GetSessionState(c.Param("id"))
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleGetSessionLog(c echo.Context) error {
	id := c.Param("id")
	events, err := s.deps.Driver.GetSessionLog(id)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, SessionLogResponse{SessionID: id, Events: events})
}

func sessionError(err error) error {
	if errors.Is(err, tracker.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func (s *Server) handleCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Driver.GetCacheStats())
}

// handleCacheRefresh forces a full registry refresh.
func (s *Server) handleCacheRefresh(c echo.Context) error {
	if err := s.deps.Registry.Refresh(c.Request().Context(), true); err != nil {
		s.logger.Warn("forced registry refresh failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "registry refresh failed")
	}
	return c.JSON(http.StatusOK, s.deps.Driver.GetCacheStats())
}

// handleReload hot-reloads one specialist.
func (s *Server) handleReload(c echo.Context) error {
	id := c.Param("id")
	err := s.deps.Registry.HotReload(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, ReloadResponse{ID: id, Status: "reloaded"})
	case errors.Is(err, registry.ErrSpecialistNotFound):
		return c.JSON(http.StatusNotFound, ReloadResponse{ID: id, Status: "not_found"})
	default:
		s.logger.Warn("specialist hot reload failed", zap.String("id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "specialist reload failed")
	}
}

// handleResources lists the pool with live metrics. With a scorer, each
// resource also carries its score for ?task= (default general) at
// ?complexity= (default 0.5).
func (s *Server) handleResources(c echo.Context) error {
	task := c.QueryParam("task")
	if task == "" {
		task = registry.GeneralDomain
	}
	complexity := 0.5
	if raw := c.QueryParam("complexity"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "complexity must be between 0 and 1")
		}
		complexity = v
	}

	resources := s.deps.Resources.Resources()
	stats := s.deps.Resources.All()
	var scores []selection.Score
	if s.deps.Scorer != nil {
		scores = s.deps.Scorer.Scores(task, complexity)
	}

	out := ResourcesResponse{Resources: make([]ResourceStatus, len(resources))}
	for i, r := range resources {
		out.Resources[i] = ResourceStatus{Resource: r}
		if i < len(stats) {
			out.Resources[i].Stats = stats[i]
		}
		if i < len(scores) && scores[i].Resource == r.Name {
			score := scores[i]
			out.Resources[i].Score = &score
		}
	}
	if s.deps.Scorer != nil {
		out.Task = task
		out.Complexity = complexity
	}
	return c.JSON(http.StatusOK, out)
}

// Start serves until ctx is canceled, then shuts down gracefully. It
// returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
