// Package server implements the taskd HTTP daemon: the wire protocol over
// a task backend, plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/taskd/internal/dates"
	"github.com/fyrsmithlabs/taskd/internal/frontmatter"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/protocol"
	"github.com/fyrsmithlabs/taskd/internal/task"
)

// healthCacheTTL bounds how often a health probe recounts the vault.
const healthCacheTTL = 15 * time.Second

// Config holds HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	RateLimit float64
	Version   string
}

// Server serves the daemon wire protocol over one task backend.
type Server struct {
	echo    *echo.Echo
	backend task.Backend
	logger  *zap.Logger
	config  Config
	metrics *metrics
	started time.Time

	mu          sync.Mutex
	taskCount   int
	lastRefresh time.Time
}

// New creates the HTTP server.
func New(backend task.Backend, logger *zap.Logger, cfg Config) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 7432
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		backend: backend,
		logger:  logger.Named("server"),
		config:  cfg,
		metrics: newMetrics(),
		started: time.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	e.Use(s.requestLogger)
	e.Use(s.metrics.middleware)

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		// Propagate the correlation id so backend warnings carry it.
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		c.SetRequest(c.Request().WithContext(logging.WithRequestID(c.Request().Context(), rid)))
		err := next(c)
		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", rid),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", s.metrics.handler())

	v1 := s.echo.Group("/api/v1")
	v1.GET("/tasks", s.handleList)
	v1.POST("/tasks", s.handleCreate)
	v1.GET("/tasks/:id", s.handleGet)
	v1.PATCH("/tasks/:id", s.handleUpdate)
	v1.POST("/tasks/:id/status", s.handleStatusChange)
	v1.DELETE("/tasks/:id", s.handleDelete)
}

// Envelope helpers. Task operations always answer with the protocol
// envelope; only /health and /metrics are bare.

func ok(c echo.Context, status int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fail(c, http.StatusInternalServerError, protocol.CodeInternal, "encode response")
	}
	return c.JSON(status, protocol.Envelope{OK: true, Data: raw})
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, protocol.Envelope{
		OK:    false,
		Error: &protocol.ErrorBody{Code: code, Message: message},
	})
}

// failErr maps taxonomy errors onto wire codes and HTTP statuses.
func failErr(c echo.Context, err error) error {
	var perr *frontmatter.ParseError
	switch {
	case errors.Is(err, task.ErrNotFound):
		return fail(c, http.StatusNotFound, protocol.CodeNotFound, err.Error())
	case errors.Is(err, dates.ErrInvalidDate):
		return fail(c, http.StatusBadRequest, protocol.CodeInvalidDate, err.Error())
	case errors.Is(err, task.ErrInvalidStatus), errors.Is(err, task.ErrTitleRequired):
		return fail(c, http.StatusBadRequest, protocol.CodeInvalidRequest, err.Error())
	case errors.Is(err, task.ErrIDExhausted):
		return fail(c, http.StatusInternalServerError, protocol.CodeIDExhausted, err.Error())
	case errors.As(err, &perr):
		return fail(c, http.StatusInternalServerError, protocol.CodeParseError, err.Error())
	default:
		return fail(c, http.StatusInternalServerError, protocol.CodeInternal, err.Error())
	}
}

// payload converts a task to its wire form with derived flags filled in.
func payload(t *task.Task) *protocol.TaskPayload {
	p := protocol.FromTask(t)
	if t.Due != "" && t.Status != task.StatusCompleted {
		if due, err := dates.Parse(t.Due); err == nil {
			p.IsOverdue = dates.IsOverdue(due)
			p.IsDueToday = dates.IsDueToday(due)
		}
	}
	return p
}

func payloads(tasks []*task.Task) []*protocol.TaskPayload {
	out := make([]*protocol.TaskPayload, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, payload(t))
	}
	return out
}

func (s *Server) handleHealth(c echo.Context) error {
	count, refreshed, err := s.cachedCount(c.Request().Context())
	if err != nil {
		s.logger.Warn("health count failed", zap.Error(err))
	}
	return c.JSON(http.StatusOK, protocol.Health{
		Status:  "ok",
		Version: s.config.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Cache: protocol.HealthCache{
			TaskCount:   count,
			LastRefresh: refreshed,
		},
	})
}

// cachedCount recounts the vault at most once per healthCacheTTL; between
// refreshes health probes answer from the cache.
func (s *Server) cachedCount(ctx context.Context) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastRefresh) < healthCacheTTL {
		return s.taskCount, s.lastRefresh, nil
	}
	tasks, err := s.backend.List(ctx)
	if err != nil {
		return s.taskCount, s.lastRefresh, err
	}
	s.taskCount = len(tasks)
	s.lastRefresh = time.Now()
	return s.taskCount, s.lastRefresh, nil
}

func (s *Server) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	if raw := c.QueryParam("status"); raw != "" {
		status, err := task.ParseStatus(raw)
		if err != nil {
			return fail(c, http.StatusBadRequest, protocol.CodeInvalidRequest, err.Error())
		}
		tasks, err := s.backend.ListStatus(ctx, status)
		if err != nil {
			return failErr(c, err)
		}
		return ok(c, http.StatusOK, payloads(tasks))
	}

	tasks, err := s.backend.List(ctx)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, payloads(tasks))
}

func (s *Server) handleGet(c echo.Context) error {
	t, err := s.backend.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, payload(t))
}

func (s *Server) handleCreate(c echo.Context) error {
	var req protocol.TaskPayload
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, protocol.CodeInvalidRequest, "invalid request body")
	}

	draft := req.ToTask()
	draft.ID = "" // the daemon assigns ids
	if draft.Status == "" {
		draft.Status = task.StatusInbox
	}
	// Due text is normalized here so every client gets the same date
	// grammar, not just the CLI.
	if draft.Due != "" {
		due, err := dates.Parse(draft.Due)
		if err != nil {
			return failErr(c, err)
		}
		draft.Due = dates.FormatISO(due)
	}

	created, err := s.backend.Create(c.Request().Context(), draft)
	if err != nil {
		return failErr(c, err)
	}
	s.invalidateCount()
	return ok(c, http.StatusCreated, payload(created))
}

func (s *Server) handleUpdate(c echo.Context) error {
	var req protocol.Patch
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, protocol.CodeInvalidRequest, "invalid request body")
	}

	patch := req.ToPatch()
	if patch.Due != nil && *patch.Due != "" {
		due, err := dates.Parse(*patch.Due)
		if err != nil {
			return failErr(c, err)
		}
		iso := dates.FormatISO(due)
		patch.Due = &iso
	}

	t, err := s.backend.UpdateFields(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, payload(t))
}

func (s *Server) handleStatusChange(c echo.Context) error {
	var req protocol.StatusChange
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, protocol.CodeInvalidRequest, "invalid request body")
	}
	status, err := task.ParseStatus(req.Status)
	if err != nil {
		return fail(c, http.StatusBadRequest, protocol.CodeInvalidRequest, err.Error())
	}

	t, err := s.backend.UpdateStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, http.StatusOK, payload(t))
}

func (s *Server) handleDelete(c echo.Context) error {
	id := c.Param("id")
	if err := s.backend.Delete(c.Request().Context(), id); err != nil {
		return failErr(c, err)
	}
	s.invalidateCount()
	return ok(c, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) invalidateCount() {
	s.mu.Lock()
	s.lastRefresh = time.Time{}
	s.mu.Unlock()
}

// Start begins serving and blocks until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
