// Package httpapi serves the pipeline engine over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/dusk-indust/briefing/internal/export"
	"github.com/dusk-indust/briefing/internal/logging"
	"github.com/dusk-indust/briefing/internal/metrics"
	"github.com/dusk-indust/briefing/internal/orchestrator"
	"github.com/dusk-indust/briefing/internal/status"
	"github.com/dusk-indust/briefing/internal/store"
)

// HeaderUserID names the caller. There is no authentication; the header is
// trusted as given.
const HeaderUserID = "X-User-ID"

// Config holds HTTP server configuration.
type Config struct {
	Addr       string
	MCPPath    string
	BatchLimit int
	StuckAfter time.Duration
}

// Deps are the collaborators the server exposes.
type Deps struct {
	Store    store.Store
	Executor *orchestrator.Executor
	// MCP is mounted at Config.MCPPath when set.
	MCP http.Handler
	Log *logging.Logger
}

// Server provides the HTTP endpoints.
type Server struct {
	echo  *echo.Echo
	store store.Store
	exec  *orchestrator.Executor
	log   *logging.Logger
	cfg   Config
	now   func() time.Time
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, cfg Config) (*Server, error) {
	if deps.Store == nil || deps.Executor == nil {
		return nil, fmt.Errorf("httpapi: store and executor are required")
	}
	if deps.Log == nil {
		deps.Log = logging.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MCPPath == "" {
		cfg.MCPPath = "/mcp"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:  e,
		store: deps.Store,
		exec:  deps.Executor,
		log:   deps.Log.Named("http"),
		cfg:   cfg,
		now:   time.Now,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLog)

	s.registerRoutes(deps)
	return s, nil
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return nil
	}
}

func (s *Server) registerRoutes(deps Deps) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	if deps.MCP != nil {
		s.echo.Any(s.cfg.MCPPath, echo.WrapHandler(deps.MCP))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/pipelines/:id/run", s.handleRun)
	v1.POST("/pipelines/batch", s.handleBatch)
	v1.GET("/pipelines/:id/export", s.handleExport)
	v1.POST("/pipelines/import", s.handleImport)
	v1.POST("/test-step", s.handleTestStep)
	v1.GET("/reports", s.handleListReports)
	v1.GET("/reports/:id", s.handleGetReport)
	v1.GET("/status", s.handleStatus)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// RunRequest is the optional body of POST /pipelines/:id/run.
type RunRequest struct {
	RunType string `json:"run_type"`
}

func (s *Server) handleRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	runType := orchestrator.RunManual
	switch req.RunType {
	case "", orchestrator.RunManual:
	case orchestrator.RunScheduled:
		runType = orchestrator.RunScheduled
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "run_type must be manual or scheduled")
	}

	summary, err := s.exec.Run(c.Request().Context(), userID(c), c.Param("id"), orchestrator.RunOptions{RunType: runType})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// BatchRequest is the body of POST /pipelines/batch. Without pipeline ids
// every pipeline of the caller runs.
type BatchRequest struct {
	PipelineIDs []string `json:"pipeline_ids"`
}

// BatchItemResult reports one pipeline of a batch.
type BatchItemResult struct {
	PipelineID string                   `json:"pipeline_id"`
	Summary    *orchestrator.RunSummary `json:"summary,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

func (s *Server) handleBatch(c echo.Context) error {
	ctx := c.Request().Context()
	uid := userID(c)
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, HeaderUserID+" header is required")
	}
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ids := req.PipelineIDs
	if len(ids) == 0 {
		pipelines, err := s.store.ListPipelines(ctx, uid)
		if err != nil {
			return s.fail(c, err)
		}
		for _, p := range pipelines {
			ids = append(ids, p.ID)
		}
	}
	items := make([]orchestrator.BatchItem, len(ids))
	for i, id := range ids {
		items[i] = orchestrator.BatchItem{UserID: uid, PipelineID: id}
	}

	results := orchestrator.NewBatch(s.exec, s.cfg.BatchLimit, nil).Run(ctx, items)
	out := make([]BatchItemResult, len(results))
	for i, r := range results {
		out[i] = BatchItemResult{PipelineID: r.Item.PipelineID, Summary: r.Summary}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleTestStep(c echo.Context) error {
	var req orchestrator.TestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if uid := userID(c); uid != "" {
		req.UserID = uid
	}
	res, err := s.exec.TestStep(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListReports(c echo.Context) error {
	q := store.ReportQuery{
		UserID:     userID(c),
		PipelineID: c.QueryParam("pipeline_id"),
		Status:     store.ReportStatus(c.QueryParam("status")),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		q.Limit = n
	}
	reports, err := s.store.ListReports(c.Request().Context(), q)
	if err != nil {
		return s.fail(c, err)
	}
	if reports == nil {
		reports = []store.Report{}
	}
	return c.JSON(http.StatusOK, reports)
}

func (s *Server) handleGetReport(c echo.Context) error {
	rep, err := s.store.GetReport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	uid := userID(c)
	if rep == nil || (uid != "" && rep.UserID != uid) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handleExport(c echo.Context) error {
	b, err := export.Export(c.Request().Context(), s.store, userID(c), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	format := strings.ToLower(c.QueryParam("format"))
	switch format {
	case "", export.FormatJSON:
		return c.JSON(http.StatusOK, b)
	case export.FormatYAML:
		c.Response().Header().Set(echo.HeaderContentType, "application/yaml")
		c.Response().WriteHeader(http.StatusOK)
		return export.Encode(c.Response(), b, export.FormatYAML)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json or yaml")
	}
}

func (s *Server) handleImport(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, HeaderUserID+" header is required")
	}
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	format := ""
	if strings.Contains(c.Request().Header.Get(echo.HeaderContentType), "yaml") {
		format = export.FormatYAML
	}
	b, err := export.Decode(data, format)
	if err != nil {
		return s.fail(c, err)
	}
	p, err := export.Import(c.Request().Context(), s.store, uid, b)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) handleStatus(c echo.Context) error {
	sum, err := status.Load(c.Request().Context(), s.store, userID(c), s.now(), s.cfg.StuckAfter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// fail maps validation errors to 400 and everything else to 500.
func (s *Server) fail(c echo.Context, err error) error {
	if orchestrator.IsValidation(err) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.log.Error(c.Request().Context(), "request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func userID(c echo.Context) string {
	if v := c.Request().Header.Get(HeaderUserID); v != "" {
		return v
	}
	return c.QueryParam("user_id")
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "starting http server", zap.String("addr", s.cfg.Addr))
	if err := s.echo.Start(s.cfg.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
