// Package api exposes the operator HTTP surface: DLQ inspection and
// replay, health and metrics. This is an internal tool, errors are
// echoed back verbatim.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexocrm/notify/pkg/dlq"
	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
)

// ServerConfig configures the operator server.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *ServerConfig) normalize() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

// Server hosts the operator endpoints.
type Server struct {
	replay  *dlq.Service
	backend queue.Backend
	log     logger.Logger
	cfg     ServerConfig

	httpServer *http.Server
}

// NewServer builds the gin engine and routes.
func NewServer(replay *dlq.Service, backend queue.Backend, cfg ServerConfig, log logger.Logger) (*Server, error) {
	if replay == nil {
		return nil, errors.New("replay service is required")
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()

	s := &Server{
		replay:  replay,
		backend: backend,
		log:     log,
		cfg:     cfg,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.POST("/dlq/status", s.handleStatus)
	engine.POST("/dlq/reprocess", s.handleReprocess)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("operator api listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusRequest struct {
	Queue string `json:"queue"`
}

type reprocessRequest struct {
	Queue    string         `json:"queue"`
	Limit    int            `json:"limit"`
	Filters  requestFilters `json:"filters"`
	Actor    string         `json:"actor"`
	ActionID string         `json:"actionId"`
}

type requestFilters struct {
	JobKind   string    `json:"jobKind"`
	ErrorCode string    `json:"errorCode"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := s.backend.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	// An empty or absent body is a valid "all queues" request.
	var req statusRequest
	_ = c.ShouldBindJSON(&req)

	counts, err := s.replay.Status(c.Request.Context(), req.Queue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (s *Server) handleReprocess(c *gin.Context) {
	var req reprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Queue) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queue is required"})
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = dlq.MaxReplayBatch
	}

	result, err := s.replay.Replay(c.Request.Context(), dlq.ReplayRequest{
		Queue: req.Queue,
		Limit: limit,
		Filters: dlq.Filters{
			JobKind:   req.Filters.JobKind,
			ErrorCode: req.Filters.ErrorCode,
			From:      req.Filters.From,
			To:        req.Filters.To,
		},
		Actor:    req.Actor,
		ActionID: req.ActionID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
