// Package api serves the in-job observability endpoint on the head node:
// process registry snapshots, job identity, and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchctl/benchctl/internal/metrics"
	"github.com/benchctl/benchctl/internal/registry"
	"github.com/benchctl/benchctl/internal/runtime"
)

// SnapshotSource is the registry view the server reports from.
type SnapshotSource interface {
	Snapshot() []registry.ProcessStatus
	Tainted() bool
}

// Server is the in-job HTTP server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	procs SnapshotSource
	rc    *runtime.Context

	host string
	port int

	// Readiness state (atomic for thread-safe access)
	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHost sets the server host
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

// WithPort sets the server port
func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

// New creates the in-job API server.
func New(procs SnapshotSource, rc *runtime.Context, opts ...Option) *Server {
	s := &Server{
		logger: slog.Default(),
		procs:  procs,
		rc:     rc,
		host:   "0.0.0.0",
		port:   9090,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRouter()
	return s
}

// SetReady flips the readiness state once all endpoints are serving.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("server readiness changed", slog.Bool("ready", ready))
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(s.metricsMiddleware())
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/job", s.handleJob)
		v1.GET("/processes", s.handleProcesses)
	}

	s.router = router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting in-job API server", slog.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down in-job API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path,
			strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "job_id": s.rc.JobID})
}

func (s *Server) handleReady(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) handleJob(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"job_id":     s.rc.JobID,
		"run_id":     s.rc.RunID,
		"model":      s.rc.ModelPath,
		"served_as":  s.rc.ServedModelName,
		"nodes":      s.rc.Nodes,
		"head_node":  s.rc.HeadNode(),
		"log_dir":    s.rc.LogDir,
		"started_at": s.rc.StartedAt,
	})
}

func (s *Server) handleProcesses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tainted":   s.procs.Tainted(),
		"processes": s.procs.Snapshot(),
	})
}
