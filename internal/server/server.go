// Package server exposes the pipeline over HTTP: job submission and
// status, queue statistics, manifest building, bandwidth tracking and a
// websocket event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mediaforge/mediaforge/internal/config"
	"github.com/mediaforge/mediaforge/internal/events"
	"github.com/mediaforge/mediaforge/internal/pipeline"
	"github.com/mediaforge/mediaforge/internal/streaming"
)

// Server wires the HTTP surface to the scheduler and optimizer.
type Server struct {
	cfg       config.ServerConfig
	scheduler *pipeline.Scheduler
	optimizer *streaming.Optimizer
	bus       *events.Bus
	load      *pipeline.LoadMonitor
	logger    hclog.Logger

	// mediaDir, when set, is served under /media for local-store deployments
	mediaDir string

	httpServer *http.Server
}

// New builds the server. mediaDir may be empty when blobs are served by
// an external CDN instead of this process.
func New(cfg config.ServerConfig, scheduler *pipeline.Scheduler, optimizer *streaming.Optimizer, bus *events.Bus, load *pipeline.LoadMonitor, mediaDir string, logger hclog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		scheduler: scheduler,
		optimizer: optimizer,
		bus:       bus,
		load:      load,
		logger:    logger.Named("http"),
		mediaDir:  mediaDir,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	s.setupRoutes(r)
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
