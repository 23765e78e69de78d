// Package review serves stored snapshots over HTTP so failed comparisons can
// be inspected and approved after a run.
package review

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xyzbank/banking-e2e/internal/storage"
	"github.com/xyzbank/banking-e2e/internal/visual"
)

type Server struct {
	engine   *gin.Engine
	cmp      *visual.Comparator
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	version  string
}

// NewServer builds the router. gatherer may be nil to disable /metrics.
func NewServer(cmp *visual.Comparator, gatherer prometheus.Gatherer, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   gin.New(),
		cmp:      cmp,
		gatherer: gatherer,
		logger:   logger,
		version:  version,
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.healthCheck)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api")
	{
		snapshots := api.Group("/snapshots")
		snapshots.GET("", s.listSnapshots)
		snapshots.GET("/:name/:kind", s.getImage)
		snapshots.POST("/:name/approve", s.approve)
		snapshots.DELETE("/:name/baseline", s.resetBaseline)

		api.POST("/clean", s.clean)
	}
}

func (s *Server) GetEngine() *gin.Engine {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("review server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("review request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	store := s.cmp.Store()
	info := store.GetInfo()
	if err := store.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"backend": info.Type,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "visualdiff",
		"backend": info.Type,
		"version": s.version,
	})
}

func (s *Server) listSnapshots(c *gin.Context) {
	list, err := s.cmp.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": list,
		"total":     len(list),
		"threshold": s.cmp.Threshold(),
	})
}

func (s *Server) getImage(c *gin.Context) {
	kind, err := storage.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := s.cmp.Image(c.Request.Context(), c.Param("name"), kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}

func (s *Server) approve(c *gin.Context) {
	name := c.Param("name")
	if err := s.cmp.Approve(c.Request.Context(), name); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Baseline approved", "name": name})
}

func (s *Server) resetBaseline(c *gin.Context) {
	name := c.Param("name")
	if err := s.cmp.Reset(c.Request.Context(), name); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Baseline removed", "name": name})
}

func (s *Server) clean(c *gin.Context) {
	removed, err := s.cmp.Clean(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, visual.ErrEmptyName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("review request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
