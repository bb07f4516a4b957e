// Package server exposes a small HTTP status API for relaybot.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edgard/relaybot/internal/batcher"
)

const shutdownTimeout = 10 * time.Second

var releaseMode sync.Once

// Pinger checks a dependency. database.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource reports batcher occupancy. *batcher.Batcher implements it.
type StatsSource interface {
	Stats() batcher.Stats
}

// Server serves GET /healthz and GET /stats.
type Server struct {
	addr    string
	db      Pinger
	stats   StatsSource
	log     *slog.Logger
	engine  *gin.Engine
	startAt time.Time
}

// New builds the gin engine. Nothing listens until Run.
func New(addr string, db Pinger, stats StatsSource, log *slog.Logger) *Server {
	releaseMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	s := &Server{
		addr:    addr,
		db:      db,
		stats:   stats,
		log:     log.With("component", "http_server"),
		startAt: time.Now(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", s.ginHealth)
	engine.GET("/stats", s.ginStats)
	s.engine = engine
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("HTTP server shutdown failed", "error", err)
		}
	}()

	s.log.Info("HTTP status server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) ginHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.Warn("Health check failed", "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startAt).Round(time.Second).String(),
	})
}

func (s *Server) ginStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Stats())
}
