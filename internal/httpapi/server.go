// Package httpapi exposes the kernel's operator-facing HTTP surface: health
// and readiness probes, a prometheus scrape endpoint, and the event log's
// tail/stream routes. It is
// deliberately thin — every state mutation still flows through the
// dispatcher, never through this package.
package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emergentlabs/agentsim/internal/config"
	"github.com/emergentlabs/agentsim/internal/dispatch"
	"github.com/emergentlabs/agentsim/internal/loopmanager"
	"github.com/emergentlabs/agentsim/internal/logging"
	"github.com/emergentlabs/agentsim/internal/world"
)

// Server is the kernel's admin/observability HTTP surface. It holds
// read-only handles into the running kernel; it never constructs an
// Intent itself — admin mutations still go through the dispatcher.
type Server struct {
	router *gin.Engine
	http   *http.Server

	eventLog    *world.EventLog
	dispatcher  *dispatch.Dispatcher
	loopManager *loopmanager.Manager
	log         *logging.Logger

	ready atomic.Bool
}

// NewServer builds the router and wraps it in an *http.Server bound to
// cfg.Addr. Routes under /v1/admin require a bearer JWT signed with
// cfg.AdminJWTKey, and answer 503 when no key is set; every route is
// throttled per client IP via a
// token-bucket middleware, independent of the kernel's own resource
// RateTracker.
func NewServer(cfg config.HTTPConfig, eventLog *world.EventLog, d *dispatch.Dispatcher, lm *loopmanager.Manager, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:      router,
		eventLog:    eventLog,
		dispatcher:  d,
		loopManager: lm,
		log:         log,
	}

	limiter := newRequestLimiter(cfg.RatePerSecond, cfg.RateBurst)
	router.Use(limiter.middleware())

	router.GET("/healthz", s.handleHealthz)
	router.GET("/readyz", s.handleReadyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/v1/events/tail", s.handleEventsTail)
	router.GET("/v1/events/stream", s.handleEventsStream)

	admin := router.Group("/v1/admin")
	admin.Use(jwtAuth(cfg.AdminJWTKey))
	admin.GET("/loops", s.handleListLoops)
	admin.GET("/artifacts/:id", s.handleGetArtifact)

	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	return s
}

// SetReady flips the readiness probe; main.go calls this once genesis
// bootstrap and loop startup have both completed.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "live"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleListLoops reports the agent IDs with a currently-running OODA
// loop goroutine, for operator visibility into who is hibernating.
func (s *Server) handleListLoops(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": s.loopManager.Running()})
}

// handleGetArtifact exposes a single artifact read over the same `read`
// intent any principal could issue, charged to the genesis principal so
// operator inspection never draws on an agent's own resources.
func (s *Server) handleGetArtifact(c *gin.Context) {
	result := s.dispatcher.Dispatch(c.Request.Context(), dispatch.Intent{
		Kind:        dispatch.KindRead,
		PrincipalID: "genesis",
		ArtifactID:  c.Param("id"),
	})
	if !result.Success {
		c.JSON(http.StatusNotFound, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListenAndServe runs the HTTP server until ctx is cancelled or the
// listener fails. Shutdown is graceful: ListenAndServe returns once Shutdown
// completes or its own timeout expires.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("httpapi listening on " + s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
