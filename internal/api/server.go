// Package api serves the bot's ops endpoints: health, metrics and status.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vrceventbot/vrceventbot/internal/config"
	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/logging"
	"github.com/vrceventbot/vrceventbot/internal/metrics"
	"github.com/vrceventbot/vrceventbot/internal/middleware"
	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/store"
	"github.com/vrceventbot/vrceventbot/internal/vrchat"
)

// StatusSource reports database health and row counts.
type StatusSource interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (store.StoreStats, error)
}

// BreakerSource reports the VRChat outage breaker.
type BreakerSource interface {
	BreakerStats() vrchat.BreakerStats
}

// Deps are the components the ops server reports on.
type Deps struct {
	Store    StatusSource
	Pending  interface{ Len() int }
	Mode     func() models.BotMode
	Provider BreakerSource
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	Version  string
}

// Server represents the ops HTTP server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	deps        Deps
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	started     time.Time
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates the ops server.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics("vrceventbot")
	}

	server := &Server{
		router:      gin.New(),
		config:      cfg,
		deps:        deps,
		rateLimiter: newIPRateLimiter(time.Second, 20),
		started:     time.Now(),
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(server.rateLimiter))
	server.router.Use(metrics.Middleware(deps.Metrics, deps.Logger))
	server.router.Use(loggingMiddleware(deps.Logger))

	server.setupRoutes()
	server.httpServer = NewHTTPServer(cfg.Addr(), server.router)
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		logger.DebugWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	s.router.GET("/health", s.handleHealth)

	authed := s.router.Group("")
	authed.Use(middleware.AuditMiddleware(s.deps.Logger), APIKeyAuth(s.config.APIKeys, "", s.deps.Logger))
	{
		authed.GET("/status", s.handleStatus)
	}
}

// Run listens on the configured address until Shutdown.
func (s *Server) Run() error {
	addr := s.httpServer.Addr

	s.deps.Logger.Info("starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return &errors.ErrServerShutdown{Err: err}
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"database":  "ok",
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "unreachable"
			s.deps.Metrics.RecordError("database", "health")
		}
	}
	c.JSON(status, body)
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	BotMode       string  `json:"bot_mode"`
	LinkedUsers   int     `json:"linked_users"`
	Groups        int     `json:"groups"`
	JoinedCached  int     `json:"joined_cached"`
	PendingLogins int     `json:"pending_logins"`

	VRChatBreaker *vrchat.BreakerStats `json:"vrchat_breaker,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Version:       s.deps.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		BotMode:       string(models.ModeGuild),
	}
	if s.deps.Mode != nil {
		resp.BotMode = string(s.deps.Mode())
	}
	if s.deps.Pending != nil {
		resp.PendingLogins = s.deps.Pending.Len()
	}
	if s.deps.Provider != nil {
		// a disabled breaker reports the zero value
		if stats := s.deps.Provider.BreakerStats(); stats.State != "" {
			resp.VRChatBreaker = &stats
		}
	}
	if s.deps.Store != nil {
		stats, err := s.deps.Store.Stats(c.Request.Context())
		if err != nil {
			s.deps.Logger.ErrorWithContext(c.Request.Context(), "status query failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "failed to read store statistics",
				Code:    http.StatusInternalServerError,
			})
			return
		}
		resp.LinkedUsers = stats.LinkedUsers
		resp.Groups = stats.Groups
		resp.JoinedCached = stats.JoinedCached
		s.deps.Metrics.SetLinkedUsers(stats.LinkedUsers)
	}
	c.JSON(http.StatusOK, resp)
}
