package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/marketboard/mbsync/internal/connection"
	"github.com/marketboard/mbsync/internal/market"
)

// Config holds HTTP listener settings.
type Config struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

// ConnectionStats reports push connection details. connection.Manager
// satisfies it.
type ConnectionStats interface {
	Stats() connection.ManagerStats
}

// Server exposes the coordinator over HTTP.
type Server struct {
	cfg      Config
	coord    market.Coordinator
	conn     ConnectionStats
	metrics  http.Handler
	checks   []healthCheck
	logger   *slog.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time

	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithConnectionStats adds connection details to the status endpoint.
func WithConnectionStats(cs ConnectionStats) Option {
	return func(s *Server) { s.conn = cs }
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type healthCheck struct {
	name  string
	check HealthCheck
}

// WithHealthCheck adds a named component to the health endpoint. A failing
// check makes the endpoint return 503.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks = append(s.checks, healthCheck{name: name, check: check})
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a Server. Routes are registered immediately; call Start to
// listen.
func New(cfg Config, coord market.Coordinator, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		coord:   coord,
		logger:  logger.With("component", "httpapi"),
		engine:  gin.New(),
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.getHealth)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.GET("/status/stream", s.streamStatus)
		v1.GET("/watched", s.listWatched)
		v1.GET("/worlds", s.listWorlds)

		items := v1.Group("/items/:id")
		items.GET("", s.getItem)
		items.PUT("/watch", s.watchItem)
		items.DELETE("/watch", s.unwatchItem)
		items.POST("/refresh", s.refreshItem)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}

	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Shutdown stops accepting requests and waits for active ones to finish.
// Status streams end when the coordinator's status watchers close.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
