package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/verdantlabs/chatlink/internal/logging"
	"github.com/verdantlabs/chatlink/internal/monitoring"
	"github.com/verdantlabs/chatlink/internal/session"
)

// Config contains debug server configuration.
type Config struct {
	Addr        string
	Development bool
}

// Server is the debug HTTP server.
type Server struct {
	log  *logging.Logger
	http *http.Server
}

// New builds the debug server around an orchestrator.
func New(cfg Config, orch *session.Orchestrator, log *logging.Logger, metrics *monitoring.Metrics) *Server {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.Snapshot())
	})
	router.GET("/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": orch.History().List()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		log: log,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.log.Info("debug server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
