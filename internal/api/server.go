// Package api exposes the internal producer, operator and ops endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/notifications/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type NotificationService interface {
	CreateNotification(ctx context.Context, in service.CreateNotificationInput) (*service.CreateNotificationResult, error)
	GetNotification(ctx context.Context, id int64) (*service.NotificationDetails, error)
}

type DeadLetterLister interface {
	ListDeadLetters(ctx context.Context, queueType models.QueueType, limit int) ([]*models.QueueItem, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	notifications NotificationService
	deadLetters   DeadLetterLister
	checks        map[string]Pinger
	logger        logger.Logger
	engine        *gin.Engine
	httpServer    *http.Server
}

func NewServer(addr string, notifications NotificationService, deadLetters DeadLetterLister, checks map[string]Pinger, log logger.Logger) *Server {
	s := &Server{
		notifications: notifications,
		deadLetters:   deadLetters,
		checks:        checks,
		logger:        log.WithFields(map[string]interface{}{"component": "api"}),
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = []string{"Content-Type", "Authorization"}
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(c))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/notifications", s.createNotification)
	v1.GET("/notifications/:id", s.getNotification)
	v1.GET("/queue/dead-letters", s.listDeadLetters)

	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health" {
			return
		}
		s.logger.Info("http request", map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}
