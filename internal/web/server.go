// Package web serves the JSON API and job event stream used by the browser
// front-end. Chat ids arrive in the path and are trusted as already
// authenticated by whatever sits in front of the server.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/scheduler"
	"github.com/zulandar/switchboard/internal/session"
)

// DefaultPort is used when Opts.Port is zero.
const DefaultPort = 8080

// Opts configures a Server. Schedules is optional; without it the
// schedule routes are not registered.
type Opts struct {
	Sessions       *session.Registry
	Queue          *queue.Store
	Pool           *queue.Pool
	Hub            *queue.Hub
	Schedules      *scheduler.Store
	Port           int
	AllowedOrigins []string
	Logger         *logger.Logger
	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration
}

// Server is the HTTP front-end.
type Server struct {
	sessions  *session.Registry
	queue     *queue.Store
	pool      *queue.Pool
	hub       *queue.Hub
	schedules *scheduler.Store
	port      int
	heartbeat time.Duration
	log       *logger.Logger
	router    *gin.Engine
}

// New validates opts and builds the router.
func New(opts Opts) (*Server, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("web: sessions is required")
	}
	if opts.Queue == nil || opts.Pool == nil || opts.Hub == nil {
		return nil, fmt.Errorf("web: queue store, pool and hub are required")
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	s := &Server{
		sessions:  opts.Sessions,
		queue:     opts.Queue,
		pool:      opts.Pool,
		hub:       opts.Hub,
		schedules: opts.Schedules,
		port:      opts.Port,
		heartbeat: opts.Heartbeat,
		log:       logger.OrNop(opts.Logger).With("component", "web"),
	}
	s.router = s.buildRouter(opts.AllowedOrigins)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown", "error", err)
		}
	}()

	s.log.Info("web server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: %w", err)
	}
	return nil
}

func (s *Server) buildRouter(origins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))
	if len(origins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		chat := api.Group("/chats/:chat")
		chat.GET("/sessions", s.listSessions)
		chat.POST("/sessions", s.createSession)
		chat.GET("/active", s.getActive)
		chat.PUT("/active", s.setActive)
		chat.GET("/bindings", s.exportBindings)
		chat.POST("/prompts", s.submitPrompt)
		chat.GET("/queue", s.listQueue)

		api.GET("/sessions/:id/history", s.sessionHistory)
		api.POST("/bindings", s.importBindings)

		api.GET("/queue/:id", s.getQueued)
		api.GET("/queue/:id/events", s.streamQueued)

		if s.schedules != nil {
			chat.GET("/schedules", s.listSchedules)
			chat.POST("/schedules", s.createSchedule)
			api.GET("/schedules/:id", s.getSchedule)
			api.POST("/schedules/:id/enable", s.enableSchedule)
			api.POST("/schedules/:id/disable", s.disableSchedule)
			api.DELETE("/schedules/:id", s.removeSchedule)
		}
	}
	return router
}
