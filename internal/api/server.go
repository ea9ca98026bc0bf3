package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/pulsedev/pulse/internal/api/middleware"
	"go.uber.org/zap"
)

var Provider = wire.NewSet(
	NewAgentHandler,
	NewServer,
)

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping() error
}

type Server struct {
	router *gin.Engine
}

func NewServer(a Agent, storage Pinger, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.ErrorHandlingMiddleware(logger))
	s.router.Use(middleware.Cors())

	handler := NewAgentHandler(a)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", handler.GetStatus)
		v1.GET("/schedule", handler.GetSchedule)
		v1.GET("/packages", handler.ListPackages)
		v1.GET("/instances", handler.ListInstances)
		v1.POST("/runs/trigger", handler.TriggerRun)
		v1.PUT("/monitor/status", handler.UpdateMonitorStatus)
		v1.PUT("/authorization", handler.UpdateAuthorization)
	}

	// 健康检查
	s.router.GET("/api/v1/health", func(c *gin.Context) {
		if storage != nil {
			if err := storage.Ping(); err != nil {
				c.JSON(503, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(200, gin.H{"status": "healthy", "time": time.Now()})
	})

	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
