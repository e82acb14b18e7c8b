package api

import (
	"github.com/devlin/erpmirror/internal/api/handler"
	"github.com/devlin/erpmirror/internal/api/middleware"
	"github.com/devlin/erpmirror/internal/logger"
	"github.com/devlin/erpmirror/internal/service"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds router-level settings.
type RouterConfig struct {
	Mode string
	CORS middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(orchestrator *service.Orchestrator, log *logger.Logger, cfg RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	syncHandler := handler.NewSyncHandler(orchestrator, log)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/sync", syncHandler.TriggerSync)
		v1.GET("/sync/status", syncHandler.GetStatus)
	}

	return r
}
