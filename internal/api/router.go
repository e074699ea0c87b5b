package api

import (
	"github.com/gin-gonic/gin"
	"github.com/pawel/toolgate/internal/api/handler"
	"github.com/pawel/toolgate/internal/api/middleware"
	"github.com/pawel/toolgate/internal/chat"
	"github.com/pawel/toolgate/internal/config"
	"github.com/pawel/toolgate/internal/job"
	"github.com/pawel/toolgate/internal/shortener"
	"github.com/pawel/toolgate/internal/worklog"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	admission *job.Admission,
	status *job.StatusReader,
	worklogClient *worklog.Client,
	chatService *chat.Service,
	shortenerService *shortener.Service,
	cfg *config.Config,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
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
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobsHandler := handler.NewJobsHandler(admission, status)
	worklogHandler := handler.NewWorklogHandler(worklogClient)
	chatHandler := handler.NewChatHandler(chatService)
	linksHandler := handler.NewLinksHandler(shortenerService)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Short link redirect
	r.GET("/r/:code", linksHandler.Redirect)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Bulk timesheet jobs
		v1.POST("/jobs", jobsHandler.Submit)
		v1.GET("/jobs/status", jobsHandler.Status)

		// Single worklog proxy
		v1.POST("/worklogs", worklogHandler.Submit)

		// Chat completion proxy
		v1.POST("/chat/completions", chatHandler.Complete)

		// Short links
		v1.POST("/links", linksHandler.Create)
		v1.GET("/links/:code/stats", linksHandler.Stats)
	}

	return r
}
