package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/dx-junkyard/plura/internal/http/handlers"
	httpMW "github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware

	ConversationHandler   *httpH.ConversationHandler
	LogHandler            *httpH.LogHandler
	TaskHandler           *httpH.TaskHandler
	InsightHandler        *httpH.InsightHandler
	RecommendationHandler *httpH.RecommendationHandler
	StateHandler          *httpH.StateHandler
	AdminHandler          *httpH.AdminHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS())
	r.Use(otelgin.Middleware("plura-api"))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Conversation
		if cfg.ConversationHandler != nil {
			api.POST("/conversation/message", cfg.ConversationHandler.Message)
		}

		// Logs
		if cfg.LogHandler != nil {
			api.POST("/logs", cfg.LogHandler.Create)
			api.POST("/logs/voice", cfg.LogHandler.CreateVoice)
			api.GET("/logs", cfg.LogHandler.List)
			api.GET("/logs/:id", cfg.LogHandler.Get)
			api.DELETE("/logs/:id", cfg.LogHandler.Delete)
		}

		// Background tasks (polling)
		if cfg.TaskHandler != nil {
			api.GET("/tasks/:id", cfg.TaskHandler.Get)
		}

		// Insights
		if cfg.InsightHandler != nil {
			api.GET("/insights", cfg.InsightHandler.List)
			api.GET("/insights/pending", cfg.InsightHandler.ListPending)
			api.GET("/insights/:id", cfg.InsightHandler.Get)
			api.POST("/insights/:id/decision", cfg.InsightHandler.Decide)
			api.POST("/insights/:id/thanks", cfg.InsightHandler.Thanks)
		}

		// Recommendations
		if cfg.RecommendationHandler != nil {
			api.POST("/recommendations", cfg.RecommendationHandler.Match)
		}

		// User state
		if cfg.StateHandler != nil {
			api.GET("/users/me/states", cfg.StateHandler.ListMine)
		}

		// Admin
		if cfg.AdminHandler != nil {
			api.POST("/admin/reprocess", cfg.AdminHandler.Reprocess)
		}
	}

	return r
}
