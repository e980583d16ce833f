package app

import (
	"github.com/gin-gonic/gin"

	apihttp "github.com/dx-junkyard/plura/internal/http"
	"github.com/dx-junkyard/plura/internal/http/handlers"
	"github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type Handlers struct {
	Health          *handlers.HealthHandler
	Conversation    *handlers.ConversationHandler
	Logs            *handlers.LogHandler
	Tasks           *handlers.TaskHandler
	Insights        *handlers.InsightHandler
	Recommendations *handlers.RecommendationHandler
	States          *handlers.StateHandler
	Admin           *handlers.AdminHandler
}

func wireHandlers(log *logger.Logger, reposet Repos, serviceset Services) Handlers {
	return Handlers{
		Health:          handlers.NewHealthHandler(),
		Conversation:    handlers.NewConversationHandler(serviceset.Conversation),
		Logs:            handlers.NewLogHandler(reposet.Entries, serviceset.Conversation, serviceset.Transcription),
		Tasks:           handlers.NewTaskHandler(reposet.JobRuns),
		Insights:        handlers.NewInsightHandler(serviceset.Insights),
		Recommendations: handlers.NewRecommendationHandler(serviceset.Matcher),
		States:          handlers.NewStateHandler(reposet.States),
		Admin:           handlers.NewAdminHandler(log, reposet.Entries, reposet.JobRuns),
	}
}

func wireRouter(log *logger.Logger, handlerset Handlers) *gin.Engine {
	return apihttp.NewRouter(apihttp.RouterConfig{
		Log:            log,
		AuthMiddleware: middleware.NewAuthMiddleware(log),

		ConversationHandler:   handlerset.Conversation,
		LogHandler:            handlerset.Logs,
		TaskHandler:           handlerset.Tasks,
		InsightHandler:        handlerset.Insights,
		RecommendationHandler: handlerset.Recommendations,
		StateHandler:          handlerset.States,
		AdminHandler:          handlerset.Admin,

		HealthHandler: handlerset.Health,
	})
}
