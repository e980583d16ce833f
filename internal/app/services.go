package app

import (
	"gorm.io/gorm"

	redisclient "github.com/dx-junkyard/plura/internal/clients/redis"
	"github.com/dx-junkyard/plura/internal/jobs/pipeline/context_analyze"
	"github.com/dx-junkyard/plura/internal/jobs/pipeline/deep_research"
	"github.com/dx-junkyard/plura/internal/jobs/pipeline/policy_reevaluate"
	"github.com/dx-junkyard/plura/internal/jobs/pipeline/refine_insight"
	"github.com/dx-junkyard/plura/internal/jobs/pipeline/structure_analyze"
	"github.com/dx-junkyard/plura/internal/jobs/runtime"
	"github.com/dx-junkyard/plura/internal/jobs/worker"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
	"github.com/dx-junkyard/plura/internal/platform/qdrant"
	"github.com/dx-junkyard/plura/internal/services"
)

type Services struct {
	AI      openai.Client
	Vectors qdrant.Store
	Cache   redisclient.ResearchCache

	Intents       services.IntentRouter
	Situations    services.SituationRouter
	Analyzer      services.ContextAnalyzer
	Structural    services.StructuralAnalyzer
	Sanitizer     services.Sanitizer
	Distiller     services.Distiller
	Broker        services.SharingBroker
	Matcher       services.Matcher
	Research      services.ResearchService
	Insights      services.InsightService
	Conversation  services.ConversationService
	Transcription services.TranscriptionService

	Registry  *runtime.Registry
	JobWorker *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, reposet Repos) (Services, error) {
	ai, err := openai.NewClient(log)
	if err != nil {
		return Services{}, err
	}

	vectors, err := wireVectorStore(log)
	if err != nil {
		return Services{}, err
	}

	cache, err := redisclient.NewResearchCache(log)
	if err != nil {
		// Research still works through the card-table fallback.
		log.Warn("research cache unavailable, continuing without redis", "error", err)
		cache = nil
	}

	intents := services.NewIntentRouter(log, ai)
	situations := services.NewSituationRouter(log, ai)
	analyzer := services.NewContextAnalyzer(log, ai)
	structural := services.NewStructuralAnalyzer(log, ai)
	sanitizer := services.NewSanitizer(log, ai)
	distiller := services.NewDistiller(log, ai)
	broker := services.NewSharingBroker(log, ai, sanitizer)
	matcher := services.NewMatcher(log, ai, vectors, reposet.Insights)
	research := services.NewResearchService(log, ai, sanitizer, cache, reposet.Insights)
	insightSvc := services.NewInsightService(log, ai, vectors, reposet.Insights, research)
	conversation := services.NewConversationService(log, ai, intents, situations, research, reposet.Entries, reposet.States, reposet.JobRuns)

	transcription, err := services.NewTranscriptionService(log)
	if err != nil {
		log.Warn("transcription unavailable, voice logs disabled", "error", err)
		transcription = nil
	}

	registry := runtime.NewRegistry()
	pipelines := []runtime.Handler{
		context_analyze.New(db, log, analyzer, reposet.Entries, reposet.JobRuns),
		structure_analyze.New(db, log, structural, reposet.Entries),
		refine_insight.New(db, log, sanitizer, distiller, broker, reposet.Entries, reposet.Insights),
		deep_research.New(db, log, research, insightSvc, reposet.Entries, reposet.Insights),
		policy_reevaluate.New(db, log, broker, reposet.Insights),
	}
	for _, p := range pipelines {
		if err := registry.Register(p); err != nil {
			return Services{}, err
		}
	}

	return Services{
		AI:            ai,
		Vectors:       vectors,
		Cache:         cache,
		Intents:       intents,
		Situations:    situations,
		Analyzer:      analyzer,
		Structural:    structural,
		Sanitizer:     sanitizer,
		Distiller:     distiller,
		Broker:        broker,
		Matcher:       matcher,
		Research:      research,
		Insights:      insightSvc,
		Conversation:  conversation,
		Transcription: transcription,
		Registry:      registry,
		JobWorker:     worker.NewWorker(db, log, reposet.JobRuns, registry),
	}, nil
}

func wireVectorStore(log *logger.Logger) (qdrant.Store, error) {
	cfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return qdrant.NewVectorStore(log, cfg)
}
