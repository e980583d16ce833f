package deep_research

import (
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/services"
)

// Heavy-lane pipeline: runs a confirmed research plan, writes the report
// onto the pre-created result entry, and publishes the outcome as an
// approved card keyed by the query hash for future cache hits.
type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	research   services.ResearchService
	insightSvc services.InsightService
	entries    repos.EntryRepo
	insights   repos.InsightRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	research services.ResearchService,
	insightSvc services.InsightService,
	entries repos.EntryRepo,
	insights repos.InsightRepo,
) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("job", jobs.TypeDeepResearch),
		research:   research,
		insightSvc: insightSvc,
		entries:    entries,
		insights:   insights,
	}
}

func (p *Pipeline) Type() string { return jobs.TypeDeepResearch }
