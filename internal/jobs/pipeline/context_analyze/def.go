package context_analyze

import (
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/services"
)

// Fast-lane pipeline: extracts emotions and topics for one entry, flips
// is_analyzed, and chains the structural analysis job for entries that
// are not skip-eligible.
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	analyzer services.ContextAnalyzer
	entries  repos.EntryRepo
	jobRuns  repos.JobRunRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	analyzer services.ContextAnalyzer,
	entries repos.EntryRepo,
	jobRuns repos.JobRunRepo,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", jobs.TypeContextAnalyze),
		analyzer: analyzer,
		entries:  entries,
		jobRuns:  jobRuns,
	}
}

func (p *Pipeline) Type() string { return jobs.TypeContextAnalyze }
