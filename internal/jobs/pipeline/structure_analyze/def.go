package structure_analyze

import (
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/services"
)

// Fast-lane pipeline: classifies one entry against its thread's running
// structural issue and writes the analysis exactly once. The claim
// predicate keeps one structure job per thread in flight, so issue
// statements evolve in creation order.
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	analyzer services.StructuralAnalyzer
	entries  repos.EntryRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	analyzer services.StructuralAnalyzer,
	entries repos.EntryRepo,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", jobs.TypeStructureAnalyze),
		analyzer: analyzer,
		entries:  entries,
	}
}

func (p *Pipeline) Type() string { return jobs.TypeStructureAnalyze }
