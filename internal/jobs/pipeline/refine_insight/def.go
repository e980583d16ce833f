package refine_insight

import (
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/services"
)

// Heavy-lane pipeline: sanitize, distill, score, then publish-or-draft,
// strictly in that order for one entry. Idempotency key is the source
// entry id.
type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	sanitizer services.Sanitizer
	distiller services.Distiller
	broker    services.SharingBroker
	entries   repos.EntryRepo
	insights  repos.InsightRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	sanitizer services.Sanitizer,
	distiller services.Distiller,
	broker services.SharingBroker,
	entries repos.EntryRepo,
	insights repos.InsightRepo,
) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", jobs.TypeRefineInsight),
		sanitizer: sanitizer,
		distiller: distiller,
		broker:    broker,
		entries:   entries,
		insights:  insights,
	}
}

func (p *Pipeline) Type() string { return jobs.TypeRefineInsight }
