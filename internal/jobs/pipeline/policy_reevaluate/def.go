package policy_reevaluate

import (
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/services"
)

// Heavy-lane periodic pipeline: re-scores stale draft cards and promotes
// those that now cross the sharing threshold into the approval queue.
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	broker   services.SharingBroker
	insights repos.InsightRepo
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	broker services.SharingBroker,
	insights repos.InsightRepo,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", jobs.TypePolicyReevaluate),
		broker:   broker,
		insights: insights,
	}
}

func (p *Pipeline) Type() string { return jobs.TypePolicyReevaluate }
