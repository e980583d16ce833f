package repos

import (
	"gorm.io/gorm"

	entryrepo "github.com/dx-junkyard/plura/internal/data/repos/entry"
	insightrepo "github.com/dx-junkyard/plura/internal/data/repos/insight"
	jobsrepo "github.com/dx-junkyard/plura/internal/data/repos/jobs"
	userrepo "github.com/dx-junkyard/plura/internal/data/repos/user"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type EntryRepo = entryrepo.EntryRepo
type EntryListFilter = entryrepo.ListFilter

type InsightRepo = insightrepo.InsightRepo
type InsightListFilter = insightrepo.ListFilter

type UserStateRepo = userrepo.StateRepo

type JobRunRepo = jobsrepo.JobRunRepo

func NewEntryRepo(db *gorm.DB, baseLog *logger.Logger) EntryRepo {
	return entryrepo.NewEntryRepo(db, baseLog)
}

func NewInsightRepo(db *gorm.DB, baseLog *logger.Logger) InsightRepo {
	return insightrepo.NewInsightRepo(db, baseLog)
}

func NewUserStateRepo(db *gorm.DB, baseLog *logger.Logger) UserStateRepo {
	return userrepo.NewStateRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobsrepo.NewJobRunRepo(db, baseLog)
}
