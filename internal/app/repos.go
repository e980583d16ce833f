package app

import (
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type Repos struct {
	Entries  repos.EntryRepo
	Insights repos.InsightRepo
	States   repos.UserStateRepo
	JobRuns  repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Entries:  repos.NewEntryRepo(db, log),
		Insights: repos.NewInsightRepo(db, log),
		States:   repos.NewUserStateRepo(db, log),
		JobRuns:  repos.NewJobRunRepo(db, log),
	}
}
