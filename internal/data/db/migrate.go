package db

import (
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/domain/user"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Raw conversation log
		&entry.Entry{},

		// Shared knowledge
		&insight.Card{},

		// Per-user state reports
		&user.State{},

		// Background work queue
		&jobs.JobRun{},
		&jobs.JobRunEvent{},
	)
}
