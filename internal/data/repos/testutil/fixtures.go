package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
)

func SeedEntry(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, content string) *entry.Entry {
	tb.Helper()
	e := &entry.Entry{
		ID:          uuid.New(),
		UserID:      userID,
		Content:     content,
		ContentType: entry.ContentTypeText,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed entry: %v", err)
	}
	return e
}

func SeedThreadEntry(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, threadID uuid.UUID, content string) *entry.Entry {
	tb.Helper()
	e := &entry.Entry{
		ID:          uuid.New(),
		UserID:      userID,
		ThreadID:    &threadID,
		Content:     content,
		ContentType: entry.ContentTypeText,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed thread entry: %v", err)
	}
	return e
}

func SeedCard(tb testing.TB, ctx context.Context, tx *gorm.DB, authorID, sourceEntryID uuid.UUID, status string) *insight.Card {
	tb.Helper()
	c := &insight.Card{
		ID:            uuid.New(),
		AuthorID:      authorID,
		SourceEntryID: sourceEntryID,
		Title:         "card",
		Summary:       "summary",
		Status:        status,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed card: %v", err)
	}
	return c
}

func SeedJobRun(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, jobType, status string) *jobs.JobRun {
	tb.Helper()
	run := &jobs.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		JobType:     jobType,
		Lane:        jobs.LaneForType(jobType),
		Status:      status,
	}
	if err := tx.WithContext(ctx).Create(run).Error; err != nil {
		tb.Fatalf("seed job run: %v", err)
	}
	return run
}
