package entry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type ListFilter struct {
	ThreadID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type EntryRepo interface {
	Create(dbc dbctx.Context, e *entry.Entry) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*entry.Entry, error)
	GetOwned(dbc dbctx.Context, userID, id uuid.UUID) (*entry.Entry, error)

	// ListThread returns the thread rooted at threadID in creation order:
	// the root entry itself plus every entry pointing at it.
	ListThread(dbc dbctx.Context, threadID uuid.UUID) ([]*entry.Entry, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, filter ListFilter) ([]*entry.Entry, error)

	// LatestStructural returns the most recently structure-analyzed entry
	// of the thread, or nil when none has been analyzed yet.
	LatestStructural(dbc dbctx.Context, threadID uuid.UUID) (*entry.Entry, error)

	// ListUnprocessed returns analyzed entries whose insight processing has
	// not completed, oldest first.
	ListUnprocessed(dbc dbctx.Context, limit int) ([]*entry.Entry, error)

	MarkAnalyzed(dbc dbctx.Context, id uuid.UUID, intent string, emotions, topics datatypes.JSON) (bool, error)

	// SetStructuralAnalysis writes the analysis and flips the flag; returns
	// false when the entry was already structure-analyzed. The flag never
	// reverts.
	SetStructuralAnalysis(dbc dbctx.Context, id uuid.UUID, analysis datatypes.JSON) (bool, error)

	// MarkStructureSkipped satisfies the flag without a value, for entries
	// whose intent exempts them from structural analysis.
	MarkStructureSkipped(dbc dbctx.Context, id uuid.UUID) error

	MarkProcessedForInsight(dbc dbctx.Context, id uuid.UUID) (bool, error)
	SetAssistantReply(dbc dbctx.Context, id uuid.UUID, reply string) error
	DeleteThread(dbc dbctx.Context, userID, threadID uuid.UUID) (int64, error)
}

type entryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntryRepo(db *gorm.DB, baseLog *logger.Logger) EntryRepo {
	return &entryRepo{
		db:  db,
		log: baseLog.With("repo", "EntryRepo"),
	}
}

func (r *entryRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *entryRepo) Create(dbc dbctx.Context, e *entry.Entry) error {
	return r.conn(dbc).WithContext(dbc.Ctx).Create(e).Error
}

func (r *entryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*entry.Entry, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var e entry.Entry
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *entryRepo) GetOwned(dbc dbctx.Context, userID, id uuid.UUID) (*entry.Entry, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var e entry.Entry
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Limit(1).
		Find(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *entryRepo) ListThread(dbc dbctx.Context, threadID uuid.UUID) ([]*entry.Entry, error) {
	var out []*entry.Entry
	if threadID == uuid.Nil {
		return out, nil
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ? OR thread_id = ?", threadID, threadID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entryRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, filter ListFilter) ([]*entry.Entry, error) {
	var out []*entry.Entry
	if userID == uuid.Nil {
		return out, nil
	}
	q := r.conn(dbc).WithContext(dbc.Ctx).Where("user_id = ?", userID)
	if filter.ThreadID != nil && *filter.ThreadID != uuid.Nil {
		q = q.Where("id = ? OR thread_id = ?", *filter.ThreadID, *filter.ThreadID)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entryRepo) LatestStructural(dbc dbctx.Context, threadID uuid.UUID) (*entry.Entry, error) {
	if threadID == uuid.Nil {
		return nil, nil
	}
	var e entry.Entry
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("(id = ? OR thread_id = ?) AND is_structure_analyzed = ? AND structural_analysis IS NOT NULL", threadID, threadID, true).
		Order("created_at DESC").
		Limit(1).
		Find(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == uuid.Nil {
		return nil, nil
	}
	return &e, nil
}

func (r *entryRepo) ListUnprocessed(dbc dbctx.Context, limit int) ([]*entry.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*entry.Entry
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("is_analyzed = ? AND is_processed_for_insight = ?", true, false).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entryRepo) MarkAnalyzed(dbc dbctx.Context, id uuid.UUID, intent string, emotions, topics datatypes.JSON) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	updates := map[string]interface{}{
		"is_analyzed": true,
		"updated_at":  time.Now(),
	}
	if intent != "" {
		updates["intent"] = intent
	}
	if len(emotions) > 0 {
		updates["emotions"] = emotions
	}
	if len(topics) > 0 {
		updates["topics"] = topics
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&entry.Entry{}).
		Where("id = ? AND is_analyzed = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *entryRepo) SetStructuralAnalysis(dbc dbctx.Context, id uuid.UUID, analysis datatypes.JSON) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&entry.Entry{}).
		Where("id = ? AND is_structure_analyzed = ?", id, false).
		Updates(map[string]interface{}{
			"structural_analysis":   analysis,
			"is_structure_analyzed": true,
			"updated_at":            time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *entryRepo) MarkStructureSkipped(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&entry.Entry{}).
		Where("id = ? AND is_structure_analyzed = ?", id, false).
		Updates(map[string]interface{}{
			"is_structure_analyzed": true,
			"updated_at":            time.Now(),
		}).Error
}

func (r *entryRepo) MarkProcessedForInsight(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&entry.Entry{}).
		Where("id = ? AND is_processed_for_insight = ?", id, false).
		Updates(map[string]interface{}{
			"is_processed_for_insight": true,
			"updated_at":               time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *entryRepo) SetAssistantReply(dbc dbctx.Context, id uuid.UUID, reply string) error {
	if id == uuid.Nil {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&entry.Entry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"assistant_reply": reply,
			"updated_at":      time.Now(),
		}).Error
}

func (r *entryRepo) DeleteThread(dbc dbctx.Context, userID, threadID uuid.UUID) (int64, error) {
	if userID == uuid.Nil || threadID == uuid.Nil {
		return 0, nil
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND (id = ? OR thread_id = ?)", userID, threadID, threadID).
		Delete(&entry.Entry{})
	return res.RowsAffected, res.Error
}
