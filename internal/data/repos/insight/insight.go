package insight

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type ListFilter struct {
	Statuses []string
	Topic    string
	Tag      string
	Search   string
	Limit    int
	Offset   int
}

type InsightRepo interface {
	// CreateIfAbsent inserts the card unless one already exists for the
	// same source entry; returns false on conflict. This is the pipeline's
	// idempotency guard.
	CreateIfAbsent(dbc dbctx.Context, card *insight.Card) (bool, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*insight.Card, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*insight.Card, error)
	GetBySourceEntry(dbc dbctx.Context, entryID uuid.UUID) (*insight.Card, error)
	List(dbc dbctx.Context, filter ListFilter) ([]*insight.Card, error)
	ListPendingByAuthor(dbc dbctx.Context, authorID uuid.UUID) ([]*insight.Card, error)

	// UpdateStatusIfNotTerminal moves the card to status unless it is
	// already approved or rejected; returns false when terminal.
	UpdateStatusIfNotTerminal(dbc dbctx.Context, id uuid.UUID, status string) (bool, error)

	UpdateScore(dbc dbctx.Context, id uuid.UUID, score int, status string) error
	IncrementViewCount(dbc dbctx.Context, id uuid.UUID) error
	IncrementThanks(dbc dbctx.Context, id uuid.UUID) (int, error)

	// FindApprovedByQueryHash backs the research cache: exact match on the
	// normalized-query hash of a previously published card.
	FindApprovedByQueryHash(dbc dbctx.Context, queryHash string) (*insight.Card, error)

	// ListStaleDrafts returns draft cards untouched since before, for
	// TTL-driven re-scoring.
	ListStaleDrafts(dbc dbctx.Context, before time.Time, limit int) ([]*insight.Card, error)
}

type insightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInsightRepo(db *gorm.DB, baseLog *logger.Logger) InsightRepo {
	return &insightRepo{
		db:  db,
		log: baseLog.With("repo", "InsightRepo"),
	}
}

func (r *insightRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *insightRepo) CreateIfAbsent(dbc dbctx.Context, card *insight.Card) (bool, error) {
	if card == nil {
		return false, nil
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_entry_id"}},
			DoNothing: true,
		}).
		Create(card)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *insightRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*insight.Card, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var card insight.Card
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&card).Error
	if err != nil {
		return nil, err
	}
	if card.ID == uuid.Nil {
		return nil, nil
	}
	return &card, nil
}

func (r *insightRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*insight.Card, error) {
	var out []*insight.Card
	if len(ids) == 0 {
		return out, nil
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *insightRepo) GetBySourceEntry(dbc dbctx.Context, entryID uuid.UUID) (*insight.Card, error) {
	if entryID == uuid.Nil {
		return nil, nil
	}
	var card insight.Card
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("source_entry_id = ?", entryID).
		Limit(1).
		Find(&card).Error
	if err != nil {
		return nil, err
	}
	if card.ID == uuid.Nil {
		return nil, nil
	}
	return &card, nil
}

func (r *insightRepo) List(dbc dbctx.Context, filter ListFilter) ([]*insight.Card, error) {
	q := r.conn(dbc).WithContext(dbc.Ctx).Model(&insight.Card{})
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if filter.Topic != "" {
		q = q.Where("topics::text LIKE ?", "%"+filter.Topic+"%")
	}
	if filter.Tag != "" {
		q = q.Where("tags::text LIKE ?", "%"+filter.Tag+"%")
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("title LIKE ? OR summary LIKE ? OR problem LIKE ? OR solution LIKE ?", like, like, like, like)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*insight.Card
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *insightRepo) ListPendingByAuthor(dbc dbctx.Context, authorID uuid.UUID) ([]*insight.Card, error) {
	var out []*insight.Card
	if authorID == uuid.Nil {
		return out, nil
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("author_id = ? AND status = ?", authorID, insight.StatusPendingApproval).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *insightRepo) UpdateStatusIfNotTerminal(dbc dbctx.Context, id uuid.UUID, status string) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&insight.Card{}).
		Where("id = ? AND status NOT IN ?", id, []string{insight.StatusApproved, insight.StatusRejected}).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *insightRepo) UpdateScore(dbc dbctx.Context, id uuid.UUID, score int, status string) error {
	if id == uuid.Nil {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&insight.Card{}).
		Where("id = ? AND status NOT IN ?", id, []string{insight.StatusApproved, insight.StatusRejected}).
		Updates(map[string]interface{}{
			"sharing_score": score,
			"status":        status,
			"updated_at":    time.Now(),
		}).Error
}

func (r *insightRepo) IncrementViewCount(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&insight.Card{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}

func (r *insightRepo) IncrementThanks(dbc dbctx.Context, id uuid.UUID) (int, error) {
	if id == uuid.Nil {
		return 0, nil
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&insight.Card{}).
		Where("id = ?", id).
		UpdateColumn("thanks_count", gorm.Expr("thanks_count + 1")).Error
	if err != nil {
		return 0, err
	}
	card, err := r.GetByID(dbc, id)
	if err != nil || card == nil {
		return 0, err
	}
	return card.ThanksCount, nil
}

func (r *insightRepo) FindApprovedByQueryHash(dbc dbctx.Context, queryHash string) (*insight.Card, error) {
	if queryHash == "" {
		return nil, nil
	}
	var card insight.Card
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("query_hash = ? AND status = ?", queryHash, insight.StatusApproved).
		Order("created_at DESC").
		Limit(1).
		Find(&card).Error
	if err != nil {
		return nil, err
	}
	if card.ID == uuid.Nil {
		return nil, nil
	}
	return &card, nil
}

func (r *insightRepo) ListStaleDrafts(dbc dbctx.Context, before time.Time, limit int) ([]*insight.Card, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*insight.Card
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("status = ? AND updated_at < ?", insight.StatusDraft, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
