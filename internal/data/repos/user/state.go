package user

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/domain/user"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type StateRepo interface {
	Create(dbc dbctx.Context, s *user.State) error
	ListRecentByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*user.State, error)
}

type stateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStateRepo(db *gorm.DB, baseLog *logger.Logger) StateRepo {
	return &stateRepo{
		db:  db,
		log: baseLog.With("repo", "StateRepo"),
	}
}

func (r *stateRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *stateRepo) Create(dbc dbctx.Context, s *user.State) error {
	return r.conn(dbc).WithContext(dbc.Ctx).Create(s).Error
}

func (r *stateRepo) ListRecentByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*user.State, error) {
	var out []*user.State
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
