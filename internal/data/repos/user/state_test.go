package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos/testutil"
	domain "github.com/dx-junkyard/plura/internal/domain/user"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
)

func seedState(t *testing.T, tx *gorm.DB, userID uuid.UUID, stateType, value string, at time.Time) *domain.State {
	t.Helper()
	s := &domain.State{
		ID:        uuid.New(),
		UserID:    userID,
		StateType: stateType,
		Value:     value,
	}
	if err := tx.Create(s).Error; err != nil {
		t.Fatalf("seed state: %v", err)
	}
	if err := tx.Model(&domain.State{}).Where("id = ?", s.ID).Update("created_at", at).Error; err != nil {
		t.Fatalf("set created_at: %v", err)
	}
	return s
}

func TestListRecentByUser(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewStateRepo(db, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	userID := uuid.New()
	base := time.Now().Add(-time.Hour)

	oldest := seedState(t, tx, userID, "fatigue", "sleepy", base)
	newest := seedState(t, tx, userID, "mood", "upbeat", base.Add(10*time.Minute))
	seedState(t, tx, uuid.New(), "fatigue", "fine", base)

	got, err := repo.ListRecentByUser(dbc, userID, 20)
	if err != nil {
		t.Fatalf("ListRecentByUser: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d states, want 2", len(got))
	}
	if got[0].ID != newest.ID || got[1].ID != oldest.ID {
		t.Fatalf("order wrong: got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestListRecentByUserHonorsLimit(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewStateRepo(db, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	userID := uuid.New()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		seedState(t, tx, userID, "fatigue", "sleepy", base.Add(time.Duration(i)*time.Minute))
	}

	got, err := repo.ListRecentByUser(dbc, userID, 3)
	if err != nil {
		t.Fatalf("ListRecentByUser: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d states, want 3", len(got))
	}
}

func TestListRecentByUserNilUser(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewStateRepo(db, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	got, err := repo.ListRecentByUser(dbc, uuid.Nil, 20)
	if err != nil {
		t.Fatalf("ListRecentByUser: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("nil user returned %d states", len(got))
	}
}
