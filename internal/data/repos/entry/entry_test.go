package entry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos/testutil"
	domain "github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
)

func setCreatedAt(t *testing.T, tx *gorm.DB, id uuid.UUID, at time.Time) {
	t.Helper()
	if err := tx.Model(&domain.Entry{}).Where("id = ?", id).Update("created_at", at).Error; err != nil {
		t.Fatalf("set created_at: %v", err)
	}
}

func TestListThreadIncludesRootInOrder(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEntryRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	userID := uuid.New()

	root := testutil.SeedEntry(t, ctx, tx, userID, "root")
	second := testutil.SeedThreadEntry(t, ctx, tx, userID, root.ID, "second")
	third := testutil.SeedThreadEntry(t, ctx, tx, userID, root.ID, "third")
	testutil.SeedEntry(t, ctx, tx, userID, "unrelated")

	base := time.Now().Add(-time.Hour)
	setCreatedAt(t, tx, root.ID, base)
	setCreatedAt(t, tx, second.ID, base.Add(time.Minute))
	setCreatedAt(t, tx, third.ID, base.Add(2*time.Minute))

	got, err := repo.ListThread(dbc, root.ID)
	if err != nil {
		t.Fatalf("ListThread: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	wantOrder := []uuid.UUID{root.ID, second.ID, third.ID}
	for i, e := range got {
		if e.ID != wantOrder[i] {
			t.Fatalf("position %d has %s, want %s", i, e.ID, wantOrder[i])
		}
	}
}

func TestGetOwnedScopesByUser(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEntryRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	owner := uuid.New()

	e := testutil.SeedEntry(t, ctx, tx, owner, "mine")

	got, err := repo.GetOwned(dbc, owner, e.ID)
	if err != nil {
		t.Fatalf("GetOwned: %v", err)
	}
	if got == nil || got.ID != e.ID {
		t.Fatalf("GetOwned returned %+v", got)
	}

	other, err := repo.GetOwned(dbc, uuid.New(), e.ID)
	if err != nil {
		t.Fatalf("GetOwned other user: %v", err)
	}
	if other != nil {
		t.Fatalf("other user read the entry: %+v", other)
	}
}

func TestMarkAnalyzedIsMonotonic(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEntryRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	e := testutil.SeedEntry(t, ctx, tx, uuid.New(), "some content")

	ok, err := repo.MarkAnalyzed(dbc, e.ID, string(domain.IntentKnowledge), nil, datatypes.JSON(`["go"]`))
	if err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}
	if !ok {
		t.Fatal("first MarkAnalyzed reported no rows")
	}

	again, err := repo.MarkAnalyzed(dbc, e.ID, string(domain.IntentChat), nil, nil)
	if err != nil {
		t.Fatalf("second MarkAnalyzed: %v", err)
	}
	if again {
		t.Fatal("second MarkAnalyzed flipped an already-analyzed entry")
	}

	got, err := repo.GetByID(dbc, e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.IsAnalyzed || got.Intent != string(domain.IntentKnowledge) {
		t.Fatalf("entry after re-mark: analyzed=%v intent=%q", got.IsAnalyzed, got.Intent)
	}
}

func TestSetStructuralAnalysisFlipsOnce(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEntryRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	e := testutil.SeedEntry(t, ctx, tx, uuid.New(), "structural target")

	ok, err := repo.SetStructuralAnalysis(dbc, e.ID, datatypes.JSON(`{"nodes":[]}`))
	if err != nil {
		t.Fatalf("SetStructuralAnalysis: %v", err)
	}
	if !ok {
		t.Fatal("first write reported no rows")
	}

	again, err := repo.SetStructuralAnalysis(dbc, e.ID, datatypes.JSON(`{"nodes":["x"]}`))
	if err != nil {
		t.Fatalf("second SetStructuralAnalysis: %v", err)
	}
	if again {
		t.Fatal("structure flag reverted to writable")
	}
}

func TestListUnprocessedReturnsAnalyzedOnly(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEntryRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	userID := uuid.New()

	analyzed := testutil.SeedEntry(t, ctx, tx, userID, "analyzed, pending insight")
	raw := testutil.SeedEntry(t, ctx, tx, userID, "not analyzed yet")
	done := testutil.SeedEntry(t, ctx, tx, userID, "fully processed")

	if _, err := repo.MarkAnalyzed(dbc, analyzed.ID, string(domain.IntentChat), nil, nil); err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}
	if _, err := repo.MarkAnalyzed(dbc, done.ID, string(domain.IntentChat), nil, nil); err != nil {
		t.Fatalf("MarkAnalyzed: %v", err)
	}
	if _, err := repo.MarkProcessedForInsight(dbc, done.ID); err != nil {
		t.Fatalf("MarkProcessedForInsight: %v", err)
	}

	got, err := repo.ListUnprocessed(dbc, 10)
	if err != nil {
		t.Fatalf("ListUnprocessed: %v", err)
	}
	ids := map[uuid.UUID]bool{}
	for _, e := range got {
		ids[e.ID] = true
	}
	if !ids[analyzed.ID] {
		t.Fatal("analyzed-but-unprocessed entry missing")
	}
	if ids[raw.ID] || ids[done.ID] {
		t.Fatalf("unexpected entries in result: raw=%v done=%v", ids[raw.ID], ids[done.ID])
	}
}

func TestLatestStructural(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEntryRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	userID := uuid.New()

	root := testutil.SeedEntry(t, ctx, tx, userID, "root")
	follow := testutil.SeedThreadEntry(t, ctx, tx, userID, root.ID, "follow-up")

	base := time.Now().Add(-time.Hour)
	setCreatedAt(t, tx, root.ID, base)
	setCreatedAt(t, tx, follow.ID, base.Add(time.Minute))

	got, err := repo.LatestStructural(dbc, root.ID)
	if err != nil {
		t.Fatalf("LatestStructural: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil before any analysis, got %+v", got)
	}

	if _, err := repo.SetStructuralAnalysis(dbc, root.ID, datatypes.JSON(`{"v":1}`)); err != nil {
		t.Fatalf("SetStructuralAnalysis root: %v", err)
	}
	if _, err := repo.SetStructuralAnalysis(dbc, follow.ID, datatypes.JSON(`{"v":2}`)); err != nil {
		t.Fatalf("SetStructuralAnalysis follow: %v", err)
	}

	got, err = repo.LatestStructural(dbc, root.ID)
	if err != nil {
		t.Fatalf("LatestStructural: %v", err)
	}
	if got == nil || got.ID != follow.ID {
		t.Fatalf("latest structural is %+v, want follow-up entry", got)
	}
}
