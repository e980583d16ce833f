package insight

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/data/repos/testutil"
	domain "github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
)

func TestCreateIfAbsentIsIdempotentPerSourceEntry(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInsightRepo(db, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	author := uuid.New()
	sourceID := uuid.New()

	first := &domain.Card{AuthorID: author, SourceEntryID: sourceID, Title: "first", Status: domain.StatusDraft}
	inserted, err := repo.CreateIfAbsent(dbc, first)
	if err != nil {
		t.Fatalf("CreateIfAbsent: %v", err)
	}
	if !inserted {
		t.Fatal("first insert reported conflict")
	}

	dup := &domain.Card{AuthorID: author, SourceEntryID: sourceID, Title: "duplicate", Status: domain.StatusDraft}
	inserted, err = repo.CreateIfAbsent(dbc, dup)
	if err != nil {
		t.Fatalf("CreateIfAbsent duplicate: %v", err)
	}
	if inserted {
		t.Fatal("duplicate source entry produced a second card")
	}

	got, err := repo.GetBySourceEntry(dbc, sourceID)
	if err != nil {
		t.Fatalf("GetBySourceEntry: %v", err)
	}
	if got == nil || got.Title != "first" {
		t.Fatalf("card after duplicate insert: %+v", got)
	}
}

func TestUpdateStatusIfNotTerminal(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInsightRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	card := testutil.SeedCard(t, ctx, tx, uuid.New(), uuid.New(), domain.StatusPendingApproval)

	ok, err := repo.UpdateStatusIfNotTerminal(dbc, card.ID, domain.StatusApproved)
	if err != nil {
		t.Fatalf("UpdateStatusIfNotTerminal: %v", err)
	}
	if !ok {
		t.Fatal("pending card rejected a status update")
	}

	// Approved is terminal: no transition out.
	ok, err = repo.UpdateStatusIfNotTerminal(dbc, card.ID, domain.StatusRejected)
	if err != nil {
		t.Fatalf("UpdateStatusIfNotTerminal terminal: %v", err)
	}
	if ok {
		t.Fatal("approved card left its terminal status")
	}

	got, err := repo.GetByID(dbc, card.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("Status=%s, want approved", got.Status)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInsightRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	author := uuid.New()

	approved := testutil.SeedCard(t, ctx, tx, author, uuid.New(), domain.StatusApproved)
	draft := testutil.SeedCard(t, ctx, tx, author, uuid.New(), domain.StatusDraft)

	got, err := repo.List(dbc, ListFilter{Statuses: []string{domain.StatusApproved}, Limit: 50})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	seen := map[uuid.UUID]bool{}
	for _, c := range got {
		if c.Status != domain.StatusApproved {
			t.Fatalf("non-approved card %s in approved listing", c.ID)
		}
		seen[c.ID] = true
	}
	if !seen[approved.ID] {
		t.Fatal("approved card missing from listing")
	}
	if seen[draft.ID] {
		t.Fatal("draft card leaked into approved listing")
	}
}

func TestListPendingByAuthor(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInsightRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	author := uuid.New()

	mine := testutil.SeedCard(t, ctx, tx, author, uuid.New(), domain.StatusPendingApproval)
	testutil.SeedCard(t, ctx, tx, author, uuid.New(), domain.StatusDraft)
	testutil.SeedCard(t, ctx, tx, uuid.New(), uuid.New(), domain.StatusPendingApproval)

	got, err := repo.ListPendingByAuthor(dbc, author)
	if err != nil {
		t.Fatalf("ListPendingByAuthor: %v", err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		t.Fatalf("got %d cards, want only the author's pending card", len(got))
	}
}

func TestIncrementThanksReturnsNewCount(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInsightRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	card := testutil.SeedCard(t, ctx, tx, uuid.New(), uuid.New(), domain.StatusApproved)

	n, err := repo.IncrementThanks(dbc, card.ID)
	if err != nil {
		t.Fatalf("IncrementThanks: %v", err)
	}
	if n != 1 {
		t.Fatalf("thanks=%d, want 1", n)
	}
	n, err = repo.IncrementThanks(dbc, card.ID)
	if err != nil {
		t.Fatalf("IncrementThanks again: %v", err)
	}
	if n != 2 {
		t.Fatalf("thanks=%d, want 2", n)
	}
}

func TestFindApprovedByQueryHash(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInsightRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	hash := uuid.NewString()

	draft := testutil.SeedCard(t, ctx, tx, uuid.New(), uuid.New(), domain.StatusDraft)
	if err := tx.Model(&domain.Card{}).Where("id = ?", draft.ID).Update("query_hash", hash).Error; err != nil {
		t.Fatalf("set draft hash: %v", err)
	}

	got, err := repo.FindApprovedByQueryHash(dbc, hash)
	if err != nil {
		t.Fatalf("FindApprovedByQueryHash: %v", err)
	}
	if got != nil {
		t.Fatalf("draft card served as cache hit: %+v", got)
	}

	approved := testutil.SeedCard(t, ctx, tx, uuid.New(), uuid.New(), domain.StatusApproved)
	if err := tx.Model(&domain.Card{}).Where("id = ?", approved.ID).Update("query_hash", hash).Error; err != nil {
		t.Fatalf("set approved hash: %v", err)
	}

	got, err = repo.FindApprovedByQueryHash(dbc, hash)
	if err != nil {
		t.Fatalf("FindApprovedByQueryHash approved: %v", err)
	}
	if got == nil || got.ID != approved.ID {
		t.Fatalf("cache lookup returned %+v, want approved card", got)
	}
}

func TestListStaleDrafts(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInsightRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	stale := testutil.SeedCard(t, ctx, tx, uuid.New(), uuid.New(), domain.StatusDraft)
	fresh := testutil.SeedCard(t, ctx, tx, uuid.New(), uuid.New(), domain.StatusDraft)

	old := time.Now().Add(-48 * time.Hour)
	if err := tx.Model(&domain.Card{}).Where("id = ?", stale.ID).Update("updated_at", old).Error; err != nil {
		t.Fatalf("age draft: %v", err)
	}

	got, err := repo.ListStaleDrafts(dbc, time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListStaleDrafts: %v", err)
	}
	ids := map[uuid.UUID]bool{}
	for _, c := range got {
		ids[c.ID] = true
	}
	if !ids[stale.ID] {
		t.Fatal("aged draft missing from stale listing")
	}
	if ids[fresh.ID] {
		t.Fatal("fresh draft reported as stale")
	}
}
