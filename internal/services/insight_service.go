package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/observability"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/apierr"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
	"github.com/dx-junkyard/plura/internal/platform/qdrant"
)

// InsightService is the read/decide surface over insight cards. Approval
// is the publish moment: the card is embedded, upserted into the vector
// index, and its query hash (when present) registered in the research
// cache so later deep-research runs can short-circuit.
type InsightService interface {
	List(ctx context.Context, filter repos.InsightListFilter) ([]*insight.Card, error)
	ListPending(ctx context.Context, authorID uuid.UUID) ([]*insight.Card, error)
	Get(ctx context.Context, id uuid.UUID) (*insight.Card, error)
	Decide(ctx context.Context, userID, id uuid.UUID, approved bool) (*insight.Card, error)
	Thanks(ctx context.Context, id uuid.UUID) (int, error)
	// PublishToIndex embeds and upserts one approved card. Also used by
	// the deep-research pipeline when a research card auto-approves.
	PublishToIndex(ctx context.Context, card *insight.Card) error
}

type insightService struct {
	log      *logger.Logger
	ai       openai.Client
	vectors  qdrant.Store
	insights repos.InsightRepo
	research ResearchService
}

func NewInsightService(baseLog *logger.Logger, ai openai.Client, vectors qdrant.Store, insights repos.InsightRepo, research ResearchService) InsightService {
	return &insightService{
		log:      baseLog.With("service", "InsightService"),
		ai:       ai,
		vectors:  vectors,
		insights: insights,
		research: research,
	}
}

func (s *insightService) List(ctx context.Context, filter repos.InsightListFilter) ([]*insight.Card, error) {
	return s.insights.List(dbctx.Context{Ctx: ctx}, filter)
}

func (s *insightService) ListPending(ctx context.Context, authorID uuid.UUID) ([]*insight.Card, error) {
	return s.insights.ListPendingByAuthor(dbctx.Context{Ctx: ctx}, authorID)
}

func (s *insightService) Get(ctx context.Context, id uuid.UUID) (*insight.Card, error) {
	dbc := dbctx.Context{Ctx: ctx}
	card, err := s.insights.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, nil
	}
	if err := s.insights.IncrementViewCount(dbc, id); err != nil {
		s.log.Warn("view count increment failed", "error", err, "insight_id", id)
	}
	return card, nil
}

func (s *insightService) Decide(ctx context.Context, userID, id uuid.UUID, approved bool) (*insight.Card, error) {
	dbc := dbctx.Context{Ctx: ctx}
	card, err := s.insights.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, nil
	}
	if card.AuthorID != userID {
		return nil, apierr.Forbidden(fmt.Errorf("insight %s not owned by caller", id))
	}

	status := insight.StatusRejected
	if approved {
		status = insight.StatusApproved
	}
	ok, err := s.insights.UpdateStatusIfNotTerminal(dbc, id, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Approved/rejected are terminal; a repeat decision changes nothing.
		return card, nil
	}
	card.Status = status
	observability.Current().IncInsightDecision(status)

	if approved {
		if err := s.PublishToIndex(ctx, card); err != nil {
			s.log.Warn("index publish failed", "error", err, "insight_id", id)
		}
	}
	return card, nil
}

func (s *insightService) Thanks(ctx context.Context, id uuid.UUID) (int, error) {
	return s.insights.IncrementThanks(dbctx.Context{Ctx: ctx}, id)
}

func (s *insightService) PublishToIndex(ctx context.Context, card *insight.Card) error {
	if card == nil {
		return fmt.Errorf("nil card")
	}

	text := strings.TrimSpace(strings.Join([]string{card.Title, card.Summary, card.Problem, card.Solution}, "\n"))
	vecs, err := s.ai.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	if len(vecs) == 0 {
		return fmt.Errorf("empty embedding response")
	}

	err = s.vectors.Upsert(ctx, InsightNamespace, []qdrant.Vector{{
		ID:     card.ID.String(),
		Values: vecs[0],
		Metadata: map[string]any{
			"author_id": card.AuthorID.String(),
			"title":     card.Title,
			"summary":   card.Summary,
		},
	}})
	if err != nil {
		return err
	}

	if card.QueryHash != "" && s.research != nil {
		s.research.StoreCache(ctx, card.QueryHash, map[string]any{
			"insight_id": card.ID.String(),
			"title":      card.Title,
			"summary":    card.Summary,
			"report":     card.Solution,
		})
	}
	return nil
}
