package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
	"github.com/dx-junkyard/plura/internal/platform/qdrant"
)

const (
	// InsightNamespace is the vector-store namespace for approved cards.
	InsightNamespace = "insights"

	matcherMinInputRunes = 20
	matchThreshold       = 0.65
	matchLimit           = 3
	broadThreshold       = 0.45
	broadLimit           = 10

	teamMinInputRunes     = 50
	teamMinCandidates     = 3
	teamMinAuthors        = 2
	teamProposalRelevance = 90
)

const (
	CategoryInsight      = "INSIGHT"
	CategoryTeamProposal = "TEAM_PROPOSAL"
)

type TeamMember struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	Reason string    `json:"reason"`
}

type Recommendation struct {
	InsightID uuid.UUID `json:"insight_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Relevance int       `json:"relevance"`

	// TEAM_PROPOSAL only.
	Members          []TeamMember `json:"members,omitempty"`
	ProjectRationale string       `json:"project_rationale,omitempty"`
}

type RecommendationResult struct {
	HasRecommendations bool             `json:"has_recommendations"`
	Recommendations    []Recommendation `json:"recommendations"`
	TriggerReason      string           `json:"trigger_reason"`
	DisplayMessage     string           `json:"display_message"`
}

// Matcher surfaces serendipitous matches between live input and the
// published-insight index. Best-effort throughout: every failure path
// yields an empty result, never an error back to the caller.
type Matcher interface {
	Match(ctx context.Context, userID uuid.UUID, currentInput string, excludeIDs []uuid.UUID) *RecommendationResult
}

type matcher struct {
	log      *logger.Logger
	ai       openai.Client
	vectors  qdrant.Store
	insights repos.InsightRepo
}

func NewMatcher(baseLog *logger.Logger, ai openai.Client, vectors qdrant.Store, insights repos.InsightRepo) Matcher {
	return &matcher{
		log:      baseLog.With("service", "Matcher"),
		ai:       ai,
		vectors:  vectors,
		insights: insights,
	}
}

func emptyResult(reason string) *RecommendationResult {
	return &RecommendationResult{Recommendations: []Recommendation{}, TriggerReason: reason}
}

func (m *matcher) Match(ctx context.Context, userID uuid.UUID, currentInput string, excludeIDs []uuid.UUID) *RecommendationResult {
	input := strings.TrimSpace(currentInput)
	runes := len([]rune(input))
	if runes < matcherMinInputRunes {
		return emptyResult("input_too_short")
	}

	vecs, err := m.ai.Embed(ctx, []string{input})
	if err != nil || len(vecs) == 0 {
		m.log.Warn("embedding failed, returning empty result", "error", err)
		return emptyResult("none")
	}
	query := vecs[0]

	matches, err := m.vectors.Query(ctx, InsightNamespace, query, broadLimit, nil)
	if err != nil {
		m.log.Warn("vector query failed, returning empty result", "error", err)
		return emptyResult("none")
	}

	excluded := make(map[uuid.UUID]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var strong, broad []scoredCard
	for _, mt := range matches {
		id, err := uuid.Parse(mt.ID)
		if err != nil || excluded[id] {
			continue
		}
		if mt.Score < broadThreshold {
			continue
		}
		sc := scoredCard{id: id, score: mt.Score}
		broad = append(broad, sc)
		if mt.Score >= matchThreshold && len(strong) < matchLimit {
			strong = append(strong, sc)
		}
	}
	if len(broad) == 0 {
		return emptyResult("none")
	}

	cards := m.loadCards(ctx, broad)
	if len(cards) == 0 {
		return emptyResult("none")
	}

	result := emptyResult("similar_insights")
	for _, sc := range strong {
		card, ok := cards[sc.id]
		if !ok || card.AuthorID == userID {
			continue
		}
		result.Recommendations = append(result.Recommendations, Recommendation{
			InsightID: card.ID,
			Category:  CategoryInsight,
			Title:     card.Title,
			Summary:   card.Summary,
			Relevance: int(sc.score * 100),
		})
	}

	if tp := m.maybeTeamProposal(ctx, input, runes, broad, cards, userID); tp != nil {
		result.Recommendations = append(result.Recommendations, *tp)
		result.TriggerReason = "team_proposal"
	}

	if len(result.Recommendations) == 0 {
		return emptyResult("none")
	}
	result.HasRecommendations = true
	result.DisplayMessage = "似た課題に取り組んだ記録が見つかりました"
	if result.TriggerReason == "team_proposal" {
		result.DisplayMessage = "この課題で一緒に動けそうなメンバーがいます"
	}
	return result
}

type scoredCard struct {
	id    uuid.UUID
	score float64
}

func (m *matcher) loadCards(ctx context.Context, scored []scoredCard) map[uuid.UUID]*insight.Card {
	ids := make([]uuid.UUID, 0, len(scored))
	for _, sc := range scored {
		ids = append(ids, sc.id)
	}
	cards, err := m.insights.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		m.log.Warn("insight lookup failed", "error", err)
		return nil
	}
	out := make(map[uuid.UUID]*insight.Card, len(cards))
	for _, c := range cards {
		if c.Status == insight.StatusApproved {
			out[c.ID] = c
		}
	}
	return out
}

var teamSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"project_title": map[string]any{"type": "string"},
		"rationale":     map[string]any{"type": "string"},
		"members": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"insight_id": map[string]any{"type": "string"},
					"role": map[string]any{
						"type": "string",
						"enum": []string{"ハッカー", "ヒップスター", "ハスラー"},
					},
					"reason": map[string]any{"type": "string"},
				},
				"required":             []string{"insight_id", "role", "reason"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"project_title", "rationale", "members"},
	"additionalProperties": false,
}

const teamSystemPrompt = `ユーザーの入力と、似た課題に取り組んだ他ユーザーの「気づき」一覧から、
即席チーム (フラッシュチーム) を提案できるか判断してください。
各メンバーに役割を割り当てます:
- ハッカー: 技術・実装で貢献できる人
- ヒップスター: 体験・デザイン視点で貢献できる人
- ハスラー: 巻き込み・推進で貢献できる人
提案が成立しない場合は members を空にしてください。JSONのみで答えてください。`

// maybeTeamProposal runs the flash-team evaluation over the broad match
// set. Gated on input length and candidate diversity; any generation
// failure drops the proposal silently.
func (m *matcher) maybeTeamProposal(ctx context.Context, input string, inputRunes int, broad []scoredCard, cards map[uuid.UUID]*insight.Card, userID uuid.UUID) *Recommendation {
	if inputRunes < teamMinInputRunes || len(broad) < teamMinCandidates {
		return nil
	}

	authors := map[uuid.UUID]bool{}
	var b strings.Builder
	b.WriteString("入力: ")
	b.WriteString(input)
	b.WriteString("\n\n候補の気づき:\n")
	candidates := 0
	for _, sc := range broad {
		card, ok := cards[sc.id]
		if !ok || card.AuthorID == userID {
			continue
		}
		authors[card.AuthorID] = true
		b.WriteString("- id=")
		b.WriteString(card.ID.String())
		b.WriteString(" ")
		b.WriteString(card.Title)
		b.WriteString(": ")
		b.WriteString(card.Summary)
		b.WriteString("\n")
		candidates++
	}
	if candidates < teamMinCandidates || len(authors) < teamMinAuthors {
		return nil
	}

	raw, err := m.ai.WithTier(openai.TierBalanced).GenerateJSON(ctx, teamSystemPrompt, b.String(), "team_proposal", teamSchema)
	if err != nil {
		m.log.Warn("team proposal generation failed", "error", err)
		return nil
	}

	items, _ := raw["members"].([]any)
	var members []TeamMember
	for _, it := range items {
		mm, ok := it.(map[string]any)
		if !ok {
			continue
		}
		cardID, err := uuid.Parse(asString(mm["insight_id"]))
		if err != nil {
			continue
		}
		card, ok := cards[cardID]
		if !ok {
			continue
		}
		members = append(members, TeamMember{
			UserID: card.AuthorID,
			Role:   asString(mm["role"]),
			Reason: asString(mm["reason"]),
		})
	}
	if len(members) < teamMinAuthors {
		return nil
	}

	return &Recommendation{
		Category:         CategoryTeamProposal,
		Title:            asString(raw["project_title"]),
		Summary:          asString(raw["rationale"]),
		Relevance:        teamProposalRelevance,
		Members:          members,
		ProjectRationale: asString(raw["rationale"]),
	}
}
