package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	redisclient "github.com/dx-junkyard/plura/internal/clients/redis"
	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/observability"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// ResearchPlan is the phase-1 artifact of the deep-research flow. It is
// returned to the client and held there until confirmed; the digest makes
// the confirm payload tamper-evident.
type ResearchPlan struct {
	Title          string   `json:"title"`
	Topic          string   `json:"topic"`
	Scope          string   `json:"scope"`
	Perspectives   []string `json:"perspectives"`
	SanitizedQuery string   `json:"sanitized_query"`
	Digest         string   `json:"digest,omitempty"`
}

type ResearchService interface {
	// ProposePlan generates a phase-1 plan. Provider failure degrades to a
	// deterministic plan built from the query itself.
	ProposePlan(ctx context.Context, query string) (*ResearchPlan, error)
	// VerifyPlan checks the digest carried on a confirmed plan payload.
	VerifyPlan(plan *ResearchPlan) bool
	// QueryHash is the content-addressed cache key for a sanitized query.
	QueryHash(sanitizedQuery string) string
	// LookupCache checks redis first, then previously published cards.
	LookupCache(ctx context.Context, queryHash string) (map[string]any, bool)
	StoreCache(ctx context.Context, queryHash string, result map[string]any)
	// Execute runs the multi-perspective investigation. Heavy lane only.
	Execute(ctx context.Context, plan *ResearchPlan) (map[string]any, error)
}

type researchService struct {
	log       *logger.Logger
	ai        openai.Client
	sanitizer Sanitizer
	cache     redisclient.ResearchCache
	insights  repos.InsightRepo
	digestKey []byte
}

func NewResearchService(baseLog *logger.Logger, ai openai.Client, san Sanitizer, cache redisclient.ResearchCache, insights repos.InsightRepo) ResearchService {
	key := os.Getenv("PLAN_DIGEST_SECRET")
	if key == "" {
		key = os.Getenv("JWT_SECRET_KEY")
	}
	return &researchService{
		log:       baseLog.With("service", "ResearchService"),
		ai:        ai,
		sanitizer: san,
		cache:     cache,
		insights:  insights,
		digestKey: []byte(key),
	}
}

var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{"type": "string"},
		"topic": map[string]any{"type": "string"},
		"scope": map[string]any{"type": "string"},
		"perspectives": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"title", "topic", "scope", "perspectives"},
	"additionalProperties": false,
}

const planSystemPrompt = `ユーザーの質問に対する調査計画を立ててください。
- title: 調査の見出し
- topic: 中心となるトピック
- scope: 何を調べ、何を調べないか
- perspectives: 調査の観点 (2〜4件)
JSONのみで答えてください。`

func (s *researchService) ProposePlan(ctx context.Context, query string) (*ResearchPlan, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, &InvalidInputError{Reason: "empty query"}
	}

	sanitized := q
	if s.sanitizer != nil {
		if res, err := s.sanitizer.Sanitize(ctx, q); err == nil {
			sanitized = res.Text
		}
	}

	plan := fallbackPlan(q, sanitized)
	raw, err := s.ai.WithTier(openai.TierBalanced).GenerateJSON(ctx, planSystemPrompt, sanitized, "research_plan", planSchema)
	if err != nil {
		s.log.Warn("plan generation failed, using fallback plan", "error", err)
	} else {
		if t := asString(raw["title"]); t != "" {
			plan.Title = t
		}
		if t := asString(raw["topic"]); t != "" {
			plan.Topic = t
		}
		if sc := asString(raw["scope"]); sc != "" {
			plan.Scope = sc
		}
		if ps := asStringSlice(raw["perspectives"]); len(ps) > 0 {
			plan.Perspectives = ps
		}
	}

	plan.Digest = s.planDigest(plan)
	return plan, nil
}

func fallbackPlan(query, sanitized string) *ResearchPlan {
	title := query
	if r := []rune(title); len(r) > 30 {
		title = string(r[:30])
	}
	return &ResearchPlan{
		Title:          title + "の調査",
		Topic:          query,
		Scope:          "質問に直接関係する範囲のみを調査します",
		Perspectives:   []string{"現状の整理", "選択肢の比較", "実践的な次の一歩"},
		SanitizedQuery: sanitized,
	}
}

// planDigest is an HMAC over the canonical plan fields, keyed with a
// server secret so clients cannot mint a digest for an altered plan.
// Perspective order matters: a reordered plan is not the plan the user
// confirmed.
func (s *researchService) planDigest(p *ResearchPlan) string {
	h := hmac.New(sha256.New, s.digestKey)
	for _, part := range []string{p.Title, p.Topic, p.Scope, strings.Join(p.Perspectives, "\x1f"), p.SanitizedQuery} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *researchService) VerifyPlan(plan *ResearchPlan) bool {
	if plan == nil || plan.Digest == "" {
		return false
	}
	want, err := hex.DecodeString(plan.Digest)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(s.planDigest(plan))
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

// QueryHash normalizes (trim, lower, collapse whitespace) before hashing
// so formatting differences still hit the same cache slot.
func (s *researchService) QueryHash(sanitizedQuery string) string {
	norm := strings.ToLower(strings.TrimSpace(sanitizedQuery))
	norm = strings.Join(strings.Fields(norm), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func (s *researchService) LookupCache(ctx context.Context, queryHash string) (map[string]any, bool) {
	if queryHash == "" {
		return nil, false
	}
	if s.cache != nil {
		if result, hit, err := s.cache.Get(ctx, queryHash); err == nil && hit {
			observability.Current().IncResearchCache("redis_hit")
			return result, true
		} else if err != nil {
			s.log.Warn("research cache read failed", "error", err)
		}
	}
	if s.insights != nil {
		card, err := s.insights.FindApprovedByQueryHash(dbctx.Context{Ctx: ctx}, queryHash)
		if err == nil && card != nil {
			observability.Current().IncResearchCache("card_hit")
			return map[string]any{
				"insight_id": card.ID.String(),
				"title":      card.Title,
				"summary":    card.Summary,
				"report":     card.Solution,
			}, true
		}
	}
	observability.Current().IncResearchCache("miss")
	return nil, false
}

func (s *researchService) StoreCache(ctx context.Context, queryHash string, result map[string]any) {
	if s.cache == nil || queryHash == "" {
		return
	}
	if err := s.cache.Set(ctx, queryHash, result); err != nil {
		s.log.Warn("research cache write failed", "error", err)
	}
}

const perspectivePrompt = `あなたは調査アシスタントです。指定された観点から質問を調査し、
わかっていること・一般的な知見・注意点を日本語でまとめてください。`

const mergePrompt = `観点別の調査結果を1つの読みやすいレポートに統合してください。
構成: 概要、観点別の知見、結論と次の一歩。日本語で書いてください。`

func (s *researchService) Execute(ctx context.Context, plan *ResearchPlan) (map[string]any, error) {
	if plan == nil || strings.TrimSpace(plan.SanitizedQuery) == "" {
		return nil, &InvalidInputError{Reason: "empty plan"}
	}

	perspectives := plan.Perspectives
	if len(perspectives) == 0 {
		perspectives = []string{"全体像"}
	}

	deep := s.ai.WithTier(openai.TierDeep)
	sections := make([]string, len(perspectives))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, p := range perspectives {
		i, p := i, p
		g.Go(func() error {
			user := fmt.Sprintf("質問: %s\n観点: %s\nスコープ: %s", plan.SanitizedQuery, p, plan.Scope)
			text, err := deep.GenerateText(gctx, perspectivePrompt, user)
			if err != nil {
				return err
			}
			mu.Lock()
			sections[i] = fmt.Sprintf("## %s\n%s", p, strings.TrimSpace(text))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report, err := deep.GenerateText(ctx, mergePrompt,
		fmt.Sprintf("質問: %s\n\n%s", plan.SanitizedQuery, strings.Join(sections, "\n\n")))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"title":        plan.Title,
		"topic":        plan.Topic,
		"report":       strings.TrimSpace(report),
		"perspectives": perspectives,
		"query_hash":   s.QueryHash(plan.SanitizedQuery),
	}, nil
}
