package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/pkg/utils"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// SharingBroker assigns a 0-100 sharing-value score to a distilled draft
// and maps it to a card status. Score >= threshold means pending_approval,
// below means draft. The LLM score is preferred; a deterministic rubric
// stands in when the gateway fails, so scoring itself never errors.
type SharingBroker interface {
	Score(ctx context.Context, draft *InsightDraft, sanitizedText string) int
	Threshold() int
	StatusFor(score int) string
}

type sharingBroker struct {
	log       *logger.Logger
	ai        openai.Client
	sanitizer Sanitizer
	threshold int
}

func NewSharingBroker(baseLog *logger.Logger, ai openai.Client, san Sanitizer) SharingBroker {
	log := baseLog.With("service", "SharingBroker")
	return &sharingBroker{
		log:       log,
		ai:        ai,
		sanitizer: san,
		threshold: utils.GetEnvAsInt("SHARING_PUBLISH_THRESHOLD", 80, log),
	}
}

func (b *sharingBroker) Threshold() int { return b.threshold }

func (b *sharingBroker) StatusFor(score int) string {
	if score >= b.threshold {
		return insight.StatusPendingApproval
	}
	return insight.StatusDraft
}

var scoreSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":  map[string]any{"type": "integer"},
		"reason": map[string]any{"type": "string"},
	},
	"required":             []string{"score", "reason"},
	"additionalProperties": false,
}

const scoreSystemPrompt = `次の「気づき」が他のユーザーやチームにとってどれだけ有用かを
0から100で採点してください。基準:
- 再現可能な学び・対処法が含まれるか
- 状況説明が第三者に伝わるか
- 個人を特定できる情報が残っていないか
JSONのみで答えてください。`

func (b *sharingBroker) Score(ctx context.Context, draft *InsightDraft, sanitizedText string) int {
	if draft == nil {
		return 0
	}

	user := fmt.Sprintf("タイトル: %s\n状況: %s\n課題: %s\n対処: %s\n要約: %s\nタグ: %s",
		draft.Title, draft.Context, draft.Problem, draft.Solution, draft.Summary,
		strings.Join(draft.Tags, ", "))

	raw, err := b.ai.WithTier(openai.TierBalanced).GenerateJSON(ctx, scoreSystemPrompt, user, "sharing_score", scoreSchema)
	if err == nil {
		score := int(asFloat(raw["score"]))
		if score >= 0 && score <= 100 {
			return score
		}
		b.log.Warn("score out of range, using rubric", "score", score)
	} else {
		b.log.Warn("score call failed, using rubric", "error", err)
	}
	return b.rubricScore(draft, sanitizedText)
}

// rubricScore is the deterministic fallback: base 30 plus field bonuses.
// A draft missing two or more of context/problem/solution can never reach
// the approval queue, so it caps at 40.
func (b *sharingBroker) rubricScore(draft *InsightDraft, sanitizedText string) int {
	score := 30
	empty := 0

	if strings.TrimSpace(draft.Context) != "" {
		score += 5
	} else {
		empty++
	}
	if strings.TrimSpace(draft.Problem) != "" {
		score += 10
	} else {
		empty++
	}
	if strings.TrimSpace(draft.Solution) != "" {
		score += 15
	} else {
		empty++
	}
	if strings.TrimSpace(draft.Summary) != "" {
		score += 5
	}
	if len(draft.Topics) > 0 {
		score += 5
	}
	if b.sanitizer != nil && b.sanitizer.CountPII(sanitizedText) == 0 {
		score += 10
	}

	if empty >= 2 && score > 40 {
		score = 40
	}
	if score > 100 {
		score = 100
	}
	return score
}
