package policy_reevaluate

import (
	"encoding/json"
	"time"

	"github.com/dx-junkyard/plura/internal/domain/insight"
	jobrt "github.com/dx-junkyard/plura/internal/jobs/runtime"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/services"
)

const (
	staleDraftAge = 7 * 24 * time.Hour
	batchLimit    = 50
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	before := time.Now().Add(-staleDraftAge)

	jc.Progress("load", 10, "Loading stale drafts")
	drafts, err := p.insights.ListStaleDrafts(dbc, before, batchLimit)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if len(drafts) == 0 {
		jc.Succeed("done", map[string]any{"rescored": 0, "promoted": 0})
		return nil
	}

	rescored := 0
	promoted := 0
	for i, card := range drafts {
		jc.Progress("rescore", 10+80*i/len(drafts), "Re-scoring drafts")

		draft := draftFromCard(card)
		score := p.broker.Score(jc.Ctx, draft, card.Summary)
		status := p.broker.StatusFor(score)
		if err := p.insights.UpdateScore(dbc, card.ID, score, status); err != nil {
			p.log.Warn("draft rescore failed", "error", err, "insight_id", card.ID)
			continue
		}
		rescored++
		if status == insight.StatusPendingApproval {
			promoted++
		}
	}

	jc.Succeed("done", map[string]any{"rescored": rescored, "promoted": promoted})
	return nil
}

func draftFromCard(card *insight.Card) *services.InsightDraft {
	var topics, tags []string
	_ = json.Unmarshal(card.Topics, &topics)
	_ = json.Unmarshal(card.Tags, &tags)
	return &services.InsightDraft{
		Title:    card.Title,
		Context:  card.Context,
		Problem:  card.Problem,
		Solution: card.Solution,
		Summary:  card.Summary,
		Topics:   topics,
		Tags:     tags,
	}
}
