package refine_insight

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dx-junkyard/plura/internal/domain/insight"
	jobrt "github.com/dx-junkyard/plura/internal/jobs/runtime"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/services"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	entryID, ok := jc.PayloadUUID("entry_id")
	if !ok || entryID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing entry_id"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	e, err := p.entries.GetByID(dbc, entryID)
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if e.IsProcessedForInsight {
		jc.Succeed("done", map[string]any{"entry_id": entryID.String(), "noop": true})
		return nil
	}

	jc.Progress("sanitize", 15, "Removing identifying information")
	sanitized, err := p.sanitizer.Sanitize(jc.Ctx, e.Content)
	if err != nil {
		if services.IsInvalidInput(err) {
			p.markProcessed(dbc, jc, entryID, "empty")
			return nil
		}
		jc.Fail("sanitize", err)
		return nil
	}

	jc.Progress("distill", 45, "Structuring the insight")
	draft, err := p.distiller.Distill(jc.Ctx, sanitized.Text)
	if err != nil {
		if errors.Is(err, services.ErrNotSuitable) {
			// A valid outcome: no insight from this entry.
			p.markProcessed(dbc, jc, entryID, "not_suitable")
			return nil
		}
		jc.Fail("distill", err)
		return nil
	}

	jc.Progress("score", 70, "Scoring sharing value")
	score := p.broker.Score(jc.Ctx, draft, sanitized.Text)
	status := p.broker.StatusFor(score)

	topics, _ := json.Marshal(draft.Topics)
	tags, _ := json.Marshal(draft.Tags)
	card := &insight.Card{
		AuthorID:      e.UserID,
		SourceEntryID: e.ID,
		Title:         draft.Title,
		Context:       draft.Context,
		Problem:       draft.Problem,
		Solution:      draft.Solution,
		Summary:       draft.Summary,
		Topics:        datatypes.JSON(topics),
		Tags:          datatypes.JSON(tags),
		SharingScore:  score,
		Status:        status,
	}

	jc.Progress("publish", 85, "Persisting the card")
	created, err := p.insights.CreateIfAbsent(dbc, card)
	if err != nil {
		jc.Fail("publish", err)
		return nil
	}
	if !created {
		p.log.Info("insight already exists for entry", "entry_id", entryID)
	}

	if _, err := p.entries.MarkProcessedForInsight(dbc, entryID); err != nil {
		jc.Fail("flag", err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"entry_id": entryID.String(),
		"score":    score,
		"status":   status,
		"created":  created,
	})
	return nil
}

func (p *Pipeline) markProcessed(dbc dbctx.Context, jc *jobrt.Context, entryID uuid.UUID, outcome string) {
	if _, err := p.entries.MarkProcessedForInsight(dbc, entryID); err != nil {
		jc.Fail("flag", err)
		return
	}
	jc.Succeed("done", map[string]any{"entry_id": entryID.String(), "outcome": outcome})
}
