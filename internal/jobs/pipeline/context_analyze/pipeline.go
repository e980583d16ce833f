package context_analyze

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	jobrt "github.com/dx-junkyard/plura/internal/jobs/runtime"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
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
	if e.IsAnalyzed {
		// Re-run after the flag flipped: nothing to do.
		jc.Succeed("done", map[string]any{"entry_id": entryID.String(), "noop": true})
		return nil
	}

	jc.Progress("analyze", 20, "Extracting emotions and topics")
	analysis, err := p.analyzer.AnalyzeContext(jc.Ctx, e.Content)
	if err != nil {
		jc.Fail("analyze", err)
		return nil
	}

	emotions, _ := json.Marshal(analysis.Emotions)
	topics, _ := json.Marshal(analysis.Topics)

	jc.Progress("persist", 70, "Writing analysis")
	if _, err := p.entries.MarkAnalyzed(dbc, entryID, e.Intent, datatypes.JSON(emotions), datatypes.JSON(topics)); err != nil {
		jc.Fail("persist", err)
		return nil
	}

	chained := p.chainStructural(dbc, jc, e)

	jc.Succeed("done", map[string]any{
		"entry_id":          entryID.String(),
		"emotions":          len(analysis.Emotions),
		"topics":            len(analysis.Topics),
		"structure_chained": chained,
	})
	return nil
}

// chainStructural enqueues the structural analysis for this entry once
// its precondition (context analyzed) holds. Skip-eligible intents get
// the flag satisfied without a value instead.
func (p *Pipeline) chainStructural(dbc dbctx.Context, jc *jobrt.Context, e *entry.Entry) bool {
	if e.Intent == string(entry.IntentStateShare) {
		if err := p.entries.MarkStructureSkipped(dbc, e.ID); err != nil {
			p.log.Warn("structure skip mark failed", "error", err, "entry_id", e.ID)
		}
		return false
	}
	if e.IsStructureAnalyzed {
		return false
	}

	threadID := e.RootThreadID()
	payload, _ := json.Marshal(map[string]any{"entry_id": e.ID.String()})
	_, err := p.jobRuns.Create(dbc, []*jobs.JobRun{{
		OwnerUserID: e.UserID,
		JobType:     jobs.TypeStructureAnalyze,
		EntityType:  "entry",
		EntityID:    &e.ID,
		ThreadID:    &threadID,
		Payload:     datatypes.JSON(payload),
	}})
	if err != nil {
		p.log.Warn("structural enqueue failed", "error", err, "entry_id", e.ID)
		return false
	}
	return true
}
