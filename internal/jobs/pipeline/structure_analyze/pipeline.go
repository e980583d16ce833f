package structure_analyze

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dx-junkyard/plura/internal/domain/entry"
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
	if e.IsStructureAnalyzed {
		// Idempotency: a repeat invocation is logged and treated as success.
		p.log.Info("entry already structure-analyzed", "entry_id", entryID)
		jc.Succeed("done", map[string]any{"entry_id": entryID.String(), "noop": true})
		return nil
	}
	if p.analyzer.SkipEligible(e.Intent) {
		if err := p.entries.MarkStructureSkipped(dbc, entryID); err != nil {
			jc.Fail("skip", err)
			return nil
		}
		jc.Succeed("done", map[string]any{"entry_id": entryID.String(), "skipped": true})
		return nil
	}
	if !e.IsAnalyzed {
		// Precondition not met yet; failing lets the retry policy pick the
		// job back up after the context analysis lands.
		jc.Fail("precondition", fmt.Errorf("entry %s not context-analyzed yet", entryID))
		return nil
	}

	threadID := e.RootThreadID()
	jc.Progress("history", 15, "Loading thread history")
	history, err := p.entries.ListThread(dbc, threadID)
	if err != nil {
		jc.Fail("history", err)
		return nil
	}
	prevIssue := p.latestIssue(dbc, threadID)

	jc.Progress("analyze", 40, "Classifying relationship")
	analysis, err := p.analyzer.Analyze(jc.Ctx, e, history, prevIssue)
	if err != nil {
		if services.IsAlreadyAnalyzed(err) {
			p.log.Info("entry already structure-analyzed", "entry_id", entryID)
			jc.Succeed("done", map[string]any{"entry_id": entryID.String(), "noop": true})
			return nil
		}
		jc.Fail("analyze", err)
		return nil
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		jc.Fail("encode", err)
		return nil
	}

	jc.Progress("persist", 80, "Writing analysis")
	wrote, err := p.entries.SetStructuralAnalysis(dbc, entryID, datatypes.JSON(raw))
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}
	if !wrote {
		// Lost a race with another worker; the stored analysis stands.
		p.log.Info("structural analysis already written", "entry_id", entryID)
	}

	jc.Succeed("done", map[string]any{
		"entry_id":     entryID.String(),
		"relationship": string(analysis.Relationship),
	})
	return nil
}

func (p *Pipeline) latestIssue(dbc dbctx.Context, threadID uuid.UUID) string {
	latest, err := p.entries.LatestStructural(dbc, threadID)
	if err != nil || latest == nil || len(latest.StructuralAnalysis) == 0 {
		return ""
	}
	var sa entry.StructuralAnalysis
	if err := json.Unmarshal(latest.StructuralAnalysis, &sa); err != nil {
		return ""
	}
	return sa.StructuralIssue
}
