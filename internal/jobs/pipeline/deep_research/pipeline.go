package deep_research

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dx-junkyard/plura/internal/domain/insight"
	jobrt "github.com/dx-junkyard/plura/internal/jobs/runtime"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/services"
)

// Research cards auto-approve at this score: the report was explicitly
// requested and already sanitized at plan time.
const researchCardScore = 85

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	resultEntryID, ok := jc.PayloadUUID("result_entry_id")
	if !ok || resultEntryID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing result_entry_id"))
		return nil
	}
	plan, err := planFromPayload(jc.Payload()["plan"])
	if err != nil {
		jc.Fail("validate", err)
		return nil
	}
	queryHash := jc.PayloadString("query_hash")
	if queryHash == "" {
		queryHash = p.research.QueryHash(plan.SanitizedQuery)
	}

	jc.Progress("execute", 20, "Running the investigation")
	result, err := p.research.Execute(jc.Ctx, plan)
	if err != nil {
		jc.Fail("execute", err)
		return nil
	}
	report := resultString(result, "report")

	dbc := dbctx.Context{Ctx: jc.Ctx}
	jc.Progress("persist", 70, "Writing the report")
	if err := p.entries.SetAssistantReply(dbc, resultEntryID, report); err != nil {
		jc.Fail("persist", err)
		return nil
	}
	// The result entry is assistant-generated; it skips the analysis jobs.
	if _, err := p.entries.MarkAnalyzed(dbc, resultEntryID, "research", nil, nil); err != nil {
		p.log.Warn("analyze mark failed", "error", err, "entry_id", resultEntryID)
	}
	if err := p.entries.MarkStructureSkipped(dbc, resultEntryID); err != nil {
		p.log.Warn("structure skip mark failed", "error", err, "entry_id", resultEntryID)
	}

	jc.Progress("publish", 85, "Publishing shared knowledge")
	topics, _ := json.Marshal([]string{plan.Topic})
	card := &insight.Card{
		AuthorID:      jc.Job.OwnerUserID,
		SourceEntryID: resultEntryID,
		Title:         plan.Title,
		Context:       plan.Scope,
		Problem:       plan.SanitizedQuery,
		Solution:      report,
		Summary:       resultString(result, "title"),
		Topics:        datatypes.JSON(topics),
		SharingScore:  researchCardScore,
		Status:        insight.StatusApproved,
		QueryHash:     queryHash,
	}
	created, err := p.insights.CreateIfAbsent(dbc, card)
	if err != nil {
		jc.Fail("publish", err)
		return nil
	}
	if created {
		if err := p.insightSvc.PublishToIndex(jc.Ctx, card); err != nil {
			p.log.Warn("index publish failed", "error", err, "insight_id", card.ID)
		}
	}
	p.research.StoreCache(jc.Ctx, queryHash, result)

	jc.Succeed("done", map[string]any{
		"result_entry_id": resultEntryID.String(),
		"query_hash":      queryHash,
		"card_created":    created,
	})
	return nil
}

func planFromPayload(v any) (*services.ResearchPlan, error) {
	if v == nil {
		return nil, fmt.Errorf("missing plan")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	var plan services.ResearchPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if plan.SanitizedQuery == "" {
		return nil, fmt.Errorf("plan has no sanitized query")
	}
	return &plan, nil
}

func resultString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
