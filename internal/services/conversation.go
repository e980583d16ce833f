package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// NodeType names one response-generation strategy. The set is closed:
// dispatch is a pure function over this enumeration, re-entered fresh
// every turn.
type NodeType string

const (
	NodeChat             NodeType = "CHAT"
	NodeEmpathy          NodeType = "EMPATHY"
	NodeKnowledge        NodeType = "KNOWLEDGE"
	NodeDeepDive         NodeType = "DEEP_DIVE"
	NodeBrainstorm       NodeType = "BRAINSTORM"
	NodeStateAck         NodeType = "STATE_ACK"
	NodeSummarize        NodeType = "SUMMARIZE"
	NodeResearchProposal NodeType = "RESEARCH_PROPOSAL"
	NodeResearchExecute  NodeType = "RESEARCH_EXECUTE"
)

// TurnFlags carries the client's per-turn control inputs.
type TurnFlags struct {
	ModeOverride          string
	ResearchApproved      bool
	ResearchPlanConfirmed bool
	ResearchPlan          *ResearchPlan
}

// TurnState is the input every node receives.
type TurnState struct {
	UserID     uuid.UUID
	Utterance  string
	Entry      *entry.Entry
	History    []*entry.Entry
	Hypothesis *IntentHypothesis
	Situation  SituationCode
	Flags      TurnFlags
}

// TaskHandle is the BackgroundTask surface returned to clients.
type TaskHandle struct {
	TaskID      uuid.UUID `json:"task_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	ResultLogID uuid.UUID `json:"result_log_id"`
}

// TurnResult is the uniform node output.
type TurnResult struct {
	Reply                   string
	RequiresResearchConsent bool
	ResearchPlan            *ResearchPlan
	Task                    *TaskHandle
	IsCacheHit              bool
	// SkipAnalysis marks turns whose entry bypasses the analysis jobs
	// entirely (state reports).
	SkipAnalysis bool
}

// Node is one response strategy.
type Node interface {
	Run(ctx context.Context, st *TurnState) (*TurnResult, error)
}

type TurnRequest struct {
	UserID      uuid.UUID
	Message     string
	ContentType string
	ThreadID    *uuid.UUID
	Flags       TurnFlags
}

type IntentBadge struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	Icon       string  `json:"icon"`
}

type TurnReply struct {
	Response                string        `json:"response"`
	IntentBadge             IntentBadge   `json:"intent_badge"`
	BackgroundTask          *TaskHandle   `json:"background_task"`
	RequiresResearchConsent bool          `json:"requires_research_consent,omitempty"`
	ResearchPlan            *ResearchPlan `json:"research_plan,omitempty"`
	IsCacheHit              bool          `json:"is_cache_hit,omitempty"`
	ThreadID                uuid.UUID     `json:"thread_id"`
	LogID                   uuid.UUID     `json:"log_id"`
}

type ConversationService interface {
	HandleTurn(ctx context.Context, req *TurnRequest) (*TurnReply, error)
}

type conversationService struct {
	log        *logger.Logger
	ai         openai.Client
	intents    IntentRouter
	situations SituationRouter
	research   ResearchService
	entries    repos.EntryRepo
	states     repos.UserStateRepo
	jobRuns    repos.JobRunRepo
	nodes      map[NodeType]Node
}

func NewConversationService(
	baseLog *logger.Logger,
	ai openai.Client,
	intents IntentRouter,
	situations SituationRouter,
	research ResearchService,
	entries repos.EntryRepo,
	states repos.UserStateRepo,
	jobRuns repos.JobRunRepo,
) ConversationService {
	log := baseLog.With("service", "ConversationService")
	s := &conversationService{
		log:        log,
		ai:         ai,
		intents:    intents,
		situations: situations,
		research:   research,
		entries:    entries,
		states:     states,
		jobRuns:    jobRuns,
	}
	s.nodes = map[NodeType]Node{
		NodeChat:             &chatNode{log: log, ai: ai},
		NodeEmpathy:          &empathyNode{log: log, ai: ai},
		NodeKnowledge:        &knowledgeNode{log: log, ai: ai},
		NodeDeepDive:         &deepDiveNode{log: log, ai: ai},
		NodeBrainstorm:       &brainstormNode{log: log, ai: ai},
		NodeStateAck:         &stateAckNode{log: log, ai: ai, states: states},
		NodeSummarize:        &summarizeNode{log: log, ai: ai},
		NodeResearchProposal: &researchProposalNode{log: log, research: research},
		NodeResearchExecute: &researchExecuteNode{
			log: log, research: research, entries: entries, jobRuns: jobRuns,
		},
	}
	return s
}

var summarizeMarkers = []string{"まとめて", "要約して", "整理して", "summarize", "sum up"}

// selectNode is the dispatch table: a pure function of the hypothesis, the
// situation, and the request flags. Research consent outranks everything,
// then explicit mode override, then intent.
func selectNode(hyp *IntentHypothesis, situation SituationCode, flags TurnFlags, utterance string, historyLen int) NodeType {
	if flags.ResearchPlanConfirmed && flags.ResearchPlan != nil {
		return NodeResearchExecute
	}
	if flags.ResearchApproved {
		return NodeResearchProposal
	}
	if flags.ModeOverride != "" {
		if nt, ok := nodeForIntent(flags.ModeOverride); ok {
			return nt
		}
	}

	norm := strings.ToLower(utterance)
	for _, m := range summarizeMarkers {
		if strings.Contains(norm, m) {
			return NodeSummarize
		}
	}
	if historyLen >= 15 && (situation == SituationContinue || situation == SituationSameTopic) {
		return NodeSummarize
	}

	if hyp.NeedsProbing && hyp.PrimaryConfidence < 0.5 {
		return NodeChat
	}
	if nt, ok := nodeForIntent(hyp.PrimaryIntent); ok {
		return nt
	}
	return NodeChat
}

func nodeForIntent(intent string) (NodeType, bool) {
	switch entry.Intent(intent) {
	case entry.IntentStateShare:
		return NodeStateAck, true
	case entry.IntentEmpathy:
		return NodeEmpathy, true
	case entry.IntentKnowledge:
		return NodeKnowledge, true
	case entry.IntentDeepDive:
		return NodeDeepDive, true
	case entry.IntentBrainstorm:
		return NodeBrainstorm, true
	case entry.IntentChat, entry.IntentProbe:
		return NodeChat, true
	case entry.IntentResearch:
		return NodeResearchProposal, true
	}
	return "", false
}

const apologeticReply = "すみません、うまく応答できませんでした。もう一度お試しください。"

func (s *conversationService) HandleTurn(ctx context.Context, req *TurnRequest) (*TurnReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &InvalidInputError{Reason: "empty message"}
	}
	dbc := dbctx.Context{Ctx: ctx}

	var history []*entry.Entry
	if req.ThreadID != nil {
		h, err := s.entries.ListThread(dbc, *req.ThreadID)
		if err != nil {
			s.log.Warn("thread history load failed", "error", err, "thread_id", *req.ThreadID)
		} else {
			history = h
		}
	}

	hyp, err := s.intents.Classify(ctx, message, prevHypothesis(history))
	if err != nil {
		return nil, err
	}
	situation, err := s.situations.ClassifySituation(ctx, message, history)
	if err != nil {
		return nil, err
	}

	nodeType := selectNode(hyp, situation, req.Flags, message, len(history))

	contentType := req.ContentType
	if contentType != entry.ContentTypeVoice {
		contentType = entry.ContentTypeText
	}
	e := &entry.Entry{
		UserID:      req.UserID,
		ThreadID:    req.ThreadID,
		Content:     message,
		ContentType: contentType,
		Intent:      hyp.PrimaryIntent,
	}
	if nodeType == NodeStateAck {
		e.Intent = string(entry.IntentStateShare)
	}
	if err := s.entries.Create(dbc, e); err != nil {
		return nil, err
	}

	st := &TurnState{
		UserID:     req.UserID,
		Utterance:  message,
		Entry:      e,
		History:    history,
		Hypothesis: hyp,
		Situation:  situation,
		Flags:      req.Flags,
	}

	node := s.nodes[nodeType]
	result, nodeErr := node.Run(ctx, st)
	if nodeErr != nil {
		// The entry is already persisted; the reply degrades, the turn
		// is never left half-persisted.
		s.log.Warn("node execution failed", "node", string(nodeType), "error", nodeErr)
		result = &TurnResult{Reply: apologeticReply, SkipAnalysis: nodeType == NodeStateAck}
	}

	if result.Reply != "" && result.Reply != apologeticReply {
		if err := s.entries.SetAssistantReply(dbc, e.ID, result.Reply); err != nil {
			s.log.Warn("assistant reply persist failed", "error", err, "entry_id", e.ID)
		}
	}

	s.enqueueAnalysis(dbc, e, result)

	return &TurnReply{
		Response:                result.Reply,
		IntentBadge:             badgeFor(hyp),
		BackgroundTask:          result.Task,
		RequiresResearchConsent: result.RequiresResearchConsent,
		ResearchPlan:            result.ResearchPlan,
		IsCacheHit:              result.IsCacheHit,
		ThreadID:                e.RootThreadID(),
		LogID:                   e.ID,
	}, nil
}

// prevHypothesis rebuilds a coarse previous-turn hypothesis from the last
// persisted entry. The full hypothesis is transient and never stored.
func prevHypothesis(history []*entry.Entry) *IntentHypothesis {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.Intent == "" {
		return nil
	}
	return &IntentHypothesis{
		PrevEvaluation:    PrevEvalNone,
		PrimaryIntent:     last.Intent,
		PrimaryConfidence: 0.6,
	}
}

// enqueueAnalysis wires the per-turn side effects: state reports satisfy
// both flags without any job; everything else gets a fast-lane context
// analysis (which chains into structural analysis) and a heavy-lane
// refinement run.
func (s *conversationService) enqueueAnalysis(dbc dbctx.Context, e *entry.Entry, result *TurnResult) {
	if result.SkipAnalysis {
		if _, err := s.entries.MarkAnalyzed(dbc, e.ID, e.Intent, nil, nil); err != nil {
			s.log.Warn("inline analyze mark failed", "error", err, "entry_id", e.ID)
		}
		if err := s.entries.MarkStructureSkipped(dbc, e.ID); err != nil {
			s.log.Warn("structure skip mark failed", "error", err, "entry_id", e.ID)
		}
		return
	}

	threadID := e.RootThreadID()
	payload, _ := json.Marshal(map[string]any{"entry_id": e.ID.String()})
	runs := []*jobs.JobRun{
		{
			OwnerUserID: e.UserID,
			JobType:     jobs.TypeContextAnalyze,
			EntityType:  "entry",
			EntityID:    &e.ID,
			ThreadID:    &threadID,
			Payload:     datatypes.JSON(payload),
		},
		{
			OwnerUserID: e.UserID,
			JobType:     jobs.TypeRefineInsight,
			EntityType:  "entry",
			EntityID:    &e.ID,
			ThreadID:    &threadID,
			Payload:     datatypes.JSON(payload),
		},
	}
	if _, err := s.jobRuns.Create(dbc, runs); err != nil {
		s.log.Warn("analysis enqueue failed", "error", err, "entry_id", e.ID)
	}
}

var intentBadges = map[string]struct {
	Label string
	Icon  string
}{
	string(entry.IntentChat):       {"会話", "💬"},
	string(entry.IntentEmpathy):    {"共感", "🤝"},
	string(entry.IntentKnowledge):  {"知識", "📚"},
	string(entry.IntentDeepDive):   {"深掘り", "🔍"},
	string(entry.IntentBrainstorm): {"発想", "💡"},
	string(entry.IntentStateShare): {"状態", "📋"},
	string(entry.IntentProbe):      {"確認", "❓"},
	string(entry.IntentResearch):   {"調査", "🔬"},
}

func badgeFor(hyp *IntentHypothesis) IntentBadge {
	badge := IntentBadge{Intent: hyp.PrimaryIntent, Confidence: hyp.PrimaryConfidence}
	if meta, ok := intentBadges[hyp.PrimaryIntent]; ok {
		badge.Label = meta.Label
		badge.Icon = meta.Icon
	}
	return badge
}
