package services

import (
	"context"
	"strings"

	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// StructuralAnalyzer updates a thread's running structural-issue statement
// from one new entry. Preconditions are enforced here: the entry must have
// finished context analysis, must not already carry a structural analysis,
// and state_share entries skip the stage entirely.
type StructuralAnalyzer interface {
	Analyze(ctx context.Context, e *entry.Entry, history []*entry.Entry, prevIssue string) (*entry.StructuralAnalysis, error)
	// SkipEligible reports whether the intent bypasses structural analysis.
	SkipEligible(intent string) bool
}

type structuralAnalyzer struct {
	log *logger.Logger
	ai  openai.Client
}

func NewStructuralAnalyzer(baseLog *logger.Logger, ai openai.Client) StructuralAnalyzer {
	return &structuralAnalyzer{
		log: baseLog.With("service", "StructuralAnalyzer"),
		ai:  ai,
	}
}

func (s *structuralAnalyzer) SkipEligible(intent string) bool {
	return intent == string(entry.IntentStateShare)
}

var structuralSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"relationship": map[string]any{
			"type": "string",
			"enum": []string{
				string(entry.RelationshipAdditive), string(entry.RelationshipParallel),
				string(entry.RelationshipCorrection), string(entry.RelationshipNew),
			},
		},
		"reason":                   map[string]any{"type": "string"},
		"updated_structural_issue": map[string]any{"type": "string"},
		"probing_question":         map[string]any{"type": "string"},
	},
	"required": []string{
		"relationship", "reason", "updated_structural_issue", "probing_question",
	},
	"additionalProperties": false,
}

const structuralSystemPrompt = `あなたは思考の構造を分析するアナリストです。
スレッドの「構造的課題」(このスレッドが本質的に扱っている問題の言明) に対して、
新しい記録がどう関係するかを分類してください:
- ADDITIVE: 既存の課題に情報を積み増している
- PARALLEL: 同じスレッド内の並行する別の論点
- CORRECTION: 既存の課題の言明を訂正・上書きする
- NEW: これまでの課題と無関係な新しい課題
そのうえで構造的課題の言明を更新し、思考を一歩進める問いかけを
1つ生成してください。CORRECTION の場合、更新後の言明は従来の言明を
置き換えるものでなければなりません。JSONのみで答えてください。`

func (s *structuralAnalyzer) Analyze(ctx context.Context, e *entry.Entry, history []*entry.Entry, prevIssue string) (*entry.StructuralAnalysis, error) {
	if e == nil || strings.TrimSpace(e.Content) == "" {
		return nil, &InvalidInputError{Reason: "empty entry"}
	}
	if e.IsStructureAnalyzed {
		return nil, &AlreadyAnalyzedError{EntryID: e.ID}
	}
	if s.SkipEligible(e.Intent) {
		return nil, &InvalidInputError{Reason: "intent is skip-eligible"}
	}

	var b strings.Builder
	if prevIssue != "" {
		b.WriteString("現在の構造的課題: ")
		b.WriteString(prevIssue)
		b.WriteString("\n\n")
	} else {
		b.WriteString("現在の構造的課題: (未設定)\n\n")
	}
	if len(history) > 0 {
		b.WriteString("スレッドの記録:\n")
		for _, h := range tailEntries(history, 10) {
			if h.ID == e.ID {
				continue
			}
			b.WriteString("- ")
			b.WriteString(h.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("新しい記録: ")
	b.WriteString(e.Content)

	tier := openai.TierBalanced
	raw, err := s.ai.WithTier(tier).GenerateJSON(ctx, structuralSystemPrompt, b.String(), "structural_analysis", structuralSchema)
	if err != nil {
		return nil, err
	}

	rel := entry.Relationship(asString(raw["relationship"]))
	switch rel {
	case entry.RelationshipAdditive, entry.RelationshipParallel, entry.RelationshipCorrection, entry.RelationshipNew:
	default:
		rel = fallbackRelationship(e.Content, prevIssue)
	}

	issue := asString(raw["updated_structural_issue"])
	if issue == "" {
		issue = prevIssue
	}

	return &entry.StructuralAnalysis{
		Relationship:    rel,
		Reason:          asString(raw["reason"]),
		StructuralIssue: issue,
		ProbingQuestion: asString(raw["probing_question"]),
		ModelTier:       string(tier),
	}, nil
}

// fallbackRelationship covers a malformed classification: correction
// markers win, a thread without an issue statement is NEW, anything else
// is ADDITIVE.
func fallbackRelationship(content, prevIssue string) entry.Relationship {
	norm := strings.ToLower(content)
	for _, m := range correctionMarkers {
		if strings.Contains(norm, m) {
			return entry.RelationshipCorrection
		}
	}
	if strings.TrimSpace(prevIssue) == "" {
		return entry.RelationshipNew
	}
	return entry.RelationshipAdditive
}
