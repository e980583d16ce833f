package services

import (
	"context"
	"strings"

	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

type EmotionScore struct {
	Emotion string  `json:"emotion"`
	Score   float64 `json:"score"`
}

// ContextAnalysis is the per-entry derived emotion/topic state written by
// the fast-lane context_analyze job.
type ContextAnalysis struct {
	Emotions []EmotionScore `json:"emotions"`
	Topics   []string       `json:"topics"`
}

type ContextAnalyzer interface {
	AnalyzeContext(ctx context.Context, content string) (*ContextAnalysis, error)
}

type contextAnalyzer struct {
	log *logger.Logger
	ai  openai.Client
}

func NewContextAnalyzer(baseLog *logger.Logger, ai openai.Client) ContextAnalyzer {
	return &contextAnalyzer{
		log: baseLog.With("service", "ContextAnalyzer"),
		ai:  ai,
	}
}

var contextSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"emotions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"emotion": map[string]any{"type": "string"},
					"score":   map[string]any{"type": "number"},
				},
				"required":             []string{"emotion", "score"},
				"additionalProperties": false,
			},
		},
		"topics": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"emotions", "topics"},
	"additionalProperties": false,
}

const contextSystemPrompt = `ユーザーの記録から感情と話題を抽出してください。
- emotions: 感情とその強さ (0から1)。最大3件
- topics: 話題のキーワード。最大5件
JSONのみで答えてください。`

func (a *contextAnalyzer) AnalyzeContext(ctx context.Context, content string) (*ContextAnalysis, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &InvalidInputError{Reason: "empty content"}
	}

	raw, err := a.ai.WithTier(openai.TierFast).GenerateJSON(ctx, contextSystemPrompt, content, "context_analysis", contextSchema)
	if err != nil {
		return nil, err
	}

	out := &ContextAnalysis{}
	if items, ok := raw["emotions"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			e := EmotionScore{Emotion: asString(m["emotion"]), Score: clamp01(asFloat(m["score"]))}
			if e.Emotion != "" {
				out.Emotions = append(out.Emotions, e)
			}
		}
	}
	if items, ok := raw["topics"].([]any); ok {
		for _, it := range items {
			if t := asString(it); t != "" {
				out.Topics = append(out.Topics, t)
			}
		}
	}
	return out, nil
}
