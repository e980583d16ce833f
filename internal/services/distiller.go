package services

import (
	"context"
	"strings"

	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// InsightDraft is the structured distillation of one sanitized entry,
// not yet scored or persisted.
type InsightDraft struct {
	Title    string   `json:"title"`
	Context  string   `json:"context"`
	Problem  string   `json:"problem"`
	Solution string   `json:"solution"`
	Summary  string   `json:"summary"`
	Topics   []string `json:"topics"`
	Tags     []string `json:"tags"`
}

// Distiller decides whether sanitized content carries generalizable value
// and structures it when it does. ErrNotSuitable is a valid outcome, not a
// failure; provider errors propagate so the job layer can retry.
type Distiller interface {
	Distill(ctx context.Context, sanitizedText string) (*InsightDraft, error)
}

type distiller struct {
	log *logger.Logger
	ai  openai.Client
}

func NewDistiller(baseLog *logger.Logger, ai openai.Client) Distiller {
	return &distiller{
		log: baseLog.With("service", "Distiller"),
		ai:  ai,
	}
}

var distillSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"suitable": map[string]any{"type": "boolean"},
		"title":    map[string]any{"type": "string"},
		"context":  map[string]any{"type": "string"},
		"problem":  map[string]any{"type": "string"},
		"solution": map[string]any{"type": "string"},
		"summary":  map[string]any{"type": "string"},
		"topics": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{
		"suitable", "title", "context", "problem", "solution", "summary", "topics", "tags",
	},
	"additionalProperties": false,
}

const distillSystemPrompt = `あなたは個人の記録からチームで共有できる「気づき」を抽出する編集者です。
記録に他者にとって再利用可能な学びがあるか判定してください。
雑談・単語だけの記録・テスト入力・純粋な状態報告は suitable=false。
suitable=true の場合は次の構造に整理してください:
- title: 30文字以内の見出し
- context: どういう状況だったか
- problem: 何が課題だったか
- solution: どう対処した / しようとしているか
- summary: 全体の要約 (1〜2文)
- topics: 話題キーワード (最大5件)
- tags: 分類タグ (最大5件)
JSONのみで答えてください。`

// testContentMarkers short-circuits obvious throwaway input before any
// gateway call.
var testContentMarkers = []string{"テスト", "てすと", "test", "あああ", "aaa"}

func (d *distiller) Distill(ctx context.Context, sanitizedText string) (*InsightDraft, error) {
	text := strings.TrimSpace(sanitizedText)
	if text == "" {
		return nil, &InvalidInputError{Reason: "empty text"}
	}
	if len([]rune(text)) < 10 {
		return nil, ErrNotSuitable
	}
	lower := strings.ToLower(text)
	for _, m := range testContentMarkers {
		if lower == m {
			return nil, ErrNotSuitable
		}
	}

	raw, err := d.ai.WithTier(openai.TierBalanced).GenerateJSON(ctx, distillSystemPrompt, text, "insight_draft", distillSchema)
	if err != nil {
		return nil, err
	}
	if !asBool(raw["suitable"]) {
		return nil, ErrNotSuitable
	}

	draft := &InsightDraft{
		Title:    asString(raw["title"]),
		Context:  asString(raw["context"]),
		Problem:  asString(raw["problem"]),
		Solution: asString(raw["solution"]),
		Summary:  asString(raw["summary"]),
		Topics:   asStringSlice(raw["topics"]),
		Tags:     asStringSlice(raw["tags"]),
	}
	if draft.Title == "" && draft.Summary == "" {
		return nil, ErrNotSuitable
	}
	return draft, nil
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := asString(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}
