package services

import (
	"context"
	"strings"

	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// SituationCode classifies how a new utterance relates to its thread.
type SituationCode string

const (
	SituationContinue   SituationCode = "CONTINUE"
	SituationSameTopic  SituationCode = "SAME_TOPIC"
	SituationTopicShift SituationCode = "TOPIC_SHIFT"
	SituationCorrection SituationCode = "CORRECTION"
)

func (s SituationCode) Valid() bool {
	switch s {
	case SituationContinue, SituationSameTopic, SituationTopicShift, SituationCorrection:
		return true
	}
	return false
}

type SituationRouter interface {
	ClassifySituation(ctx context.Context, utterance string, history []*entry.Entry) (SituationCode, error)
}

type situationRouter struct {
	log *logger.Logger
	ai  openai.Client
}

func NewSituationRouter(baseLog *logger.Logger, ai openai.Client) SituationRouter {
	return &situationRouter{
		log: baseLog.With("service", "SituationRouter"),
		ai:  ai,
	}
}

// Markers that signal the user is revising something already said.
var correctionMarkers = []string{
	"っていうか", "やっぱり", "やっぱ", "そうじゃなくて", "違う", "ちがう",
	"訂正", "間違え", "まちがえ", "言い直す", "正確には",
	"actually", "i meant", "correction",
}

var topicShiftMarkers = []string{
	"ところで", "話変わる", "話は変わ", "別の話", "そういえば", "あと、",
	"by the way", "unrelated",
}

// fallbackSituation keeps the router alive without the gateway. Correction
// markers win, then explicit shift markers; a short utterance against an
// existing thread reads as staying on topic.
func fallbackSituation(utterance string, historyLen int) SituationCode {
	norm := strings.ToLower(utterance)
	for _, m := range correctionMarkers {
		if strings.Contains(norm, m) {
			return SituationCorrection
		}
	}
	for _, m := range topicShiftMarkers {
		if strings.Contains(norm, m) {
			return SituationTopicShift
		}
	}
	if historyLen > 0 && len([]rune(strings.TrimSpace(utterance))) <= 30 {
		return SituationSameTopic
	}
	return SituationContinue
}

var situationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"situation": map[string]any{
			"type": "string",
			"enum": []string{
				string(SituationContinue), string(SituationSameTopic),
				string(SituationTopicShift), string(SituationCorrection),
			},
		},
		"reason": map[string]any{"type": "string"},
	},
	"required":             []string{"situation", "reason"},
	"additionalProperties": false,
}

const situationSystemPrompt = `会話スレッドに対する新しい発話の関係を分類してください。
- CONTINUE: 直前の流れをそのまま続けている
- SAME_TOPIC: 同じ話題だが新しい角度・追加情報
- TOPIC_SHIFT: 別の話題に移った
- CORRECTION: 既に言ったことの訂正・言い直し
JSONのみで答えてください。`

func (r *situationRouter) ClassifySituation(ctx context.Context, utterance string, history []*entry.Entry) (SituationCode, error) {
	if strings.TrimSpace(utterance) == "" {
		return "", &InvalidInputError{Reason: "empty utterance"}
	}
	// Brand-new thread: nothing to relate to.
	if len(history) == 0 {
		return SituationContinue, nil
	}

	fallback := fallbackSituation(utterance, len(history))

	var b strings.Builder
	b.WriteString("これまでのスレッド:\n")
	for _, e := range tailEntries(history, 5) {
		b.WriteString("- ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n新しい発話: ")
	b.WriteString(utterance)

	raw, err := r.ai.WithTier(openai.TierFast).GenerateJSON(ctx, situationSystemPrompt, b.String(), "situation", situationSchema)
	if err != nil {
		r.log.Warn("situation refinement failed, using fallback", "error", err)
		return fallback, nil
	}
	code := SituationCode(asString(raw["situation"]))
	if !code.Valid() {
		return fallback, nil
	}
	return code, nil
}

func tailEntries(history []*entry.Entry, n int) []*entry.Entry {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
