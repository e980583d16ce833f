package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

// IntentHypothesis is the router's per-turn belief about what the user
// wants. It is transient: produced fresh each turn and consumed by the
// conversation orchestrator, never persisted beyond the derived intent
// string on the entry.
type IntentHypothesis struct {
	PrevEvaluation      string  `json:"prev_evaluation"`
	PrimaryIntent       string  `json:"primary_intent"`
	PrimaryConfidence   float64 `json:"primary_confidence"`
	SecondaryIntent     string  `json:"secondary_intent,omitempty"`
	SecondaryConfidence float64 `json:"secondary_confidence,omitempty"`
	NeedsProbing        bool    `json:"needs_probing"`
	Reasoning           string  `json:"reasoning,omitempty"`
}

const (
	PrevEvalPositive = "positive"
	PrevEvalNegative = "negative"
	PrevEvalPivot    = "pivot"
	PrevEvalNone     = "none"
)

type IntentRouter interface {
	Classify(ctx context.Context, utterance string, prev *IntentHypothesis) (*IntentHypothesis, error)
}

type intentRouter struct {
	log *logger.Logger
	ai  openai.Client
}

func NewIntentRouter(baseLog *logger.Logger, ai openai.Client) IntentRouter {
	return &intentRouter{
		log: baseLog.With("service", "IntentRouter"),
		ai:  ai,
	}
}

// Keyword tables for the deterministic fallback classifier. Matching is
// substring-based, so conjugated forms like 「疲れました」 still hit their
// dictionary stems.
var intentKeywords = map[entry.Intent][]string{
	entry.IntentStateShare: {
		"眠い", "ねむい", "疲れた", "つかれた", "疲れました", "だるい", "しんどい",
		"忙しい", "暇", "お腹すいた", "腹減った", "元気です", "風邪", "頭痛",
		"tired", "sleepy", "busy", "hungry",
	},
	entry.IntentEmpathy: {
		"つらい", "辛い", "悲しい", "かなしい", "不安", "イライラ", "苛立",
		"落ち込", "泣き", "嬉しい", "うれしい", "最悪", "ムカつく", "怖い",
		"sad", "anxious", "frustrated", "upset",
	},
	entry.IntentKnowledge: {
		"とは", "って何", "ってなに", "教えて", "おしえて", "方法", "やり方",
		"どうやって", "なぜ", "何ですか", "ですか？", "ですか?", "調べて",
		"what is", "how do", "how to", "why does",
	},
	entry.IntentDeepDive: {
		"詳しく", "くわしく", "深掘り", "深堀り", "もっと知りたい", "掘り下げ",
		"具体的に", "背景", "原因", "本質",
		"in detail", "dig deeper", "root cause",
	},
	entry.IntentBrainstorm: {
		"アイデア", "あいであ", "ブレスト", "案を", "案が", "考えたい",
		"どうしたら", "どうすれば", "思いつ", "発想", "壁打ち",
		"brainstorm", "ideas for",
	},
}

// fallbackClassify is the liveness guarantee: a valid hypothesis even when
// the gateway is unreachable. Confidence is capped at 0.7 so an LLM-refined
// hypothesis always outranks a keyword guess; zero matches degrade to a
// low-confidence chat hypothesis with probing requested.
func fallbackClassify(utterance string) *IntentHypothesis {
	norm := strings.ToLower(utterance)

	var bestIntent, secondIntent entry.Intent
	bestHits := 0
	secondHits := 0
	for _, intent := range []entry.Intent{
		entry.IntentStateShare,
		entry.IntentEmpathy,
		entry.IntentKnowledge,
		entry.IntentDeepDive,
		entry.IntentBrainstorm,
	} {
		hits := 0
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(norm, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > bestHits {
			secondIntent, secondHits = bestIntent, bestHits
			bestIntent, bestHits = intent, hits
		} else if hits > secondHits {
			secondIntent, secondHits = intent, hits
		}
	}

	if bestHits == 0 {
		return &IntentHypothesis{
			PrevEvaluation:    PrevEvalNone,
			PrimaryIntent:     string(entry.IntentChat),
			PrimaryConfidence: 0.3,
			NeedsProbing:      true,
			Reasoning:         "no keyword matched",
		}
	}

	conf := 0.45 + 0.1*float64(bestHits)
	if conf > 0.7 {
		conf = 0.7
	}
	h := &IntentHypothesis{
		PrevEvaluation:    PrevEvalNone,
		PrimaryIntent:     string(bestIntent),
		PrimaryConfidence: conf,
		NeedsProbing:      conf < 0.5,
		Reasoning:         "keyword fallback",
	}
	if secondHits > 0 {
		secondConf := 0.45 + 0.1*float64(secondHits)
		if secondConf > conf {
			secondConf = conf
		}
		h.SecondaryIntent = string(secondIntent)
		h.SecondaryConfidence = secondConf
	}
	return h
}

var intentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"prev_evaluation": map[string]any{
			"type": "string",
			"enum": []string{PrevEvalPositive, PrevEvalNegative, PrevEvalPivot, PrevEvalNone},
		},
		"primary_intent":       map[string]any{"type": "string"},
		"primary_confidence":   map[string]any{"type": "number"},
		"secondary_intent":     map[string]any{"type": "string"},
		"secondary_confidence": map[string]any{"type": "number"},
		"needs_probing":        map[string]any{"type": "boolean"},
		"reasoning":            map[string]any{"type": "string"},
	},
	"required": []string{
		"prev_evaluation", "primary_intent", "primary_confidence",
		"secondary_intent", "secondary_confidence", "needs_probing", "reasoning",
	},
	"additionalProperties": false,
}

const intentSystemPrompt = `あなたはユーザー発話の意図を分類するルーターです。
意図は次のいずれかです:
- chat: 雑談・特に目的のない会話
- empathy: 感情の吐露。共感を求めている
- knowledge: 事実・知識についての質問
- deep_dive: 既出の話題を深く掘り下げたい
- brainstorm: アイデアを広げたい・壁打ちしたい
- state_share: 状態・近況の報告（眠い、疲れた、忙しい等）
- probe: 意図が曖昧で確認の質問が必要

前回の応答への評価 (prev_evaluation) も判定してください:
positive / negative / pivot (話題転換) / none。
確信度は 0 から 1 で、primary_confidence >= secondary_confidence を守ること。
JSONのみで答えてください。`

func (r *intentRouter) Classify(ctx context.Context, utterance string, prev *IntentHypothesis) (*IntentHypothesis, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, &InvalidInputError{Reason: "empty utterance"}
	}

	fallback := fallbackClassify(utterance)

	user := "発話: " + utterance
	if prev != nil {
		user += fmt.Sprintf("\n前回の意図: %s (確信度 %.2f)", prev.PrimaryIntent, prev.PrimaryConfidence)
	}

	raw, err := r.ai.WithTier(openai.TierFast).GenerateJSON(ctx, intentSystemPrompt, user, "intent_hypothesis", intentSchema)
	if err != nil {
		r.log.Warn("intent refinement failed, using fallback", "error", err)
		return fallback, nil
	}

	h := hypothesisFromMap(raw)
	if !entry.Intent(h.PrimaryIntent).Valid() {
		r.log.Warn("intent refinement returned unknown intent, using fallback", "intent", h.PrimaryIntent)
		return fallback, nil
	}
	return h, nil
}

// hypothesisFromMap normalizes an LLM classification: confidences clamped
// to [0,1] and secondary never above primary.
func hypothesisFromMap(raw map[string]any) *IntentHypothesis {
	h := &IntentHypothesis{
		PrevEvaluation:      asString(raw["prev_evaluation"]),
		PrimaryIntent:       asString(raw["primary_intent"]),
		PrimaryConfidence:   clamp01(asFloat(raw["primary_confidence"])),
		SecondaryIntent:     asString(raw["secondary_intent"]),
		SecondaryConfidence: clamp01(asFloat(raw["secondary_confidence"])),
		NeedsProbing:        asBool(raw["needs_probing"]),
		Reasoning:           asString(raw["reasoning"]),
	}
	if h.PrevEvaluation == "" {
		h.PrevEvaluation = PrevEvalNone
	}
	if h.SecondaryConfidence > h.PrimaryConfidence {
		h.SecondaryConfidence = h.PrimaryConfidence
	}
	if !entry.Intent(h.SecondaryIntent).Valid() {
		h.SecondaryIntent = ""
		h.SecondaryConfidence = 0
	}
	return h
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
