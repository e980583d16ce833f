package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dx-junkyard/plura/internal/domain/entry"
)

func TestFallbackClassify(t *testing.T) {
	cases := []struct {
		name         string
		utterance    string
		wantIntent   string
		wantConf     float64
		wantProbing  bool
		wantSecond   string
	}{
		{
			name:        "sleepy_state_share",
			utterance:   "今日はとても眠い",
			wantIntent:  string(entry.IntentStateShare),
			wantConf:    0.55,
			wantProbing: false,
		},
		{
			name:        "conjugated_tired",
			utterance:   "疲れましたね",
			wantIntent:  string(entry.IntentStateShare),
			wantConf:    0.55,
			wantProbing: false,
		},
		{
			name:        "knowledge_question",
			utterance:   "RAGとは何ですか？",
			wantIntent:  string(entry.IntentKnowledge),
			wantConf:    0.7,
			wantProbing: false,
		},
		{
			name:        "no_match_degrades_to_chat",
			utterance:   "ほほう",
			wantIntent:  string(entry.IntentChat),
			wantConf:    0.3,
			wantProbing: true,
		},
		{
			name:        "many_hits_cap_at_070",
			utterance:   "眠いし疲れただるいしんどい忙しい",
			wantIntent:  string(entry.IntentStateShare),
			wantConf:    0.7,
			wantProbing: false,
		},
		{
			name:        "mixed_keywords_yield_secondary",
			utterance:   "疲れたのでリフレッシュのアイデアを教えて",
			wantIntent:  string(entry.IntentStateShare),
			wantConf:    0.55,
			wantProbing: false,
			wantSecond:  string(entry.IntentKnowledge),
		},
		{
			name:        "english_brainstorm",
			utterance:   "let's brainstorm a bit",
			wantIntent:  string(entry.IntentBrainstorm),
			wantConf:    0.55,
			wantProbing: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := fallbackClassify(tc.utterance)
			if h.PrimaryIntent != tc.wantIntent {
				t.Fatalf("fallbackClassify(%q).PrimaryIntent=%q, want %q", tc.utterance, h.PrimaryIntent, tc.wantIntent)
			}
			if diff := h.PrimaryConfidence - tc.wantConf; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("PrimaryConfidence=%v, want %v", h.PrimaryConfidence, tc.wantConf)
			}
			if h.NeedsProbing != tc.wantProbing {
				t.Fatalf("NeedsProbing=%v, want %v", h.NeedsProbing, tc.wantProbing)
			}
			if tc.wantSecond != "" && h.SecondaryIntent != tc.wantSecond {
				t.Fatalf("SecondaryIntent=%q, want %q", h.SecondaryIntent, tc.wantSecond)
			}
			if h.SecondaryConfidence > h.PrimaryConfidence {
				t.Fatalf("secondary confidence %v exceeds primary %v", h.SecondaryConfidence, h.PrimaryConfidence)
			}
		})
	}
}

func TestClassifyEmptyUtterance(t *testing.T) {
	r := NewIntentRouter(testLogger(t), &stubClient{})
	_, err := r.Classify(context.Background(), "   ", nil)
	var ie *InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("Classify(empty) err=%v, want InvalidInputError", err)
	}
}

func TestClassifyFallsBackWhenGatewayFails(t *testing.T) {
	stub := &stubClient{jsonErr: errors.New("gateway down")}
	r := NewIntentRouter(testLogger(t), stub)

	h, err := r.Classify(context.Background(), "眠い", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if h.PrimaryIntent != string(entry.IntentStateShare) {
		t.Fatalf("PrimaryIntent=%q, want state_share", h.PrimaryIntent)
	}
	if h.Reasoning != "keyword fallback" {
		t.Fatalf("Reasoning=%q, want keyword fallback", h.Reasoning)
	}
}

func TestClassifyFallsBackOnUnknownIntent(t *testing.T) {
	stub := &stubClient{jsonResult: map[string]any{
		"prev_evaluation":      "none",
		"primary_intent":       "galaxy_brain",
		"primary_confidence":   0.9,
		"secondary_intent":     "",
		"secondary_confidence": 0.0,
		"needs_probing":        false,
		"reasoning":            "",
	}}
	r := NewIntentRouter(testLogger(t), stub)

	h, err := r.Classify(context.Background(), "眠い", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if h.PrimaryIntent != string(entry.IntentStateShare) {
		t.Fatalf("PrimaryIntent=%q, want fallback state_share", h.PrimaryIntent)
	}
}

func TestClassifyUsesRefinedHypothesis(t *testing.T) {
	stub := &stubClient{jsonResult: map[string]any{
		"prev_evaluation":      "positive",
		"primary_intent":       string(entry.IntentDeepDive),
		"primary_confidence":   0.85,
		"secondary_intent":     string(entry.IntentKnowledge),
		"secondary_confidence": 0.4,
		"needs_probing":        false,
		"reasoning":            "explicit dig-deeper request",
	}}
	r := NewIntentRouter(testLogger(t), stub)

	h, err := r.Classify(context.Background(), "さっきの話、もっと詳しく", &IntentHypothesis{
		PrimaryIntent:     string(entry.IntentKnowledge),
		PrimaryConfidence: 0.6,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if h.PrimaryIntent != string(entry.IntentDeepDive) {
		t.Fatalf("PrimaryIntent=%q, want deep_dive", h.PrimaryIntent)
	}
	if h.PrevEvaluation != PrevEvalPositive {
		t.Fatalf("PrevEvaluation=%q, want positive", h.PrevEvaluation)
	}
}

func TestHypothesisFromMapNormalization(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]any
		want IntentHypothesis
	}{
		{
			name: "clamps_out_of_range_confidence",
			raw: map[string]any{
				"primary_intent":     string(entry.IntentChat),
				"primary_confidence": 1.7,
			},
			want: IntentHypothesis{
				PrevEvaluation:    PrevEvalNone,
				PrimaryIntent:     string(entry.IntentChat),
				PrimaryConfidence: 1.0,
			},
		},
		{
			name: "secondary_capped_at_primary",
			raw: map[string]any{
				"primary_intent":       string(entry.IntentEmpathy),
				"primary_confidence":   0.6,
				"secondary_intent":     string(entry.IntentChat),
				"secondary_confidence": 0.9,
			},
			want: IntentHypothesis{
				PrevEvaluation:      PrevEvalNone,
				PrimaryIntent:       string(entry.IntentEmpathy),
				PrimaryConfidence:   0.6,
				SecondaryIntent:     string(entry.IntentChat),
				SecondaryConfidence: 0.6,
			},
		},
		{
			name: "invalid_secondary_dropped",
			raw: map[string]any{
				"primary_intent":       string(entry.IntentKnowledge),
				"primary_confidence":   0.8,
				"secondary_intent":     "nonsense",
				"secondary_confidence": 0.5,
			},
			want: IntentHypothesis{
				PrevEvaluation:    PrevEvalNone,
				PrimaryIntent:     string(entry.IntentKnowledge),
				PrimaryConfidence: 0.8,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := hypothesisFromMap(tc.raw)
			if got.PrimaryIntent != tc.want.PrimaryIntent ||
				got.PrimaryConfidence != tc.want.PrimaryConfidence ||
				got.SecondaryIntent != tc.want.SecondaryIntent ||
				got.SecondaryConfidence != tc.want.SecondaryConfidence ||
				got.PrevEvaluation != tc.want.PrevEvaluation {
				t.Fatalf("hypothesisFromMap=%+v, want %+v", got, tc.want)
			}
		})
	}
}
