package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dx-junkyard/plura/internal/domain/entry"
)

func TestFallbackSituation(t *testing.T) {
	cases := []struct {
		name       string
		utterance  string
		historyLen int
		want       SituationCode
	}{
		{
			name:       "correction_marker_wins",
			utterance:  "やっぱり昨日のはなし、違うかも。ところで",
			historyLen: 3,
			want:       SituationCorrection,
		},
		{
			name:       "topic_shift_marker",
			utterance:  "ところで週末の予定なんだけど",
			historyLen: 3,
			want:       SituationTopicShift,
		},
		{
			name:       "english_by_the_way",
			utterance:  "By the way, about the deploy",
			historyLen: 1,
			want:       SituationTopicShift,
		},
		{
			name:       "short_reply_on_thread_is_same_topic",
			utterance:  "それでどうなった？",
			historyLen: 2,
			want:       SituationSameTopic,
		},
		{
			name:       "long_unmarked_utterance_continues",
			utterance:  "昨日のミーティングで決まった方針について、実装の段取りをもう少し整理したいと思っています。まずはデータ層からです。",
			historyLen: 2,
			want:       SituationContinue,
		},
		{
			name:       "no_history_continues",
			utterance:  "短い",
			historyLen: 0,
			want:       SituationContinue,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := fallbackSituation(tc.utterance, tc.historyLen)
			if got != tc.want {
				t.Fatalf("fallbackSituation(%q, %d)=%s, want %s", tc.utterance, tc.historyLen, got, tc.want)
			}
		})
	}
}

func TestClassifySituationEmptyHistory(t *testing.T) {
	r := NewSituationRouter(testLogger(t), &stubClient{jsonErr: errors.New("should not be called")})
	code, err := r.ClassifySituation(context.Background(), "はじめまして", nil)
	if err != nil {
		t.Fatalf("ClassifySituation: %v", err)
	}
	if code != SituationContinue {
		t.Fatalf("code=%s, want CONTINUE", code)
	}
}

func TestClassifySituationFallbackOnGatewayError(t *testing.T) {
	r := NewSituationRouter(testLogger(t), &stubClient{jsonErr: errors.New("gateway down")})
	history := []*entry.Entry{{Content: "昨日のリリースの話"}}

	code, err := r.ClassifySituation(context.Background(), "そうじゃなくて、ステージングの方", history)
	if err != nil {
		t.Fatalf("ClassifySituation: %v", err)
	}
	if code != SituationCorrection {
		t.Fatalf("code=%s, want CORRECTION", code)
	}
}

func TestClassifySituationInvalidCodeFallsBack(t *testing.T) {
	r := NewSituationRouter(testLogger(t), &stubClient{jsonResult: map[string]any{
		"situation": "SIDEWAYS",
		"reason":    "",
	}})
	history := []*entry.Entry{{Content: "前の話"}}

	code, err := r.ClassifySituation(context.Background(), "うん", history)
	if err != nil {
		t.Fatalf("ClassifySituation: %v", err)
	}
	if code != SituationSameTopic {
		t.Fatalf("code=%s, want SAME_TOPIC fallback", code)
	}
}

func TestClassifySituationEmptyUtterance(t *testing.T) {
	r := NewSituationRouter(testLogger(t), &stubClient{})
	_, err := r.ClassifySituation(context.Background(), "", nil)
	var ie *InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("err=%v, want InvalidInputError", err)
	}
}
