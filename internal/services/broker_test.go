package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dx-junkyard/plura/internal/domain/insight"
)

func fullDraft() *InsightDraft {
	return &InsightDraft{
		Title:    "朝会の進め方を変えた",
		Context:  "朝会が長引いて作業時間を圧迫していた",
		Problem:  "議題が事前に共有されず脱線が多かった",
		Solution: "前日に議題を書き出し、15分で打ち切るルールにした",
		Summary:  "議題の事前共有と時間制限で朝会が短くなった",
		Topics:   []string{"ミーティング", "チーム運営"},
		Tags:     []string{"process"},
	}
}

func TestRubricScore(t *testing.T) {
	log := testLogger(t)
	san := NewSanitizer(log, &stubClient{textErr: errors.New("offline")})

	cases := []struct {
		name  string
		draft func() *InsightDraft
		text  string
		want  int
	}{
		{
			name:  "full_draft_clean_text",
			draft: fullDraft,
			// 30 base + 5 context + 10 problem + 15 solution + 5 summary
			// + 5 topics + 10 no-PII.
			text: "個人情報のないテキスト",
			want: 80,
		},
		{
			name:  "pii_costs_ten",
			draft: fullDraft,
			text:  "担当の田中さんに聞いた",
			want:  70,
		},
		{
			name: "missing_two_fields_caps_at_40",
			draft: func() *InsightDraft {
				d := fullDraft()
				d.Problem = ""
				d.Solution = ""
				return d
			},
			text: "個人情報のないテキスト",
			want: 40,
		},
		{
			name: "missing_one_field_no_cap",
			draft: func() *InsightDraft {
				d := fullDraft()
				d.Solution = ""
				return d
			},
			text: "個人情報のないテキスト",
			want: 65,
		},
	}

	b := NewSharingBroker(log, &stubClient{jsonErr: errors.New("offline")}, san).(*sharingBroker)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := b.rubricScore(tc.draft(), tc.text)
			if got != tc.want {
				t.Fatalf("rubricScore=%d, want %d", got, tc.want)
			}
		})
	}
}

func TestScoreFallsBackToRubric(t *testing.T) {
	log := testLogger(t)
	san := NewSanitizer(log, &stubClient{})
	b := NewSharingBroker(log, &stubClient{jsonErr: errors.New("gateway down")}, san)

	got := b.Score(context.Background(), fullDraft(), "個人情報のないテキスト")
	if got != 80 {
		t.Fatalf("Score=%d, want rubric 80", got)
	}
}

func TestScoreRejectsOutOfRangeLLMScore(t *testing.T) {
	log := testLogger(t)
	san := NewSanitizer(log, &stubClient{})
	b := NewSharingBroker(log, &stubClient{jsonResult: map[string]any{
		"score":  float64(250),
		"reason": "",
	}}, san)

	got := b.Score(context.Background(), fullDraft(), "個人情報のないテキスト")
	if got != 80 {
		t.Fatalf("Score=%d, want rubric 80 after out-of-range score", got)
	}
}

func TestScoreUsesLLMScore(t *testing.T) {
	log := testLogger(t)
	b := NewSharingBroker(log, &stubClient{jsonResult: map[string]any{
		"score":  float64(92),
		"reason": "reusable and well contextualized",
	}}, NewSanitizer(log, &stubClient{}))

	if got := b.Score(context.Background(), fullDraft(), "text"); got != 92 {
		t.Fatalf("Score=%d, want 92", got)
	}
}

func TestScoreNilDraft(t *testing.T) {
	log := testLogger(t)
	b := NewSharingBroker(log, &stubClient{}, NewSanitizer(log, &stubClient{}))
	if got := b.Score(context.Background(), nil, ""); got != 0 {
		t.Fatalf("Score(nil)=%d, want 0", got)
	}
}

func TestStatusFor(t *testing.T) {
	log := testLogger(t)
	b := NewSharingBroker(log, &stubClient{}, nil)

	if got := b.StatusFor(b.Threshold()); got != insight.StatusPendingApproval {
		t.Fatalf("StatusFor(threshold)=%s, want pending_approval", got)
	}
	if got := b.StatusFor(b.Threshold() - 1); got != insight.StatusDraft {
		t.Fatalf("StatusFor(threshold-1)=%s, want draft", got)
	}
}
