package services

import (
	"context"
	"errors"
	"testing"
)

func TestDistillShortCircuits(t *testing.T) {
	// The stub errors so any gateway call would fail the test via the
	// returned error; these inputs must never reach it.
	d := NewDistiller(testLogger(t), &stubClient{jsonErr: errors.New("should not be called")})

	cases := []struct {
		name string
		in   string
	}{
		{name: "too_short", in: "眠い"},
		{name: "test_marker_ja", in: "テスト"},
		{name: "test_marker_en", in: "test"},
		{name: "mashed_keys", in: "あああ"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Distill(context.Background(), tc.in)
			if !errors.Is(err, ErrNotSuitable) {
				t.Fatalf("Distill(%q) err=%v, want ErrNotSuitable", tc.in, err)
			}
		})
	}
}

func TestDistillEmptyText(t *testing.T) {
	d := NewDistiller(testLogger(t), &stubClient{})
	_, err := d.Distill(context.Background(), "   ")
	var ie *InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("err=%v, want InvalidInputError", err)
	}
}

func TestDistillPropagatesProviderError(t *testing.T) {
	want := errors.New("rate limited")
	d := NewDistiller(testLogger(t), &stubClient{jsonErr: want})

	_, err := d.Distill(context.Background(), "昨日のリリースで学んだ手順の話をまとめたい")
	if !errors.Is(err, want) {
		t.Fatalf("err=%v, want provider error to propagate", err)
	}
}

func TestDistillUnsuitableVerdict(t *testing.T) {
	d := NewDistiller(testLogger(t), &stubClient{jsonResult: map[string]any{
		"suitable": false,
		"title":    "", "context": "", "problem": "", "solution": "",
		"summary": "", "topics": []any{}, "tags": []any{},
	}})

	_, err := d.Distill(context.Background(), "今日はいい天気で散歩が気持ちよかったです")
	if !errors.Is(err, ErrNotSuitable) {
		t.Fatalf("err=%v, want ErrNotSuitable", err)
	}
}

func TestDistillStructuresSuitableContent(t *testing.T) {
	d := NewDistiller(testLogger(t), &stubClient{jsonResult: map[string]any{
		"suitable": true,
		"title":    "リリース前のチェックリスト",
		"context":  "深夜リリースで確認漏れが続いていた",
		"problem":  "確認項目が暗黙知だった",
		"solution": "チェックリストを作り直前レビューを必須にした",
		"summary":  "確認項目を明文化してリリース事故を減らした",
		"topics":   []any{"リリース", "運用"},
		"tags":     []any{"process", ""},
	}})

	draft, err := d.Distill(context.Background(), "リリース前の確認漏れ対策としてチェックリストを整備した話")
	if err != nil {
		t.Fatalf("Distill: %v", err)
	}
	if draft.Title != "リリース前のチェックリスト" {
		t.Fatalf("Title=%q", draft.Title)
	}
	if len(draft.Topics) != 2 {
		t.Fatalf("Topics=%v, want 2 entries", draft.Topics)
	}
	// Empty strings in arrays are dropped.
	if len(draft.Tags) != 1 || draft.Tags[0] != "process" {
		t.Fatalf("Tags=%v, want [process]", draft.Tags)
	}
}

func TestDistillEmptyDraftIsUnsuitable(t *testing.T) {
	d := NewDistiller(testLogger(t), &stubClient{jsonResult: map[string]any{
		"suitable": true,
		"title":    "", "context": "", "problem": "", "solution": "",
		"summary": "", "topics": []any{}, "tags": []any{},
	}})

	_, err := d.Distill(context.Background(), "十分な長さはあるが中身の薄いテキストです")
	if !errors.Is(err, ErrNotSuitable) {
		t.Fatalf("err=%v, want ErrNotSuitable for empty draft", err)
	}
}
