package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func newTestResearch(t *testing.T, ai *stubClient) ResearchService {
	t.Helper()
	return NewResearchService(testLogger(t), ai, nil, nil, nil)
}

func TestQueryHashNormalization(t *testing.T) {
	s := newTestResearch(t, &stubClient{})

	base := s.QueryHash("RAG の評価方法")
	cases := []struct {
		name string
		in   string
		same bool
	}{
		{name: "leading_trailing_space", in: "  RAG の評価方法  ", same: true},
		{name: "case_folded", in: "rag の評価方法", same: true},
		{name: "collapsed_whitespace", in: "RAG \t の\n評価方法", same: false},
		{name: "different_query", in: "RAG の構築方法", same: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.QueryHash(tc.in)
			if (got == base) != tc.same {
				t.Fatalf("QueryHash(%q) same=%v, want %v", tc.in, got == base, tc.same)
			}
		})
	}

	// Whitespace runs collapse to one space, so splitting the same tokens
	// differently still lands on one slot.
	if s.QueryHash("how to  evaluate   rag") != s.QueryHash("how to evaluate rag") {
		t.Fatal("whitespace runs changed the hash")
	}
}

func TestProposePlanFallback(t *testing.T) {
	s := newTestResearch(t, &stubClient{jsonErr: errors.New("gateway down")})

	plan, err := s.ProposePlan(context.Background(), "チームの朝会を短くする方法")
	if err != nil {
		t.Fatalf("ProposePlan: %v", err)
	}
	if !strings.HasSuffix(plan.Title, "の調査") {
		t.Fatalf("Title=%q, want fallback title", plan.Title)
	}
	if len(plan.Perspectives) != 3 {
		t.Fatalf("Perspectives=%v, want 3 fallback perspectives", plan.Perspectives)
	}
	if plan.Digest == "" {
		t.Fatal("fallback plan has no digest")
	}
	if !s.VerifyPlan(plan) {
		t.Fatal("freshly proposed plan failed verification")
	}
}

func TestProposePlanUsesGeneratedFields(t *testing.T) {
	s := newTestResearch(t, &stubClient{jsonResult: map[string]any{
		"title":        "朝会改善の調べもの",
		"topic":        "ミーティング運営",
		"scope":        "社内で再現できる施策のみ",
		"perspectives": []any{"時間配分", "議題設計"},
	}})

	plan, err := s.ProposePlan(context.Background(), "チームの朝会を短くする方法")
	if err != nil {
		t.Fatalf("ProposePlan: %v", err)
	}
	if plan.Title != "朝会改善の調べもの" {
		t.Fatalf("Title=%q", plan.Title)
	}
	if len(plan.Perspectives) != 2 {
		t.Fatalf("Perspectives=%v", plan.Perspectives)
	}
	if !s.VerifyPlan(plan) {
		t.Fatal("generated plan failed verification")
	}
}

func TestProposePlanEmptyQuery(t *testing.T) {
	s := newTestResearch(t, &stubClient{})
	_, err := s.ProposePlan(context.Background(), " ")
	var ie *InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("err=%v, want InvalidInputError", err)
	}
}

func TestVerifyPlanRejectsTampering(t *testing.T) {
	s := newTestResearch(t, &stubClient{jsonErr: errors.New("offline")})

	plan, err := s.ProposePlan(context.Background(), "評価基準の作り方")
	if err != nil {
		t.Fatalf("ProposePlan: %v", err)
	}

	t.Run("scope_edit", func(t *testing.T) {
		tampered := *plan
		tampered.Scope = "なんでも調べる"
		if s.VerifyPlan(&tampered) {
			t.Fatal("edited scope passed verification")
		}
	})

	t.Run("perspective_reorder", func(t *testing.T) {
		tampered := *plan
		tampered.Perspectives = []string{plan.Perspectives[1], plan.Perspectives[0], plan.Perspectives[2]}
		if s.VerifyPlan(&tampered) {
			t.Fatal("reordered perspectives passed verification")
		}
	})

	t.Run("missing_digest", func(t *testing.T) {
		tampered := *plan
		tampered.Digest = ""
		if s.VerifyPlan(&tampered) {
			t.Fatal("empty digest passed verification")
		}
	})

	if s.VerifyPlan(nil) {
		t.Fatal("nil plan passed verification")
	}
}

func TestVerifyPlanRejectsForgedDigest(t *testing.T) {
	t.Setenv("PLAN_DIGEST_SECRET", "server-only")
	s := newTestResearch(t, &stubClient{jsonErr: errors.New("offline")})

	plan, err := s.ProposePlan(context.Background(), "評価基準の作り方")
	if err != nil {
		t.Fatalf("ProposePlan: %v", err)
	}

	// A client that knows the field layout can compute an unkeyed hash,
	// but not the keyed one.
	forged := *plan
	forged.Scope = "なんでも調べる"
	h := sha256.New()
	for _, part := range []string{forged.Title, forged.Topic, forged.Scope, strings.Join(forged.Perspectives, "\x1f"), forged.SanitizedQuery} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	forged.Digest = hex.EncodeToString(h.Sum(nil))
	if s.VerifyPlan(&forged) {
		t.Fatal("unkeyed digest passed verification")
	}

	badHex := *plan
	badHex.Digest = "not-hex"
	if s.VerifyPlan(&badHex) {
		t.Fatal("malformed digest passed verification")
	}

	if !s.VerifyPlan(plan) {
		t.Fatal("untouched plan failed verification")
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	s := newTestResearch(t, &stubClient{})
	if _, err := s.Execute(context.Background(), nil); err == nil {
		t.Fatal("Execute(nil) succeeded")
	}
	if _, err := s.Execute(context.Background(), &ResearchPlan{}); err == nil {
		t.Fatal("Execute(empty query) succeeded")
	}
}

func TestExecuteBuildsReport(t *testing.T) {
	ai := &stubClient{textResult: "調査結果の本文"}
	s := newTestResearch(t, ai)

	plan := &ResearchPlan{
		Title:          "調査",
		Topic:          "t",
		SanitizedQuery: "評価基準の作り方",
		Perspectives:   []string{"観点A", "観点B"},
	}
	out, err := s.Execute(context.Background(), plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["report"] != "調査結果の本文" {
		t.Fatalf("report=%v", out["report"])
	}
	if out["query_hash"] == "" {
		t.Fatal("query_hash missing")
	}
	// Two perspective passes plus the merge.
	if n := ai.textCalls.Load(); n != 3 {
		t.Fatalf("textCalls=%d, want 3", n)
	}
}

func TestLookupCacheWithoutBackends(t *testing.T) {
	s := newTestResearch(t, &stubClient{})
	if _, hit := s.LookupCache(context.Background(), ""); hit {
		t.Fatal("empty hash reported a hit")
	}
	if _, hit := s.LookupCache(context.Background(), s.QueryHash("q")); hit {
		t.Fatal("hit with no cache backends")
	}
}
