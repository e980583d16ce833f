package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/domain/user"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
	"github.com/dx-junkyard/plura/internal/platform/openai"
)

func formatHistory(history []*entry.Entry, n int) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("これまでの会話:\n")
	for _, e := range tailEntries(history, n) {
		b.WriteString("ユーザー: ")
		b.WriteString(e.Content)
		b.WriteString("\n")
		if e.AssistantReply != nil && *e.AssistantReply != "" {
			b.WriteString("アシスタント: ")
			b.WriteString(*e.AssistantReply)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// chatNode handles small talk and low-confidence turns. When the router
// asked for probing it turns the reply into a clarifying question.
type chatNode struct {
	log *logger.Logger
	ai  openai.Client
}

const chatPrompt = `あなたは気さくな対話パートナーです。短く自然に日本語で応答してください。`

const probePrompt = `ユーザーの意図がはっきりしません。雑談・相談・質問のどれに近いかを
確かめる、押し付けがましくない確認の質問を1つだけ日本語でしてください。`

func (n *chatNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	system := chatPrompt
	if st.Hypothesis.NeedsProbing && st.Hypothesis.PrimaryConfidence < 0.5 {
		system = probePrompt
	}
	reply, err := n.ai.WithTier(openai.TierFast).GenerateText(ctx, system, formatHistory(st.History, 5)+"\nユーザー: "+st.Utterance)
	if err != nil {
		return nil, err
	}
	return &TurnResult{Reply: strings.TrimSpace(reply)}, nil
}

type empathyNode struct {
	log *logger.Logger
	ai  openai.Client
}

const empathyPrompt = `ユーザーは気持ちを吐き出しています。助言よりもまず受け止めて、
気持ちに寄り添う短い応答を日本語でしてください。`

func (n *empathyNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	reply, err := n.ai.WithTier(openai.TierBalanced).GenerateText(ctx, empathyPrompt, formatHistory(st.History, 3)+"\nユーザー: "+st.Utterance)
	if err != nil {
		return nil, err
	}
	return &TurnResult{Reply: strings.TrimSpace(reply)}, nil
}

// knowledgeNode answers factual questions directly, offering the deep
// research flow when the answer runs long or hedges.
type knowledgeNode struct {
	log *logger.Logger
	ai  openai.Client
}

const knowledgePrompt = `ユーザーの質問に日本語で簡潔かつ正確に答えてください。
わからないことは正直にわからないと言ってください。`

var uncertaintyMarkers = []string{"わかりません", "分かりません", "情報が限られ", "一概には", "場合によります", "諸説"}

func (n *knowledgeNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	reply, err := n.ai.WithTier(openai.TierBalanced).GenerateText(ctx, knowledgePrompt, formatHistory(st.History, 5)+"\n質問: "+st.Utterance)
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	result := &TurnResult{Reply: reply}
	if answerSuggestsResearch(reply) {
		result.RequiresResearchConsent = true
		result.Reply += "\n\nこのテーマは詳しく調査できます。調査を始めますか？"
	}
	return result, nil
}

// answerSuggestsResearch is the complexity heuristic: a long answer or a
// hedged one suggests the question deserves a proper investigation.
func answerSuggestsResearch(reply string) bool {
	if len([]rune(reply)) > 600 {
		return true
	}
	for _, m := range uncertaintyMarkers {
		if strings.Contains(reply, m) {
			return true
		}
	}
	return false
}

type deepDiveNode struct {
	log *logger.Logger
	ai  openai.Client
}

const deepDivePrompt = `ユーザーは1つのテーマを深く掘り下げようとしています。
会話の流れを踏まえ、論点を1段階深める視点や問いを日本語で返してください。
選択肢を広げるのではなく、絞り込む手伝いをしてください。`

func (n *deepDiveNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	reply, err := n.ai.WithTier(openai.TierDeep).GenerateText(ctx, deepDivePrompt, formatHistory(st.History, 8)+"\nユーザー: "+st.Utterance)
	if err != nil {
		return nil, err
	}
	return &TurnResult{Reply: strings.TrimSpace(reply)}, nil
}

type brainstormNode struct {
	log *logger.Logger
	ai  openai.Client
}

const brainstormPrompt = `ユーザーはアイデアを広げたがっています。壁打ち相手として、
視点の異なるアイデアを3つほど日本語で出してください。評価はまだしないでください。`

func (n *brainstormNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	reply, err := n.ai.WithTier(openai.TierBalanced).GenerateText(ctx, brainstormPrompt, formatHistory(st.History, 5)+"\nユーザー: "+st.Utterance)
	if err != nil {
		return nil, err
	}
	return &TurnResult{Reply: strings.TrimSpace(reply)}, nil
}

// stateAckNode acknowledges a state report and records it. Entries that
// land here bypass both analysis jobs.
type stateAckNode struct {
	log    *logger.Logger
	ai     openai.Client
	states repos.UserStateRepo
}

var stateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"state_type": map[string]any{"type": "string"},
		"value":      map[string]any{"type": "string"},
	},
	"required":             []string{"state_type", "value"},
	"additionalProperties": false,
}

const statePrompt = `ユーザーの状態報告を分類してください。
state_type の例: fatigue(疲労・眠気), mood(気分), health(体調), schedule(多忙・予定)。
value には報告内容を短い言葉で入れてください。JSONのみで答えてください。`

func (n *stateAckNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	result := &TurnResult{SkipAnalysis: true}

	stateType, value := "mood", strings.TrimSpace(st.Utterance)
	if raw, err := n.ai.WithTier(openai.TierFast).GenerateJSON(ctx, statePrompt, st.Utterance, "user_state", stateSchema); err == nil {
		if t := asString(raw["state_type"]); t != "" {
			stateType = t
		}
		if v := asString(raw["value"]); v != "" {
			value = v
		}
	}

	if n.states != nil && st.Entry != nil {
		s := &user.State{
			UserID:    st.UserID,
			StateType: stateType,
			Value:     value,
			EntryID:   st.Entry.ID,
		}
		if err := n.states.Create(dbctx.Context{Ctx: ctx}, s); err != nil {
			n.log.Warn("user state persist failed", "error", err)
		}
	}

	result.Reply = stateAckReply(stateType)
	return result, nil
}

func stateAckReply(stateType string) string {
	switch stateType {
	case "fatigue":
		return "お疲れさまです。無理せず休んでくださいね。記録しておきました。"
	case "health":
		return "体調、お大事にしてください。記録しておきました。"
	case "schedule":
		return "忙しそうですね。記録しておきました。"
	default:
		return "記録しておきました。"
	}
}

// summarizeNode condenses a long thread map-reduce style: each entry is
// summarized independently, then the partials merge into one summary. The
// chunking bounds the tokens any single call sees.
type summarizeNode struct {
	log *logger.Logger
	ai  openai.Client
}

const mapPrompt = `次の記録を1〜2文の日本語で要約してください。`

const reducePrompt = `断片的な要約を、話の流れがわかる1つの要約に日本語で統合してください。
最後に「現在の論点」を1文で添えてください。`

const summarizeChunkRunes = 2000

func (n *summarizeNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	if len(st.History) == 0 {
		return &TurnResult{Reply: "まだ要約できる記録がありません。"}, nil
	}

	chunks := chunkEntries(st.History, summarizeChunkRunes)
	partials := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			out, err := n.ai.WithTier(openai.TierFast).GenerateText(gctx, mapPrompt, chunk)
			if err != nil {
				return err
			}
			partials[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(partials) == 1 {
		return &TurnResult{Reply: partials[0]}, nil
	}
	merged, err := n.ai.WithTier(openai.TierBalanced).GenerateText(ctx, reducePrompt, strings.Join(partials, "\n- "))
	if err != nil {
		return nil, err
	}
	return &TurnResult{Reply: strings.TrimSpace(merged)}, nil
}

// chunkEntries groups consecutive entries so each chunk stays under the
// rune budget. A single oversized entry still forms its own chunk.
func chunkEntries(history []*entry.Entry, budget int) []string {
	var chunks []string
	var b strings.Builder
	size := 0
	for _, e := range history {
		r := len([]rune(e.Content))
		if size > 0 && size+r > budget {
			chunks = append(chunks, b.String())
			b.Reset()
			size = 0
		}
		b.WriteString(e.Content)
		b.WriteString("\n")
		size += r
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// researchProposalNode is phase 1 of the deep-research flow: generate a
// plan and return it without starting execution.
type researchProposalNode struct {
	log      *logger.Logger
	research ResearchService
}

func (n *researchProposalNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	plan, err := n.research.ProposePlan(ctx, st.Utterance)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("次の計画で調査します。よろしければ実行を確定してください。\n\n")
	fmt.Fprintf(&b, "【%s】\nトピック: %s\nスコープ: %s\n観点:\n", plan.Title, plan.Topic, plan.Scope)
	for _, p := range plan.Perspectives {
		b.WriteString("- ")
		b.WriteString(p)
		b.WriteString("\n")
	}

	return &TurnResult{
		Reply:                   b.String(),
		RequiresResearchConsent: true,
		ResearchPlan:            plan,
	}, nil
}

// researchExecuteNode is phase 2: it runs only with a confirmed,
// digest-verified plan. A cache hit answers synchronously; otherwise it
// pre-creates the result entry and enqueues the heavy-lane job.
type researchExecuteNode struct {
	log      *logger.Logger
	research ResearchService
	entries  repos.EntryRepo
	jobRuns  repos.JobRunRepo
}

func (n *researchExecuteNode) Run(ctx context.Context, st *TurnState) (*TurnResult, error) {
	plan := st.Flags.ResearchPlan
	if !st.Flags.ResearchPlanConfirmed || plan == nil || !n.research.VerifyPlan(plan) {
		// Two-phase gate: no confirmed plan, no task.
		return &TurnResult{
			Reply: "確定済みの調査計画が見つかりませんでした。もう一度、調査の提案からやり直してください。",
		}, nil
	}

	dbc := dbctx.Context{Ctx: ctx}
	queryHash := n.research.QueryHash(plan.SanitizedQuery)

	if cached, hit := n.research.LookupCache(ctx, queryHash); hit {
		reply := asString(cached["report"])
		if reply == "" {
			reply = asString(cached["summary"])
		}
		return &TurnResult{
			Reply:      "過去の調査結果が見つかりました。\n\n" + reply,
			IsCacheHit: true,
		}, nil
	}

	threadID := st.Entry.RootThreadID()
	resultEntry := &entry.Entry{
		UserID:      st.UserID,
		ThreadID:    &threadID,
		Content:     "🔬 調査中: " + plan.Title,
		ContentType: entry.ContentTypeText,
		Intent:      string(entry.IntentResearch),
	}
	if err := n.entries.Create(dbc, resultEntry); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"plan":            plan,
		"result_entry_id": resultEntry.ID.String(),
		"query_hash":      queryHash,
	})
	if err != nil {
		return nil, err
	}
	runs, err := n.jobRuns.Create(dbc, []*jobs.JobRun{{
		OwnerUserID: st.UserID,
		JobType:     jobs.TypeDeepResearch,
		EntityType:  "entry",
		EntityID:    &resultEntry.ID,
		ThreadID:    &threadID,
		Payload:     datatypes.JSON(payload),
	}})
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		Reply: "調査を開始しました。完了までしばらくお待ちください。",
		Task: &TaskHandle{
			TaskID:      runs[0].ID,
			Type:        jobs.TypeDeepResearch,
			Status:      runs[0].Status,
			ResultLogID: resultEntry.ID,
		},
	}, nil
}
