package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/fetch"
	"github.com/scourlabs/scour/pkg/llm"
	"github.com/scourlabs/scour/pkg/models"
	"github.com/scourlabs/scour/pkg/search"
)

// callKind classifies an LLM request by the system prompt it carries, so the
// scripted fake can answer each call type independently.
func callKind(req llm.Request) string {
	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			system = m.Content
		case models.RoleUser:
			user = m.Content
		}
	}
	switch {
	case strings.Contains(system, "systematic research planner"):
		return "queries"
	case strings.Contains(system, "strict and concise evaluator"):
		return "useful"
	case strings.Contains(system, "expert in extracting"):
		return "extract"
	case strings.Contains(system, "writer to write a research report"):
		return "writing"
	case strings.Contains(system, "skilled report writer"):
		return "report"
	case strings.Contains(user, "Current Research Plan:"):
		return "judge"
	default:
		return "plan"
	}
}

// scriptedLLM answers each call kind from a fixed script, one reply per call.
// The last reply of a script repeats once exhausted.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  map[string][]string
	errs     map[string]error
	calls    map[string]int
	requests []llm.Request
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		replies: make(map[string][]string),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (s *scriptedLLM) script(kind string, replies ...string) {
	s.replies[kind] = replies
}

func (s *scriptedLLM) failOn(kind string, err error) {
	s.errs[kind] = err
}

func (s *scriptedLLM) next(req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := callKind(req)
	s.requests = append(s.requests, req)
	n := s.calls[kind]
	s.calls[kind] = n + 1
	if err := s.errs[kind]; err != nil {
		return "", err
	}
	replies := s.replies[kind]
	if len(replies) == 0 {
		return "", fmt.Errorf("no scripted reply for %q call", kind)
	}
	if n >= len(replies) {
		n = len(replies) - 1
	}
	return replies[n], nil
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.next(req)
}

func (s *scriptedLLM) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := s.next(req)
	if err != nil {
		return nil, err
	}
	out := make(chan llm.StreamChunk, 2)
	if half := len(text) / 2; half > 0 {
		out <- llm.StreamChunk{Text: text[:half]}
		out <- llm.StreamChunk{Text: text[half:]}
	} else {
		out <- llm.StreamChunk{Text: text}
	}
	close(out)
	return out, nil
}

func (s *scriptedLLM) callCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

func (s *scriptedLLM) requestsOf(kind string) []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reqs []llm.Request
	for _, r := range s.requests {
		if callKind(r) == kind {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]search.Result
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	results := f.results[query]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

type fakePages struct {
	mu      sync.Mutex
	texts   map[string]string
	err     error
	block   chan struct{}
	fetched []string
}

func (f *fakePages) Fetch(ctx context.Context, rawURL string, useHosted bool) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, rawURL)
	block := f.block
	err := f.err
	text := f.texts[rawURL]
	f.mu.Unlock()

	if block != nil {
		select {
		case block <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (f *fakePages) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// fakeStore keeps deep copies of every successful save so tests can inspect
// the exact state that would have been persisted.
type fakeStore struct {
	mu       sync.Mutex
	attempts int
	failOn   int
	saves    []models.Session
}

func (f *fakeStore) Save(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failOn > 0 && f.attempts == f.failOn {
		return errors.New("store unavailable")
	}
	clone, err := cloneSession(session)
	if err != nil {
		return err
	}
	f.saves = append(f.saves, *clone)
	return nil
}

func (f *fakeStore) last() *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return nil
	}
	s := f.saves[len(f.saves)-1]
	return &s
}

func cloneSession(s *models.Session) (*models.Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var clone models.Session
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

type runHarness struct {
	llm      *scriptedLLM
	searcher *fakeSearcher
	pages    *fakePages
	store    *fakeStore
	orch     *Orchestrator
}

func newHarness() *runHarness {
	h := &runHarness{
		llm:      newScriptedLLM(),
		searcher: &fakeSearcher{results: map[string][]search.Result{}},
		pages:    &fakePages{texts: map[string]string{}},
		store:    &fakeStore{},
	}
	h.orch = NewOrchestrator(&config.Config{}, h.llm, h.searcher, h.pages, fetch.NewAdmission(4, 0), h.store)
	return h
}

func testSession(maxIter int, planning bool) *models.Session {
	return models.NewSession("impact of heat pumps on grid load", "", "user-1", models.Settings{
		MaxIterations:  maxIter,
		MaxSearchItems: 4,
		DefaultModel:   "general",
		ReasonModel:    "reason",
		WithPlanning:   planning,
	})
}

func collect(ch <-chan Chunk) []Chunk {
	var chunks []Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func chunksOfKind(chunks []Chunk, kind ChunkKind) []Chunk {
	var matched []Chunk
	for _, c := range chunks {
		if c.Kind == kind {
			matched = append(matched, c)
		}
	}
	return matched
}

func textsOfKind(chunks []Chunk, kind ChunkKind) []string {
	var texts []string
	for _, c := range chunksOfKind(chunks, kind) {
		texts = append(texts, c.Text)
	}
	return texts
}

func TestRunCompletesTwoIterations(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "<think>mapping the topic</think>Plan: survey grid impact studies.")
	h.llm.script("queries", `["heat pump grid load", "heat pump cop winter"]`, `["grid reinforcement costs"]`)
	h.llm.script("judge", "Plan: dig into reinforcement costs.", "<done>")
	h.llm.script("useful", "Yes")
	h.llm.script("extract", "Heat pumps raise winter peak load by 30%.")
	h.llm.script("writing", "Outline: load growth, costs, mitigation.")
	h.llm.script("report", strings.Repeat("Heat pumps shift grid load toward winter peaks. ", 10))

	h.searcher.results["heat pump grid load"] = []search.Result{
		{URL: "https://a.example/grid", Title: "Grid"},
		{URL: "https://b.example/cop", Title: "COP"},
	}
	h.searcher.results["heat pump cop winter"] = []search.Result{
		{URL: "https://b.example/cop", Title: "COP"},
	}
	h.searcher.results["grid reinforcement costs"] = []search.Result{
		{URL: "https://c.example/costs", Title: "Costs"},
	}
	h.pages.texts["https://a.example/grid"] = "grid study text"
	h.pages.texts["https://b.example/cop"] = "cop study text"
	h.pages.texts["https://c.example/costs"] = "cost study text"

	session := testSession(5, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	require.NotEmpty(t, chunks)
	assert.Equal(t, ChunkSessionID, chunks[0].Kind)
	assert.Equal(t, session.SessionID, chunks[0].Text)
	assert.Equal(t, ChunkTerminal, chunks[len(chunks)-1].Kind)
	assert.Equal(t, "Research session completed.", chunks[len(chunks)-1].Text)

	assert.Equal(t, models.StatusCompleted, session.Status)
	require.NotNil(t, session.FinalReport)
	require.NotNil(t, session.EndTime)
	require.Len(t, session.Iterations, 2)
	assert.Equal(t, 1, session.Iterations[0].Iteration)
	assert.Equal(t, 2, session.Iterations[1].Iteration)
	assert.Equal(t, "Plan: survey grid impact studies.", session.Iterations[0].Plan)
	assert.Equal(t, "Plan: dig into reinforcement costs.", session.Iterations[0].NextPlan)
	assert.Equal(t, "Plan: dig into reinforcement costs.", session.Iterations[1].Plan)
	assert.Equal(t, "", session.Iterations[1].NextPlan)
	assert.Equal(t, []string{"heat pump grid load", "heat pump cop winter", "grid reinforcement costs"}, session.Aggregated.Queries)
	assert.Equal(t, 2, session.Aggregated.LastCompletedIteration)

	// b.example surfaced under both queries but is fetched once.
	assert.Len(t, session.Iterations[0].Contexts, 2)
	assert.Len(t, h.pages.urls(), 3)

	contexts := textsOfKind(chunks, ChunkContext)
	assert.Contains(t, contexts, "url:https://a.example/grid\ncontext:Heat pumps raise winter peak load by 30%.")

	judgeReqs := h.llm.requestsOf("judge")
	require.Len(t, judgeReqs, 2)
	assert.Equal(t, "reason", judgeReqs[0].Model)
	queryReqs := h.llm.requestsOf("queries")
	require.Len(t, queryReqs, 2)
	assert.Equal(t, "general", queryReqs[0].Model)

	require.NoError(t, session.Validate())
	last := h.store.last()
	require.NotNil(t, last)
	assert.Equal(t, models.StatusCompleted, last.Status)
}

func TestRunResumesAfterCheckpoint(t *testing.T) {
	h := newHarness()
	session := testSession(5, true)
	session.Iterations = []models.IterationRecord{{
		Iteration: 1,
		StartedAt: time.Now().UTC().Add(-2 * time.Minute),
		EndedAt:   time.Now().UTC().Add(-time.Minute),
		Plan:      "Plan: initial survey.",
		Queries:   []string{"prior query"},
		Contexts:  []models.ContextSummary{{URL: "https://old.example", Query: "prior query", Summary: "old evidence"}},
		NextPlan:  "Plan: focus on costs.",
	}}
	session.Aggregated = models.RecomputeAggregated(session.Iterations)
	session.Status = models.StatusInterrupted
	before := session.Iterations[0]

	h.llm.script("queries", `["cost breakdown"]`)
	h.llm.script("judge", "<done>")
	h.llm.script("useful", "Yes")
	h.llm.script("extract", "Costs are falling year over year.")
	h.llm.script("writing", "Outline: cost trajectory.")
	h.llm.script("report", strings.Repeat("Costs fall as deployments scale. ", 10))
	h.searcher.results["cost breakdown"] = []search.Result{{URL: "https://new.example"}}
	h.pages.texts["https://new.example"] = "cost page"

	chunks := collect(h.orch.Run(context.Background(), session))

	assert.Equal(t, ChunkSessionID, chunks[0].Kind)
	assert.Equal(t, models.StatusCompleted, session.Status)
	require.Len(t, session.Iterations, 2)
	assert.Equal(t, before, session.Iterations[0])
	assert.Equal(t, 2, session.Iterations[1].Iteration)
	assert.Equal(t, "Plan: focus on costs.", session.Iterations[1].Plan)
	assert.Equal(t, 0, h.llm.callCount("plan"))
	assert.Len(t, session.Aggregated.Contexts, 2)
	require.NoError(t, session.Validate())
}

func TestRunQueryDoneSkipsIteration(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: quick look.")
	h.llm.script("queries", "<done>")
	h.llm.script("writing", "Outline: answer directly.")
	h.llm.script("report", strings.Repeat("The question answers itself. ", 10))

	session := testSession(3, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	assert.Empty(t, session.Iterations)
	assert.Equal(t, models.StatusCompleted, session.Status)
	assert.Equal(t, 0, h.llm.callCount("judge"))
	assert.Equal(t, ChunkTerminal, chunks[len(chunks)-1].Kind)
	statuses := strings.Join(textsOfKind(chunks, ChunkStatus), "\n")
	assert.Contains(t, statuses, "No new search queries generated or <done> received")
	require.NoError(t, session.Validate())
}

func TestRunRecordsIterationWithoutLinks(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: niche topic.")
	h.llm.script("queries", `["very obscure query"]`)
	h.llm.script("judge", "<done>")
	h.llm.script("writing", "Outline: caveats first.")
	h.llm.script("report", strings.Repeat("Little direct evidence exists. ", 10))

	session := testSession(3, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	require.Len(t, session.Iterations, 1)
	assert.Empty(t, session.Iterations[0].Contexts)
	assert.Equal(t, []string{"very obscure query"}, session.Iterations[0].Queries)
	assert.Equal(t, models.StatusCompleted, session.Status)

	assert.Contains(t, textsOfKind(chunks, ChunkQuery), "No links found for Query 1/1 ('very obscure query').")
	assert.Contains(t, textsOfKind(chunks, ChunkStatus), "No useful contexts found in this iteration.\n\n")
	require.NoError(t, session.Validate())
}

func TestRunAbsorbsPageFailures(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: flaky sources.")
	h.llm.script("queries", `["flaky query"]`)
	h.llm.script("judge", "<done>")
	h.llm.script("writing", "Outline: note the gaps.")
	h.llm.script("report", strings.Repeat("No available sources survived fetching. ", 10))
	h.searcher.results["flaky query"] = []search.Result{
		{URL: "https://down.example/a"},
		{URL: "https://down.example/b"},
	}
	h.pages.err = fetch.ErrFetchFailed

	session := testSession(3, true)
	collect(h.orch.Run(context.Background(), session))

	require.Len(t, session.Iterations, 1)
	assert.Empty(t, session.Iterations[0].Contexts)
	assert.Equal(t, models.StatusCompleted, session.Status)
	assert.Equal(t, 0, h.llm.callCount("useful"))
}

func TestRunSkipsExtractionWhenPageNotUseful(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: filter noise.")
	h.llm.script("queries", `["query"]`)
	h.llm.script("useful", "<think>wrong topic entirely</think>No")
	h.llm.script("judge", "<done>")
	h.llm.script("writing", "Outline.")
	h.llm.script("report", strings.Repeat("Nothing relevant was found. ", 10))
	h.searcher.results["query"] = []search.Result{{URL: "https://noise.example"}}
	h.pages.texts["https://noise.example"] = "irrelevant text"

	session := testSession(3, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	assert.Equal(t, 0, h.llm.callCount("extract"))
	assert.Empty(t, session.Iterations[0].Contexts)
	assert.Contains(t, textsOfKind(chunks, ChunkStatus), "Page usefulness for https://noise.example: No\n\n")
}

func TestRunJudgeFailureEndsInError(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: start.")
	h.llm.script("queries", `["query"]`)
	h.llm.failOn("judge", errors.New("upstream exploded"))

	session := testSession(3, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	assert.Equal(t, models.StatusError, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Contains(t, *session.ErrorMessage, "failed to judge search results")
	require.NotNil(t, session.EndTime)
	assert.Empty(t, session.Iterations)

	last := chunks[len(chunks)-1]
	assert.Equal(t, ChunkError, last.Kind)
	assert.Contains(t, last.Text, "Error encountered")
	assert.Empty(t, chunksOfKind(chunks, ChunkTerminal))
	require.NoError(t, session.Validate())
}

func TestRunCancellationInterrupts(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: long haul.")
	h.llm.script("queries", `["slow query"]`)
	h.searcher.results["slow query"] = []search.Result{{URL: "https://slow.example"}}
	h.pages.block = make(chan struct{}, 1)

	session := testSession(3, true)
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.orch.Run(ctx, session)

	var chunks []Chunk
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range ch {
			chunks = append(chunks, c)
		}
	}()

	<-h.pages.block
	cancel()
	<-done

	assert.Equal(t, models.StatusInterrupted, session.Status)
	assert.Nil(t, session.EndTime)
	assert.Nil(t, session.ErrorMessage)
	assert.Empty(t, session.Iterations)
	assert.Empty(t, chunksOfKind(chunks, ChunkTerminal))

	last := h.store.last()
	require.NotNil(t, last)
	assert.Equal(t, models.StatusInterrupted, last.Status)
	assert.Equal(t, "Plan: long haul.", last.Aggregated.LastPlan)
	require.NoError(t, session.Validate())
}

func TestRunPlanningDisabled(t *testing.T) {
	h := newHarness()
	h.llm.script("queries", `["direct query"]`, "<done>")
	h.llm.script("useful", "Yes")
	h.llm.script("extract", "Direct evidence.")
	h.llm.script("report", strings.Repeat("A straight answer with citations. ", 10))
	h.searcher.results["direct query"] = []search.Result{{URL: "https://direct.example"}}
	h.pages.texts["https://direct.example"] = "page text"

	session := testSession(3, false)
	collect(h.orch.Run(context.Background(), session))

	assert.Equal(t, models.StatusCompleted, session.Status)
	assert.Equal(t, 0, h.llm.callCount("plan"))
	assert.Equal(t, 0, h.llm.callCount("judge"))
	assert.Equal(t, 0, h.llm.callCount("writing"))
	assert.Equal(t, 2, h.llm.callCount("queries"))
	require.Len(t, session.Iterations, 1)
	assert.Equal(t, "User Query: impact of heat pumps on grid load", session.Iterations[0].Plan)
	assert.Equal(t, "", session.Iterations[0].NextPlan)

	reqs := h.llm.requestsOf("queries")
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0].Messages[1].Content, "Research Plan: User Query: impact of heat pumps on grid load")
	require.NoError(t, session.Validate())
}

func TestRunRetriesShortReport(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: brief.")
	h.llm.script("queries", "<done>")
	h.llm.script("writing", "Outline.")
	long := strings.Repeat("Expanded report text with substance. ", 10)
	h.llm.script("report", "Too short.", long)

	session := testSession(2, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	assert.Equal(t, 2, h.llm.callCount("report"))
	require.NotNil(t, session.FinalReport)
	assert.Equal(t, long, *session.FinalReport)
	reports := textsOfKind(chunks, ChunkReport)
	require.NotEmpty(t, reports)
	assert.Equal(t, long, reports[len(reports)-1])
	assert.Equal(t, models.StatusCompleted, session.Status)
}

func TestRunCheckpointFailureEndsInError(t *testing.T) {
	h := newHarness()
	h.llm.script("plan", "Plan: start.")
	h.llm.script("queries", `["query"]`)
	h.llm.script("judge", "Plan: continue.")
	h.store.failOn = 3 // the save after the first completed iteration

	session := testSession(3, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	assert.Equal(t, models.StatusError, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Contains(t, *session.ErrorMessage, "failed to save session")
	assert.Equal(t, ChunkError, chunks[len(chunks)-1].Kind)

	last := h.store.last()
	require.NotNil(t, last)
	assert.Equal(t, models.StatusError, last.Status)
}

func TestRunInitialPlanFailureEndsInError(t *testing.T) {
	h := newHarness()
	h.llm.failOn("plan", llm.ErrRetriesExhausted)

	session := testSession(3, true)
	chunks := collect(h.orch.Run(context.Background(), session))

	assert.Equal(t, models.StatusError, session.Status)
	require.NotNil(t, session.ErrorMessage)
	assert.Contains(t, *session.ErrorMessage, "failed to generate initial research plan")
	assert.Equal(t, ChunkError, chunks[len(chunks)-1].Kind)
	assert.Equal(t, 0, h.llm.callCount("queries"))
}
