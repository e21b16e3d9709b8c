package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/scourlabs/scour/pkg/models"
)

// linkTask is one deduplicated URL paired with the query that first surfaced
// it.
type linkTask struct {
	url   string
	query string
}

// runIteration executes one full iteration: generate queries, search, process
// the deduplicated links concurrently, then judge the gathered evidence. A
// nil record means the query generator declined to continue before any work
// happened and the iteration was skipped entirely. A non-nil record is
// complete; the caller appends and checkpoints it.
func (o *Orchestrator) runIteration(ctx context.Context, session *models.Session, number int, label, plan string, out chan<- Chunk) (*models.IterationRecord, bool, error) {
	rec := &models.IterationRecord{
		Iteration: number,
		StartedAt: time.Now().UTC(),
		Plan:      plan,
	}

	emit(ctx, out, thinkStatus("%s: Generating search queries...", label))
	resp, err := o.completeDefault(ctx, session, o.prompts.BuildSearchQueriesMessages(plan, session.Aggregated.Queries))
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate search queries: %w", err)
	}
	queries, done := ParseQueryList(resp)
	if done || len(queries) == 0 {
		emit(ctx, out, thinkStatus("%s: No new search queries generated or <done> received. Moving to judge/report phase.", label))
		return nil, true, nil
	}
	rec.Queries = queries

	encoded, _ := json.Marshal(queries)
	emit(ctx, out, Chunk{
		Kind: ChunkQuery,
		Text: fmt.Sprintf("<think>%s: Generated search queries: %s</think>\nGenerated search queries: %s", label, encoded, encoded),
	})

	tasks := o.searchLinks(ctx, session, label, queries, out)
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	if len(tasks) > 0 {
		emit(ctx, out, thinkStatus("%s: Processing %d unique links...", label, len(tasks)))
		rec.Contexts = o.processLinks(ctx, session, tasks, out)
	}
	if len(rec.Contexts) == 0 {
		emit(ctx, out, Chunk{Kind: ChunkStatus, Text: "No useful contexts found in this iteration.\n\n"})
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	var nextDone bool
	if session.Settings.WithPlanning {
		emit(ctx, out, thinkStatus("%s: Judging search results and planning next steps...", label))
		judged := append(append([]models.ContextSummary{}, session.Aggregated.Contexts...), rec.Contexts...)
		verdict, err := o.completeReason(ctx, session, o.prompts.BuildPlanJudgeMessages(session.UserQuery, judged, plan))
		if err != nil {
			return nil, false, fmt.Errorf("failed to judge search results: %w", err)
		}
		next := StripThink(verdict)
		if next == "" {
			emit(ctx, out, thinkStatus("%s: Failed to get next plan. Ending research.", label))
			nextDone = true
		} else {
			emit(ctx, out, Chunk{Kind: ChunkPlan, Text: next})
			if next == DoneSentinel {
				emit(ctx, out, thinkStatus("%s: Next plan is <done>. Concluding research phase.", label))
				nextDone = true
			} else {
				rec.NextPlan = next
			}
		}
	}

	rec.EndedAt = time.Now().UTC()
	return rec, nextDone, nil
}

// searchLinks runs every query sequentially and returns the deduplicated
// links in first-seen order, each paired with the query that surfaced it. A
// failed search costs its own results, never the iteration.
func (o *Orchestrator) searchLinks(ctx context.Context, session *models.Session, label string, queries []string, out chan<- Chunk) []linkTask {
	seen := make(map[string]bool)
	var tasks []linkTask
	for i, q := range queries {
		if ctx.Err() != nil {
			return tasks
		}
		queryLabel := fmt.Sprintf("Query %d/%d ('%s')", i+1, len(queries), q)
		emit(ctx, out, thinkStatus("%s: Performing search for %s...", label, queryLabel))

		results, err := o.searcher.Search(ctx, q, session.Settings.MaxSearchItems)
		if err != nil {
			o.logger.Warn("Search failed", "session_id", session.SessionID, "query", q, "error", err)
		}
		if len(results) == 0 {
			emit(ctx, out, Chunk{Kind: ChunkQuery, Text: fmt.Sprintf("No links found for %s.", queryLabel)})
			continue
		}

		links := make([]string, 0, len(results))
		for _, r := range results {
			links = append(links, r.URL)
			if !seen[r.URL] {
				seen[r.URL] = true
				tasks = append(tasks, linkTask{url: r.URL, query: q})
			}
		}
		encoded, _ := json.Marshal(links)
		emit(ctx, out, Chunk{
			Kind: ChunkQuery,
			Text: fmt.Sprintf("<think>%s: Found %d links for %s.</think>\nFound %d links for '%s': %s", label, len(links), queryLabel, len(links), q, encoded),
		})
	}
	return tasks
}

// processLinks fans the tasks out to one goroutine each; the admission
// controller bounds how many touch the network at once. Summaries arrive in
// completion order, so their order across runs is not stable.
func (o *Orchestrator) processLinks(ctx context.Context, session *models.Session, tasks []linkTask, out chan<- Chunk) []models.ContextSummary {
	results := make(chan models.ContextSummary, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task linkTask) {
			defer wg.Done()
			if summary, ok := o.processLink(ctx, session, task, out); ok {
				results <- summary
			}
		}(task)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var contexts []models.ContextSummary
	for summary := range results {
		contexts = append(contexts, summary)
	}
	return contexts
}

// processLink fetches one page, asks the reason model whether it is useful,
// and extracts a context summary when it is. Every failure is absorbed: a bad
// page costs its own summary, never the iteration.
func (o *Orchestrator) processLink(ctx context.Context, session *models.Session, task linkTask, out chan<- Chunk) (models.ContextSummary, bool) {
	logger := o.logger.With("session_id", session.SessionID, "url", task.url)

	emit(ctx, out, Chunk{Kind: ChunkStatus, Text: fmt.Sprintf("Fetching content from: %s\n\n", task.url)})

	release, err := o.admission.Acquire(ctx, task.url)
	if err != nil {
		logger.Warn("Admission rejected link", "error", err)
		return models.ContextSummary{}, false
	}
	defer release()

	text, err := o.pages.Fetch(ctx, task.url, session.Settings.UseHostedParser)
	if err != nil {
		logger.Warn("Page fetch failed", "error", err)
		return models.ContextSummary{}, false
	}
	if strings.TrimSpace(text) == "" {
		logger.Debug("Page produced no text")
		return models.ContextSummary{}, false
	}

	useful := o.pageUseful(ctx, session, text, logger)
	emit(ctx, out, Chunk{Kind: ChunkStatus, Text: fmt.Sprintf("Page usefulness for %s: %s\n\n", task.url, useful)})
	if useful != "Yes" {
		return models.ContextSummary{}, false
	}

	resp, err := o.completeDefault(ctx, session, o.prompts.BuildExtractContextMessages(session.UserQuery, task.query, text))
	if err != nil {
		logger.Warn("Context extraction failed", "error", err)
		return models.ContextSummary{}, false
	}
	summary := strings.TrimSpace(resp)
	if summary == "" {
		return models.ContextSummary{}, false
	}
	if o.verbose {
		emit(ctx, out, Chunk{Kind: ChunkStatus, Text: fmt.Sprintf("Extracted context from %s (first 200 chars): %s\n\n", task.url, truncateRunes(summary, 200))})
	}
	emit(ctx, out, Chunk{Kind: ChunkContext, Text: "url:" + task.url + "\ncontext:" + summary})
	return models.ContextSummary{URL: task.url, Query: task.query, Summary: summary}, true
}

// pageUseful asks the reason model for a strict Yes/No verdict; anything
// unclear, including an errored call, counts as No.
func (o *Orchestrator) pageUseful(ctx context.Context, session *models.Session, pageText string, logger *slog.Logger) string {
	resp, err := o.completeReason(ctx, session, o.prompts.BuildPageUsefulMessages(session.UserQuery, pageText))
	if err != nil {
		logger.Warn("Usefulness check failed", "error", err)
		return "No"
	}
	if strings.EqualFold(StripThink(resp), "yes") {
		return "Yes"
	}
	return "No"
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
