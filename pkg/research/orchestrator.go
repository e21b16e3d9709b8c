// Package research drives the iterative research loop: plan, search, fetch,
// judge, repeat, then write the final report. The orchestrator walks the
// session state machine, fans page work out through the admission controller,
// and checkpoints the session after every completed iteration.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/llm"
	"github.com/scourlabs/scour/pkg/models"
	"github.com/scourlabs/scour/pkg/prompt"
	"github.com/scourlabs/scour/pkg/search"
)

const (
	// chunkBuffer bounds the output channel so a stalled consumer applies
	// backpressure to the run instead of growing memory.
	chunkBuffer = 32

	// terminalSaveTimeout bounds persistence of terminal session states,
	// which runs on a background context.
	terminalSaveTimeout = 10 * time.Second

	// minReportRunes is the length under which a final report is considered
	// a degenerate model answer and retried once.
	minReportRunes = 200
)

// Searcher resolves a query into result links.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// PageFetcher turns a URL into cleaned page text.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, useHosted bool) (string, error)
}

// Admitter bounds concurrent page work per domain and in total. The returned
// release function must be called exactly once.
type Admitter interface {
	Acquire(ctx context.Context, rawURL string) (func(), error)
}

// Store persists session checkpoints between iterations.
type Store interface {
	Save(ctx context.Context, session *models.Session) error
}

// Orchestrator executes research runs. All collaborators are injected once at
// construction; a single orchestrator serves any number of concurrent runs.
type Orchestrator struct {
	llm       llm.Client
	searcher  Searcher
	pages     PageFetcher
	admission Admitter
	store     Store
	prompts   *prompt.PromptBuilder

	defaultModelCtx int
	reasonModelCtx  int
	operationWait   time.Duration
	verbose         bool

	logger *slog.Logger
}

// NewOrchestrator wires an orchestrator from configuration and collaborators.
func NewOrchestrator(
	cfg *config.Config,
	client llm.Client,
	searcher Searcher,
	pages PageFetcher,
	admission Admitter,
	store Store,
) *Orchestrator {
	return &Orchestrator{
		llm:             client,
		searcher:        searcher,
		pages:           pages,
		admission:       admission,
		store:           store,
		prompts:         prompt.NewPromptBuilder(),
		defaultModelCtx: cfg.LocalAI.DefaultModelCtx,
		reasonModelCtx:  cfg.LocalAI.ReasonModelCtx,
		operationWait:   cfg.RateLimits.OperationWait.Std(),
		verbose:         cfg.Settings.VerbosePageParse,
		logger:          slog.With("component", "orchestrator"),
	}
}

// Run executes the research loop for session, streaming progress on the
// returned channel. The channel closes once the run reaches a terminal state.
// Cancelling ctx stops the run cooperatively: the iteration in flight is
// discarded and the session is persisted as interrupted.
//
// Run works for fresh and resumed sessions alike; iteration numbering picks
// up after the last checkpointed iteration.
func (o *Orchestrator) Run(ctx context.Context, session *models.Session) <-chan Chunk {
	out := make(chan Chunk, chunkBuffer)
	go func() {
		defer close(out)
		o.run(ctx, session, out)
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, session *models.Session, out chan<- Chunk) {
	logger := o.logger.With("session_id", session.SessionID)

	session.Status = models.StatusRunning
	session.EndTime = nil
	session.ErrorMessage = nil
	if err := o.store.Save(ctx, session); err != nil {
		o.fail(ctx, session, out, logger, fmt.Errorf("failed to save session: %w", err))
		return
	}
	emit(ctx, out, Chunk{Kind: ChunkSessionID, Text: session.SessionID})

	planning := session.Settings.WithPlanning
	plan := StripThink(session.Aggregated.LastPlan)
	if !planning {
		// Without a planning model the user query itself steers query
		// generation, and the judge never runs.
		plan = "User Query: " + session.UserQuery
	}

	if planning && plan == "" {
		emit(ctx, out, thinkStatus("Generating initial research plan..."))
		resp, err := o.completeReason(ctx, session, o.prompts.BuildInitialPlanMessages(session.UserQuery))
		if err != nil {
			if ctx.Err() != nil {
				o.interrupt(session, out, logger)
				return
			}
			o.fail(ctx, session, out, logger, fmt.Errorf("failed to generate initial research plan: %w", err))
			return
		}
		plan = StripThink(resp)
		emit(ctx, out, Chunk{Kind: ChunkPlan, Text: plan})
		session.Aggregated.LastPlan = plan
		if err := o.store.Save(ctx, session); err != nil {
			o.fail(ctx, session, out, logger, fmt.Errorf("failed to save session: %w", err))
			return
		}
	}

	maxIter := session.Settings.MaxIterations
	for n := session.Aggregated.LastCompletedIteration + 1; n <= maxIter; n++ {
		if ctx.Err() != nil {
			o.interrupt(session, out, logger)
			return
		}
		label := fmt.Sprintf("Iteration %d/%d", n, maxIter)
		emit(ctx, out, thinkStatus("%s. Current plan:\n%s", label, plan))

		rec, done, err := o.runIteration(ctx, session, n, label, plan, out)
		if err != nil {
			if ctx.Err() != nil {
				o.interrupt(session, out, logger)
				return
			}
			o.fail(ctx, session, out, logger, err)
			return
		}
		if rec == nil {
			// The query generator declined to continue before any work
			// happened, so there is nothing to record.
			break
		}

		session.Iterations = append(session.Iterations, *rec)
		session.Aggregated = models.RecomputeAggregated(session.Iterations)
		if err := o.store.Save(ctx, session); err != nil {
			if ctx.Err() != nil {
				o.interrupt(session, out, logger)
				return
			}
			o.fail(ctx, session, out, logger, fmt.Errorf("failed to save session: %w", err))
			return
		}
		logger.Info("Iteration checkpointed", "iteration", n, "contexts", len(rec.Contexts))

		if done {
			break
		}
		if planning {
			plan = session.Aggregated.LastPlan
		}
		if o.operationWait > 0 && n < maxIter {
			select {
			case <-ctx.Done():
				o.interrupt(session, out, logger)
				return
			case <-time.After(o.operationWait):
			}
		}
	}

	if ctx.Err() != nil {
		o.interrupt(session, out, logger)
		return
	}
	o.writeReport(ctx, session, out, logger)
}

// writeReport runs the writing phase: an optional writing plan, the streamed
// final report, and the completed-state checkpoint.
func (o *Orchestrator) writeReport(ctx context.Context, session *models.Session, out chan<- Chunk, logger *slog.Logger) {
	emit(ctx, out, thinkStatus("Research phase concluded. Generating final report..."))

	contexts := session.Aggregated.Contexts
	writingPlan := ""
	if session.Settings.WithPlanning {
		resp, err := o.completeReason(ctx, session, o.prompts.BuildWritingPlanMessages(session.UserQuery, contexts))
		if err != nil {
			if ctx.Err() != nil {
				o.interrupt(session, out, logger)
				return
			}
			o.fail(ctx, session, out, logger, fmt.Errorf("failed to generate writing plan: %w", err))
			return
		}
		writingPlan = StripThink(resp)
		emit(ctx, out, Chunk{Kind: ChunkPlan, Text: "Writing Plan:\n" + writingPlan + "\n\n"})
	}

	req := llm.Request{
		Model:    session.Settings.DefaultModel,
		Messages: o.prompts.BuildFinalReportMessages(session.UserQuery, session.SystemInstruction, writingPlan, contexts),
		Ctx:      o.defaultModelCtx,
	}
	stream, err := o.llm.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			o.interrupt(session, out, logger)
			return
		}
		o.fail(ctx, session, out, logger, fmt.Errorf("failed to generate final report: %w", err))
		return
	}
	var report strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			if ctx.Err() != nil {
				o.interrupt(session, out, logger)
				return
			}
			o.fail(ctx, session, out, logger, fmt.Errorf("failed to generate final report: %w", chunk.Err))
			return
		}
		report.WriteString(chunk.Text)
		emit(ctx, out, Chunk{Kind: ChunkReport, Text: chunk.Text})
	}

	final := report.String()
	if utf8.RuneCountInString(final) < minReportRunes {
		logger.Warn("Final report suspiciously short, retrying once", "length", len(final))
		retry, err := o.llm.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				o.interrupt(session, out, logger)
				return
			}
			o.fail(ctx, session, out, logger, fmt.Errorf("failed to generate final report: %w", err))
			return
		}
		if utf8.RuneCountInString(retry) > utf8.RuneCountInString(final) {
			final = retry
			emit(ctx, out, Chunk{Kind: ChunkReport, Text: retry})
		}
	}

	now := time.Now().UTC()
	session.FinalReport = &final
	session.Status = models.StatusCompleted
	session.EndTime = &now
	if err := o.saveTerminal(session); err != nil {
		o.fail(ctx, session, out, logger, fmt.Errorf("failed to save session: %w", err))
		return
	}
	emit(ctx, out, Chunk{Kind: ChunkTerminal, Text: "Research session completed."})
	logger.Info("Research session completed", "iterations", len(session.Iterations))
}

// fail persists the error state and emits the error chunk that replaces the
// terminal marker.
func (o *Orchestrator) fail(ctx context.Context, session *models.Session, out chan<- Chunk, logger *slog.Logger, err error) {
	detail := fmt.Sprintf("An error occurred: %v", err)
	logger.Error("Research run failed", "error", err)

	now := time.Now().UTC()
	session.Status = models.StatusError
	session.ErrorMessage = &detail
	if session.EndTime == nil {
		session.EndTime = &now
	}
	if saveErr := o.saveTerminal(session); saveErr != nil {
		logger.Error("Failed to persist error state", "error", saveErr)
	}
	emit(ctx, out, Chunk{Kind: ChunkError, Text: fmt.Sprintf("<think>Error encountered: %s</think>\n%s", detail, detail)})
}

// interrupt persists the interrupted state after cooperative cancellation.
// The iteration in flight was discarded by the caller, so the checkpointed
// history stays dense.
func (o *Orchestrator) interrupt(session *models.Session, out chan<- Chunk, logger *slog.Logger) {
	logger.Info("Research run interrupted", "completed_iterations", session.Aggregated.LastCompletedIteration)
	session.Status = models.StatusInterrupted
	if saveErr := o.saveTerminal(session); saveErr != nil {
		logger.Error("Failed to persist interrupted state", "error", saveErr)
	}
	tryEmit(out, thinkStatus("Research session interrupted."))
}

// saveTerminal persists a terminal session state. It deliberately does not
// use the run context, which may already be cancelled.
func (o *Orchestrator) saveTerminal(session *models.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), terminalSaveTimeout)
	defer cancel()
	return o.store.Save(ctx, session)
}

func (o *Orchestrator) completeDefault(ctx context.Context, session *models.Session, msgs []models.Message) (string, error) {
	return o.llm.Complete(ctx, llm.Request{
		Model:    session.Settings.DefaultModel,
		Messages: msgs,
		Ctx:      o.defaultModelCtx,
	})
}

func (o *Orchestrator) completeReason(ctx context.Context, session *models.Session, msgs []models.Message) (string, error) {
	return o.llm.Complete(ctx, llm.Request{
		Model:    session.Settings.ReasonModel,
		Messages: msgs,
		Ctx:      o.reasonModelCtx,
	})
}

// emit delivers a chunk unless the run context is cancelled.
func emit(ctx context.Context, out chan<- Chunk, c Chunk) {
	select {
	case out <- c:
	case <-ctx.Done():
	}
}

// tryEmit delivers a chunk without blocking. Used after cancellation, when
// the consumer may already be gone.
func tryEmit(out chan<- Chunk, c Chunk) {
	select {
	case out <- c:
	default:
	}
}
