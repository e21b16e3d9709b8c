package models

import "time"

// ContextSummary is one extracted page condensation: the source URL, the
// query that surfaced it, and the LLM-produced summary text.
type ContextSummary struct {
	URL     string `json:"url"`
	Query   string `json:"query"`
	Summary string `json:"summary"`
}

// IterationRecord captures one completed planning-to-judgement cycle.
// Iteration numbers are 1-based, dense, and strictly increasing within a
// session. Contexts are stored in task completion order, which is
// deliberately nondeterministic across runs.
type IterationRecord struct {
	Iteration int              `json:"iteration"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Plan      string           `json:"plan"`
	Queries   []string         `json:"queries"`
	Contexts  []ContextSummary `json:"contexts"`
	// NextPlan is the plan produced for the following iteration,
	// empty when this iteration was terminal.
	NextPlan string `json:"next_plan,omitempty"`
}

// AggregatedState is the running union across completed iterations. It is a
// derived projection: RecomputeAggregated rebuilds it deterministically from
// the iteration list, which is what rollback relies on.
type AggregatedState struct {
	Queries                []string         `json:"queries"`
	Contexts               []ContextSummary `json:"contexts"`
	LastPlan               string           `json:"last_plan,omitempty"`
	LastCompletedIteration int              `json:"last_completed_iteration"`
}

// AddQueries appends queries not seen before, preserving first-seen order.
func (a *AggregatedState) AddQueries(queries []string) {
	for _, q := range queries {
		if !containsString(a.Queries, q) {
			a.Queries = append(a.Queries, q)
		}
	}
}

// RecomputeAggregated rebuilds the aggregated projection from scratch.
// The last plan is the tail iteration's produced plan; when the tail was
// terminal (no produced plan) the plan it consumed is carried instead so a
// resumed run always has one.
func RecomputeAggregated(iterations []IterationRecord) AggregatedState {
	agg := AggregatedState{}
	for _, it := range iterations {
		agg.AddQueries(it.Queries)
		agg.Contexts = append(agg.Contexts, it.Contexts...)
	}
	if n := len(iterations); n > 0 {
		tail := iterations[n-1]
		agg.LastCompletedIteration = tail.Iteration
		agg.LastPlan = tail.NextPlan
		if agg.LastPlan == "" {
			agg.LastPlan = tail.Plan
		}
	}
	return agg
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
