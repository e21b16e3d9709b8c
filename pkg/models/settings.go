package models

import "fmt"

// Iteration and search-item bounds accepted by the research API.
const (
	MinIterations     = 1
	MaxIterationsCap  = 50
	MinSearchItems    = 1
	MaxSearchItemsCap = 50

	DefaultMaxIterations  = 15
	DefaultMaxSearchItems = 4
)

// Settings is the per-session configuration snapshot. It is frozen into the
// session record at creation time so resumed runs behave identically even if
// the server configuration changed in between.
type Settings struct {
	MaxIterations  int    `json:"max_iterations"`
	MaxSearchItems int    `json:"max_search_items"`
	DefaultModel   string `json:"default_model"`
	ReasonModel    string `json:"reason_model"`

	// Feature flags.
	UseHostedParser bool `json:"use_hosted_parser"`
	UseLocalLLM     bool `json:"use_local_llm"`
	WithPlanning    bool `json:"with_planning"`
}

// Validate checks the numeric bounds and model presence.
func (s Settings) Validate() error {
	if s.MaxIterations < MinIterations || s.MaxIterations > MaxIterationsCap {
		return fmt.Errorf("max_iterations must be in [%d,%d], got %d", MinIterations, MaxIterationsCap, s.MaxIterations)
	}
	if s.MaxSearchItems < MinSearchItems || s.MaxSearchItems > MaxSearchItemsCap {
		return fmt.Errorf("max_search_items must be in [%d,%d], got %d", MinSearchItems, MaxSearchItemsCap, s.MaxSearchItems)
	}
	if s.DefaultModel == "" {
		return fmt.Errorf("default_model is required")
	}
	if s.ReasonModel == "" {
		return fmt.Errorf("reason_model is required")
	}
	return nil
}
