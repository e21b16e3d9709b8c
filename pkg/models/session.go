package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	StatusRunning     SessionStatus = "running"
	StatusCompleted   SessionStatus = "completed"
	StatusInterrupted SessionStatus = "interrupted"
	StatusError       SessionStatus = "error"
)

// ValidStatus reports whether s is a recognised session status.
func ValidStatus(s SessionStatus) bool {
	switch s {
	case StatusRunning, StatusCompleted, StatusInterrupted, StatusError:
		return true
	}
	return false
}

// Session is the persistent record of one research run. It is created and
// exclusively mutated by the orchestrator while running; the session store
// persists it verbatim at each iteration boundary.
type Session struct {
	SessionID         string        `json:"session_id"`
	UserID            string        `json:"user_id,omitempty"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	Status            SessionStatus `json:"status"`
	UserQuery         string        `json:"user_query"`
	SystemInstruction string        `json:"system_instruction,omitempty"`
	Settings          Settings      `json:"settings"`
	Messages          MessageLog    `json:"messages"`

	Iterations []IterationRecord `json:"iterations"`
	Aggregated AggregatedState   `json:"aggregated_state"`

	FinalReport  *string `json:"final_report"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// NewSession creates a running session with a fresh id and the system/user
// messages seeded into the log.
func NewSession(userQuery, systemInstruction, userID string, settings Settings) *Session {
	s := &Session{
		SessionID:         uuid.New().String(),
		UserID:            userID,
		StartTime:         time.Now().UTC(),
		Status:            StatusRunning,
		UserQuery:         userQuery,
		SystemInstruction: systemInstruction,
		Settings:          settings,
		Aggregated:        AggregatedState{},
	}
	if systemInstruction != "" {
		s.Messages.Add(RoleSystem, systemInstruction)
	}
	s.Messages.Add(RoleUser, userQuery)
	return s
}

// Validate enforces the session record invariants. The store refuses to
// persist a record that fails these checks.
func (s *Session) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session_id is empty")
	}
	if !ValidStatus(s.Status) {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	for i, it := range s.Iterations {
		if it.Iteration != i+1 {
			return fmt.Errorf("iteration numbers not dense: index %d holds iteration %d", i, it.Iteration)
		}
	}
	want := 0
	if n := len(s.Iterations); n > 0 {
		want = s.Iterations[n-1].Iteration
	}
	if s.Aggregated.LastCompletedIteration != want {
		return fmt.Errorf("last_completed_iteration %d does not match iterations (want %d)",
			s.Aggregated.LastCompletedIteration, want)
	}
	switch s.Status {
	case StatusCompleted:
		if s.FinalReport == nil {
			return fmt.Errorf("completed session has no final report")
		}
		if s.EndTime == nil {
			return fmt.Errorf("completed session has no end time")
		}
	case StatusError:
		if s.ErrorMessage == nil {
			return fmt.Errorf("error session has no error message")
		}
	case StatusRunning, StatusInterrupted:
		if len(s.Iterations) > 0 && s.Aggregated.LastPlan == "" {
			return fmt.Errorf("%s session with completed iterations has no last plan", s.Status)
		}
	}
	for _, it := range s.Iterations {
		for _, c := range it.Contexts {
			if !containsString(s.Aggregated.Queries, c.Query) {
				return fmt.Errorf("iteration %d context query %q missing from aggregated queries", it.Iteration, c.Query)
			}
		}
	}
	return nil
}

// CurrentIteration is the highest completed iteration number, 0 when none.
func (s *Session) CurrentIteration() int {
	return s.Aggregated.LastCompletedIteration
}

// SessionSummary is the listing projection of a session.
type SessionSummary struct {
	SessionID        string        `json:"session_id"`
	UserQuery        string        `json:"user_query"`
	UserID           string        `json:"user_id,omitempty"`
	Status           SessionStatus `json:"status"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          *time.Time    `json:"end_time,omitempty"`
	CurrentIteration int           `json:"current_iteration"`
}
