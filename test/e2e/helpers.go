package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scourlabs/scour/pkg/models"
)

// StreamedRun is the fully consumed SSE response of one research run.
type StreamedRun struct {
	SessionID string
	Frames    []models.ChatCompletionChunk
	Content   string // concatenated delta content across all frames
	Done      bool   // saw the [DONE] terminator
}

// ResearchBlocking posts a non-streaming research request and returns the
// completion envelope.
func (app *TestApp) ResearchBlocking(t *testing.T, req models.ChatCompletionRequest) models.ChatCompletion {
	t.Helper()
	resp := app.do(t, http.MethodPost, "/v1/chat/completions", req)
	defer func() { _ = resp.Body.Close() }()
	requireStatus(t, resp, http.StatusOK, "chat completion")

	var completion models.ChatCompletion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&completion))
	return completion
}

// ResearchStream posts a streaming research request and consumes the whole
// event stream.
func (app *TestApp) ResearchStream(t *testing.T, req models.ChatCompletionRequest) *StreamedRun {
	t.Helper()
	req.Stream = true
	resp := app.do(t, http.MethodPost, "/v1/chat/completions", req)
	defer func() { _ = resp.Body.Close() }()
	requireStatus(t, resp, http.StatusOK, "chat completion")
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return parseEventStream(t, resp.Body)
}

// StartResearchStream posts a streaming research request bound to ctx and
// returns the open response for incremental reading. Cancelling ctx aborts
// the request, which the server treats as a client disconnect.
func (app *TestApp) StartResearchStream(ctx context.Context, t *testing.T, req models.ChatCompletionRequest) (*http.Response, *bufio.Reader) {
	t.Helper()
	req.Stream = true
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, app.BaseURL+"/v1/chat/completions", bytes.NewReader(raw))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp, bufio.NewReader(resp.Body)
}

// ReadSessionID reads stream lines until the session id announcement and
// requires it to arrive before any other data frame.
func (app *TestApp) ReadSessionID(t *testing.T, br *bufio.Reader) string {
	t.Helper()
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err, "stream ended before the session id frame")
		line = strings.TrimRight(line, "\n")
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, "unexpected stream line %q", line)
		id, ok := strings.CutPrefix(data, "SESSION_ID:")
		require.True(t, ok, "first data frame must announce the session id, got %q", data)
		return id
	}
}

// ResumeStream resumes a session over POST /sessions/:id/resume and consumes
// the event stream.
func (app *TestApp) ResumeStream(t *testing.T, sessionID string) *StreamedRun {
	t.Helper()
	resp := app.do(t, http.MethodPost, "/sessions/"+sessionID+"/resume", nil)
	defer func() { _ = resp.Body.Close() }()
	requireStatus(t, resp, http.StatusOK, "resume")
	return parseEventStream(t, resp.Body)
}

// ResumeExpecting resumes a session expecting a specific failure status and
// returns the error body.
func (app *TestApp) ResumeExpecting(t *testing.T, sessionID string, wantStatus int) string {
	t.Helper()
	resp := app.do(t, http.MethodPost, "/sessions/"+sessionID+"/resume", nil)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, wantStatus, resp.StatusCode)
	return readBody(resp)
}

// GetSession fetches a session by id through the API.
func (app *TestApp) GetSession(t *testing.T, sessionID string) *models.Session {
	t.Helper()
	resp := app.do(t, http.MethodGet, "/sessions/"+sessionID, nil)
	defer func() { _ = resp.Body.Close() }()
	requireStatus(t, resp, http.StatusOK, "get session")

	var session models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return &session
}

// History fetches a session's iteration records through the API.
func (app *TestApp) History(t *testing.T, sessionID string) []models.IterationRecord {
	t.Helper()
	resp := app.do(t, http.MethodGet, "/sessions/"+sessionID+"/history", nil)
	defer func() { _ = resp.Body.Close() }()
	requireStatus(t, resp, http.StatusOK, "history")

	var envelope struct {
		History []models.IterationRecord `json:"history"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.History
}

// Rollback truncates a session to iteration n through the API and returns the
// resulting session.
func (app *TestApp) Rollback(t *testing.T, sessionID string, n int) *models.Session {
	t.Helper()
	resp := app.do(t, http.MethodPost, fmt.Sprintf("/sessions/%s/rollback/%d", sessionID, n), nil)
	defer func() { _ = resp.Body.Close() }()
	requireStatus(t, resp, http.StatusOK, "rollback")

	var session models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return &session
}

// WaitForStatus polls the store until the session reaches one of the expected
// statuses and returns the one observed.
func (app *TestApp) WaitForStatus(t *testing.T, sessionID string, expected ...models.SessionStatus) models.SessionStatus {
	t.Helper()
	var actual models.SessionStatus
	require.Eventually(t, func() bool {
		session, err := app.Store.Load(context.Background(), sessionID)
		if err != nil {
			return false
		}
		actual = session.Status
		for _, want := range expected {
			if actual == want {
				return true
			}
		}
		return false
	}, 15*time.Second, 50*time.Millisecond,
		"session %s did not reach status %v (last: %s)", sessionID, expected, actual)
	return actual
}

// StoredIterationJSON returns iteration n of the session exactly as stored,
// rendered from the JSONB column. Two reads of an untouched iteration are
// byte-identical, which is what the resume and rollback scenarios rely on.
func (app *TestApp) StoredIterationJSON(t *testing.T, sessionID string, n int) string {
	t.Helper()
	var raw string
	err := app.DB.Pool().QueryRow(waitCtx(t),
		`SELECT (record->'iterations'->($2::int))::text FROM sessions WHERE session_id = $1`,
		sessionID, n-1,
	).Scan(&raw)
	require.NoError(t, err)
	require.NotEqual(t, "null", raw, "session %s has no iteration %d", sessionID, n)
	return raw
}

// StoredRecord returns the raw session record bytes from the database.
func (app *TestApp) StoredRecord(t *testing.T, sessionID string) []byte {
	t.Helper()
	var raw []byte
	err := app.DB.Pool().QueryRow(waitCtx(t),
		`SELECT record FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&raw)
	require.NoError(t, err)
	return raw
}

// StoredDigest returns the persisted validation digest of the session.
func (app *TestApp) StoredDigest(t *testing.T, sessionID string) string {
	t.Helper()
	var digest string
	err := app.DB.Pool().QueryRow(waitCtx(t),
		`SELECT digest FROM session_digests WHERE session_id = $1`, sessionID,
	).Scan(&digest)
	require.NoError(t, err)
	return digest
}

// SeedSession persists a prepared session through the store, as a prior run
// would have left it.
func (app *TestApp) SeedSession(t *testing.T, status models.SessionStatus, iterations int) *models.Session {
	t.Helper()
	session := models.NewSession("seeded research question", "", "", models.Settings{
		MaxIterations:  3,
		MaxSearchItems: 2,
		DefaultModel:   app.Config.LocalAI.DefaultModel,
		ReasonModel:    app.Config.LocalAI.ReasonModel,
		UseLocalLLM:    true,
		WithPlanning:   true,
	})
	now := time.Now().UTC()
	for i := 1; i <= iterations; i++ {
		session.Iterations = append(session.Iterations, models.IterationRecord{
			Iteration: i,
			StartedAt: now.Add(time.Duration(i) * time.Minute),
			EndedAt:   now.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Plan:      fmt.Sprintf("seed plan %d", i),
			Queries:   []string{fmt.Sprintf("seed query %d", i)},
			Contexts: []models.ContextSummary{{
				URL:     app.Site.URL(fmt.Sprintf("/seed/%d", i)),
				Query:   fmt.Sprintf("seed query %d", i),
				Summary: fmt.Sprintf("seed summary %d", i),
			}},
			NextPlan: fmt.Sprintf("seed plan %d", i+1),
		})
	}
	session.Aggregated = models.RecomputeAggregated(session.Iterations)
	session.Status = status
	switch status {
	case models.StatusCompleted:
		report := "seeded final report"
		end := now.Add(time.Duration(iterations+1) * time.Minute)
		session.FinalReport = &report
		session.EndTime = &end
	case models.StatusError:
		detail := "seeded failure"
		session.ErrorMessage = &detail
	}
	require.NoError(t, app.Store.Save(waitCtx(t), session))
	return session
}

// parseEventStream consumes an SSE body to its end and splits it into the
// session id announcement, the chunk frames, and the [DONE] terminator.
func parseEventStream(t *testing.T, body io.Reader) *StreamedRun {
	t.Helper()
	run := &StreamedRun{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, "unexpected stream line %q", line)

		switch {
		case strings.HasPrefix(data, "SESSION_ID:"):
			require.Empty(t, run.SessionID, "duplicate session id frame")
			require.Empty(t, run.Frames, "session id must precede all content frames")
			run.SessionID = strings.TrimPrefix(data, "SESSION_ID:")
		case data == "[DONE]":
			require.False(t, run.Done, "duplicate [DONE] terminator")
			run.Done = true
		default:
			require.False(t, run.Done, "frame after [DONE]: %q", data)
			var chunk models.ChatCompletionChunk
			require.NoError(t, json.Unmarshal([]byte(data), &chunk), "malformed frame %q", data)
			require.Equal(t, "chat.completion.chunk", chunk.Object)
			require.Len(t, chunk.Choices, 1)
			run.Frames = append(run.Frames, chunk)
			run.Content += chunk.Choices[0].Delta.Content
		}
	}
	require.NoError(t, scanner.Err())
	return run
}

func (app *TestApp) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// requireStatus fails the test with the response body when the status code is
// not the expected one. The body is only consumed on failure.
func requireStatus(t *testing.T, resp *http.Response, want int, what string) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s: status %d (want %d): %s", what, resp.StatusCode, want, readBody(resp))
	}
}

func readBody(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return string(raw)
}
