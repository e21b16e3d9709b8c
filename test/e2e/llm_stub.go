package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Call kinds recognised by the scripted LLM backend, one per prompt the
// research loop issues.
const (
	CallPlan    = "plan"
	CallQueries = "queries"
	CallJudge   = "judge"
	CallUseful  = "useful"
	CallExtract = "extract"
	CallWriting = "writing"
	CallReport  = "report"
)

// classifyCall sorts an incoming completion request into a call kind by the
// system prompt it carries, so scripts can answer each call type
// independently of arrival order.
func classifyCall(messages []llmWireMessage) string {
	var system, user string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}
	switch {
	case strings.Contains(system, "systematic research planner"):
		return CallQueries
	case strings.Contains(system, "strict and concise evaluator"):
		return CallUseful
	case strings.Contains(system, "expert in extracting"):
		return CallExtract
	case strings.Contains(system, "writer to write a research report"):
		return CallWriting
	case strings.Contains(system, "skilled report writer"):
		return CallReport
	case strings.Contains(user, "Current Research Plan:"):
		return CallJudge
	default:
		return CallPlan
	}
}

type llmWireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmWireRequest struct {
	Model    string           `json:"model"`
	Messages []llmWireMessage `json:"messages"`
	Stream   bool             `json:"stream"`
}

// ScriptedLLM is an in-process OpenAI-compatible chat-completions server that
// answers each call kind from a fixed script, one reply per call. The last
// reply of a script repeats once exhausted; a kind with no script at all is
// answered with HTTP 400 so a test missing a script fails loudly instead of
// hanging in the retry loop.
type ScriptedLLM struct {
	mu        sync.Mutex
	replies   map[string][]string
	failures  map[string]int
	calls     map[string]int
	delay     time.Duration
	inFlight  int
	maxFlight int

	server *httptest.Server
}

// NewScriptedLLM starts the stub backend. Close it when done.
func NewScriptedLLM() *ScriptedLLM {
	s := &ScriptedLLM{
		replies:  make(map[string][]string),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the base URL clients should use as their OpenAI endpoint root.
func (s *ScriptedLLM) URL() string { return s.server.URL }

// Close shuts the backend down.
func (s *ScriptedLLM) Close() { s.server.Close() }

// Script sets the replies for one call kind, consumed in order.
func (s *ScriptedLLM) Script(kind string, replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[kind] = replies
}

// FailTimes makes the next n calls of kind answer HTTP 500 before the script
// takes over, exercising the client's retry path.
func (s *ScriptedLLM) FailTimes(kind string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = n
}

// SetDelay makes every call hold its response for d, so tests can observe
// in-flight concurrency.
func (s *ScriptedLLM) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// CallCount reports how many calls of kind arrived, failures included.
func (s *ScriptedLLM) CallCount(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// MaxInFlight reports the highest number of calls observed in flight at once.
func (s *ScriptedLLM) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFlight
}

func (s *ScriptedLLM) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req llmWireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLLMError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	kind := classifyCall(req.Messages)

	s.mu.Lock()
	s.calls[kind]++
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	delay := s.delay
	fail := s.failures[kind] > 0
	if fail {
		s.failures[kind]--
	}
	var reply string
	var scripted bool
	if rs := s.replies[kind]; len(rs) > 0 {
		n := s.calls[kind] - 1
		if n >= len(rs) {
			n = len(rs) - 1
		}
		reply = rs[n]
		scripted = true
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}

	if fail {
		writeLLMError(w, http.StatusInternalServerError, "scripted backend failure")
		return
	}
	if !scripted {
		// 400 is terminal for the client after one fallback attempt, so the
		// run fails fast with this message in its error state.
		writeLLMError(w, http.StatusBadRequest, fmt.Sprintf("no scripted reply for %q call", kind))
		return
	}

	if req.Stream {
		s.writeStream(w, reply)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": reply}},
		},
	})
}

// writeStream emits the reply as OpenAI SSE chunk frames, split in two so
// consumers observe real incremental delivery.
func (s *ScriptedLLM) writeStream(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	parts := []string{reply}
	if half := len(reply) / 2; half > 0 {
		parts = []string{reply[:half], reply[half:]}
	}
	for _, part := range parts {
		frame, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]any{"content": part}, "finish_reason": nil},
			},
		})
		fmt.Fprintf(w, "data: %s\n\n", frame)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeLLMError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg},
	})
}
