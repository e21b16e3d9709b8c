// Package llm provides the model-call capability behind the research loop:
// one interface over a hosted OpenAI-compatible endpoint, a local server
// speaking the same contract, or an Ollama instance.
package llm

import (
	"context"

	"github.com/scourlabs/scour/pkg/models"
)

// Options tunes a single model invocation. Nil fields are omitted from the
// provider payload.
type Options struct {
	Temperature *float64
	TopP        *float64
	Seed        *int
	Reasoning   *bool
	// MaxTokens caps generation length; <= 0 leaves the provider default.
	MaxTokens int
}

// Request is one model invocation.
type Request struct {
	Model    string
	Messages []models.Message
	// Ctx is the context-window size, honored by backends that expose one;
	// <= 0 leaves the provider default.
	Ctx     int
	Options Options
}

// StreamChunk is one fragment of a streamed completion. A non-nil Err
// terminates the stream; no further chunks follow it.
type StreamChunk struct {
	Text string
	Err  error
}

// Client is the LLM capability. Implementations route every call through the
// rate-limit governor.
type Client interface {
	// Complete returns the full completion text.
	Complete(ctx context.Context, req Request) (string, error)
	// Stream returns completion fragments as the model produces them. The
	// channel closes when the stream ends.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// chatMessage is the {role, content} wire projection shared by all backends.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func wireMessages(msgs []models.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
