package models

// ResearchModelID is the model id advertised by the research API. Requests
// name it the way OpenAI clients name any other chat model.
const ResearchModelID = "deep_researcher"

// ChatMessage is the wire form of a conversation message on the research API.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the body of POST /v1/chat/completions. Besides the
// standard OpenAI fields it carries the research knobs; zero values fall back
// to server configuration.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`

	MaxIterations     int    `json:"max_iterations,omitempty"`
	MaxSearchItems    int    `json:"max_search_items,omitempty"`
	DefaultModel      string `json:"default_model,omitempty"`
	ReasonModel       string `json:"reason_model,omitempty"`
	SystemInstruction string `json:"system_instruction,omitempty"`

	// SessionID resumes an existing session instead of creating one.
	SessionID string `json:"session_id,omitempty"`
	// UserID is an opaque tag copied onto the session for listing filters.
	UserID string `json:"user_id,omitempty"`
}

// ChunkDelta is the incremental payload inside a streamed choice.
type ChunkDelta struct {
	Role    Role   `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ChunkChoice is one choice of a streamed chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one SSE data frame in the streaming response.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// CompletionChoice is one choice of a non-streaming completion.
type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is the non-streaming response: a single choice carrying the
// final report.
type ChatCompletion struct {
	ID        string             `json:"id"`
	Object    string             `json:"object"`
	Created   int64              `json:"created"`
	Model     string             `json:"model"`
	SessionID string             `json:"session_id,omitempty"`
	Choices   []CompletionChoice `json:"choices"`
}

// ModelInfo describes one entry of GET /v1/models.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the response of GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}
