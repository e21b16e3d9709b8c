package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scourlabs/scour/pkg/ratelimit"
	"github.com/scourlabs/scour/pkg/version"
)

// OpenAIClient speaks the OpenAI chat-completions contract against a hosted
// or local endpoint.
type OpenAIClient struct {
	baseURL  string
	apiKey   string
	httpc    *http.Client
	governor *ratelimit.Governor
	policy   RetryPolicy
	timeout  time.Duration
	logger   *slog.Logger
}

// NewOpenAIClient creates a client for baseURL (the /v1 root). An empty
// apiKey sends no Authorization header, which local servers accept.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration, governor *ratelimit.Governor) *OpenAIClient {
	return &OpenAIClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		httpc:    &http.Client{},
		governor: governor,
		policy:   DefaultRetryPolicy(),
		timeout:  timeout,
		logger:   slog.With("component", "llm", "provider", "openai-compat"),
	}
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Seed        *int          `json:"seed,omitempty"`
	Reasoning   *reasoningOpt `json:"reasoning,omitempty"`
}

type reasoningOpt struct {
	Enabled bool `json:"enabled"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts a non-streaming completion and returns the full text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, release, err := doWithRetry(ctx, c.policy, c.governor, req.Model, c.logger,
		func(ctx context.Context, model string) (*http.Response, error) {
			return c.post(ctx, c.payload(req, model, false))
		})
	if err != nil {
		return "", err
	}
	defer release()
	defer resp.Body.Close()

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream posts a streaming completion and returns its content fragments.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	resp, release, err := doWithRetry(ctx, c.policy, c.governor, req.Model, c.logger,
		func(ctx context.Context, model string) (*http.Response, error) {
			return c.post(ctx, c.payload(req, model, true))
		})
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer release()
		streamSSE(ctx, resp.Body, out)
	}()
	return out, nil
}

func (c *OpenAIClient) payload(req Request, model string, stream bool) openAIRequest {
	p := openAIRequest{
		Model:       model,
		Messages:    wireMessages(req.Messages),
		Stream:      stream,
		MaxTokens:   req.Options.MaxTokens,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		Seed:        req.Options.Seed,
	}
	if req.Options.Reasoning != nil {
		p.Reasoning = &reasoningOpt{Enabled: *req.Options.Reasoning}
	}
	return p
}

func (c *OpenAIClient) post(ctx context.Context, payload openAIRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpc.Do(req)
}
