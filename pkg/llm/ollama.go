package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scourlabs/scour/pkg/ratelimit"
	"github.com/scourlabs/scour/pkg/version"
)

// OllamaClient speaks the Ollama native chat API (/api/chat) with NDJSON
// streaming.
type OllamaClient struct {
	baseURL  string
	httpc    *http.Client
	governor *ratelimit.Governor
	policy   RetryPolicy
	timeout  time.Duration
	logger   *slog.Logger
}

// NewOllamaClient creates a client for the Ollama server at baseURL. A
// trailing /v1 copied from an OpenAI-style configuration is stripped, and a
// bare host:port gets an http scheme.
func NewOllamaClient(baseURL string, timeout time.Duration, governor *ratelimit.Governor) *OllamaClient {
	base := strings.TrimRight(baseURL, "/")
	base = strings.TrimSuffix(base, "/v1")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &OllamaClient{
		baseURL:  base,
		httpc:    &http.Client{},
		governor: governor,
		policy:   DefaultRetryPolicy(),
		timeout:  timeout,
		logger:   slog.With("component", "llm", "provider", "ollama"),
	}
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Think    *bool          `json:"think,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// Complete drains a streamed chat call into one string. Ollama always
// streams; the accumulation happens here.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	ch, err := c.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		b.WriteString(chunk.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// Stream posts a chat call and returns its content fragments.
func (c *OllamaClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	resp, release, err := doWithRetry(ctx, c.policy, c.governor, req.Model, c.logger,
		func(ctx context.Context, model string) (*http.Response, error) {
			return c.post(ctx, c.payload(req, model))
		})
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer release()
		streamNDJSON(ctx, resp.Body, out)
	}()
	return out, nil
}

func (c *OllamaClient) payload(req Request, model string) ollamaRequest {
	opts := make(map[string]any)
	if req.Options.MaxTokens > 0 {
		opts["num_predict"] = req.Options.MaxTokens
	}
	if req.Ctx > 0 {
		opts["num_ctx"] = req.Ctx
	}
	if req.Options.Temperature != nil {
		opts["temperature"] = *req.Options.Temperature
	}
	if req.Options.TopP != nil {
		opts["top_p"] = *req.Options.TopP
	}
	if req.Options.Seed != nil {
		opts["seed"] = *req.Options.Seed
	}
	if len(opts) == 0 {
		opts = nil
	}
	return ollamaRequest{
		Model:    model,
		Messages: wireMessages(req.Messages),
		Stream:   true,
		Think:    req.Options.Reasoning,
		Options:  opts,
	}
}

func (c *OllamaClient) post(ctx context.Context, payload ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	return c.httpc.Do(req)
}

// streamNDJSON reads Ollama's newline-delimited JSON chat stream and pushes
// content fragments into out until the done frame, EOF or an error. Closes
// out and body on exit.
func streamNDJSON(ctx context.Context, body io.ReadCloser, out chan<- StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			select {
			case out <- StreamChunk{Err: errors.New(chunk.Error)}:
			case <-ctx.Done():
			}
			return
		}
		if chunk.Message.Content != "" {
			select {
			case out <- StreamChunk{Text: chunk.Message.Content}:
			case <-ctx.Done():
				return
			}
		}
		if chunk.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case out <- StreamChunk{Err: fmt.Errorf("stream read failed: %w", err)}:
		case <-ctx.Done():
		}
	}
}
