package llm

import "errors"

var (
	// ErrUpstreamRefused marks a non-retryable provider refusal (4xx other
	// than 429) that persisted through the one fallback attempt.
	ErrUpstreamRefused = errors.New("model request refused")
	// ErrRetriesExhausted marks a call abandoned after the retry budget.
	ErrRetriesExhausted = errors.New("model call retries exhausted")
	// ErrEmptyResponse marks a successful call that carried no content.
	ErrEmptyResponse = errors.New("model returned empty response")
)
