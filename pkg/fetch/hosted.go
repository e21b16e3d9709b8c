package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scourlabs/scour/pkg/ratelimit"
	"github.com/scourlabs/scour/pkg/version"
)

// hostedParserKey is the Governor pacing key shared by all hosted-parser
// calls.
const hostedParserKey = "hosted-parser"

// HostedParser delegates page extraction to a hosted reader service that
// returns cleaned text for any URL appended to its base.
type HostedParser struct {
	baseURL    string
	apiKey     string
	maxHTMLLen int
	governor   *ratelimit.Governor
	httpc      *http.Client
	logger     *slog.Logger
}

// NewHostedParser creates a client for the parser at baseURL. The page URL is
// appended to baseURL verbatim, so the base normally ends with a slash.
func NewHostedParser(baseURL, apiKey string, maxHTMLLen int, timeout time.Duration, governor *ratelimit.Governor) *HostedParser {
	return &HostedParser{
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxHTMLLen: maxHTMLLen,
		governor:   governor,
		httpc:      &http.Client{Timeout: timeout},
		logger:     slog.With("component", "hosted_parser"),
	}
}

// Extract asks the hosted parser for the cleaned text of pageURL, paced
// through the Governor under the shared hosted-parser key.
func (h *HostedParser) Extract(ctx context.Context, pageURL string) (string, error) {
	release, err := h.governor.Acquire(ctx, hostedParserKey)
	if err != nil {
		return "", err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: invalid parser url: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", version.Full())
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpc.Do(req)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		h.logger.Error("Hosted parser refused url",
			"url", pageURL,
			"status", resp.StatusCode,
			"response", strings.TrimSpace(string(body)))
		return "", fmt.Errorf("%w: parser status %d", ErrFetchFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(h.maxHTMLLen)*markupOverhead))
	if err != nil {
		return "", classifyTransportErr(err)
	}
	return truncateRunes(string(raw), h.maxHTMLLen), nil
}
