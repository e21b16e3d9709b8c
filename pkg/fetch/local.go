package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
	"unicode/utf8"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

// markupOverhead scales the extracted-text budget up to a raw-markup byte
// bound for the transport read.
const markupOverhead = 4

// LocalFetcher acquires pages over plain HTTP and extracts their text
// locally.
type LocalFetcher struct {
	httpc      *http.Client
	maxHTMLLen int
	browseLite bool
	pdf        *PDFExtractor
	logger     *slog.Logger
}

// NewLocalFetcher creates a fetcher with the given per-request timeout.
func NewLocalFetcher(fetchTimeout time.Duration, maxHTMLLen int, browseLite bool, pdfx *PDFExtractor) *LocalFetcher {
	return &LocalFetcher{
		httpc:      &http.Client{Timeout: fetchTimeout},
		maxHTMLLen: maxHTMLLen,
		browseLite: browseLite,
		pdf:        pdfx,
		logger:     slog.With("component", "fetch"),
	}
}

// Extract fetches rawURL and returns its text: a markdown rendering of the
// main content by default, a plain text walk in lite mode, extracted plain
// text for PDF documents.
func (f *LocalFetcher) Extract(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := f.httpc.Do(req)
	if err != nil {
		return "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d for %s", ErrFetchFailed, resp.StatusCode, rawURL)
	}

	switch classify(rawURL, resp.Header.Get("Content-Type")) {
	case kindPDF:
		if f.browseLite {
			return "", fmt.Errorf("%w: pdf parsing disabled in lite mode", ErrUnsupportedType)
		}
		text, err := f.pdf.Extract(ctx, resp.Body)
		if err != nil {
			return "", err
		}
		return "# PDF Content\n" + text, nil
	case kindBinary:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, resp.Header.Get("Content-Type"))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxHTMLLen)*markupOverhead))
	if err != nil {
		return "", classifyTransportErr(err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: binary payload", ErrUnsupportedType)
	}

	if isPlainText(resp.Header.Get("Content-Type")) {
		return truncateRunes(string(raw), f.maxHTMLLen), nil
	}

	if f.browseLite {
		title, text := extractLite(string(raw))
		return renderPage(title, truncateRunes(text, f.maxHTMLLen)), nil
	}

	title, md, err := extractMarkdown(string(raw), f.maxHTMLLen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return renderPage(title, md), nil
}

func renderPage(title, body string) string {
	if title == "" {
		return body
	}
	return "# " + title + "\n" + body
}

// classifyTransportErr maps a transport error onto the pipeline sentinels.
// Cancellation passes through untouched so callers can distinguish it from a
// page-level timeout.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}
