package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor renders PDF text through a size-bounded temporary file.
type PDFExtractor struct {
	maxPages    int
	maxFilesize int64
	timeout     time.Duration
	logger      *slog.Logger
}

// NewPDFExtractor creates an extractor that reads at most maxFilesize bytes
// and maxPages pages per document.
func NewPDFExtractor(maxPages int, maxFilesize int64, timeout time.Duration) *PDFExtractor {
	return &PDFExtractor{
		maxPages:    maxPages,
		maxFilesize: maxFilesize,
		timeout:     timeout,
		logger:      slog.With("component", "pdf"),
	}
}

// Extract spools r to a temporary file and extracts plain text from up to
// maxPages pages. The temporary file is removed on every exit path.
func (e *PDFExtractor) Extract(ctx context.Context, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "scour-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, io.LimitReader(r, e.maxFilesize+1))
	if err != nil {
		return "", fmt.Errorf("%w: downloading pdf: %v", ErrFetchFailed, err)
	}
	if size > e.maxFilesize {
		return "", fmt.Errorf("%w: pdf larger than %d bytes", ErrTooLarge, e.maxFilesize)
	}

	reader, err := pdf.NewReader(tmp, size)
	if err != nil {
		return "", fmt.Errorf("%w: unreadable pdf: %v", ErrFetchFailed, err)
	}

	pages := reader.NumPage()
	if pages > e.maxPages {
		pages = e.maxPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: pdf extraction", ErrTimeout)
			}
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Debug("Skipping unreadable pdf page", "page", i, "error", err)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
