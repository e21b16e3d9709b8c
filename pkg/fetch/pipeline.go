// Package fetch implements page acquisition: per-domain admission control,
// local HTTP fetching with HTML and PDF text extraction, and the hosted
// parser alternative.
package fetch

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/ratelimit"
)

type pageKind int

const (
	kindHTML pageKind = iota
	kindPDF
	kindBinary
)

// classify sorts a page into HTML, PDF or unusable binary from its URL
// extension and response content type. Unknown types count as HTML.
func classify(rawURL, contentType string) pageKind {
	if u, err := url.Parse(rawURL); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return kindPDF
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/pdf"):
		return kindPDF
	case strings.HasPrefix(ct, "image/"), strings.HasPrefix(ct, "audio/"),
		strings.HasPrefix(ct, "video/"), strings.Contains(ct, "octet-stream"):
		return kindBinary
	}
	return kindHTML
}

func isPlainText(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/plain")
}

// truncateRunes cuts s to at most max characters without splitting a rune.
func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// Pipeline turns a URL into page text through one of two strategies: a
// hosted parser service or the local fetcher.
type Pipeline struct {
	hosted  *HostedParser // nil when no parser endpoint is configured
	local   *LocalFetcher
	verbose bool
	logger  *slog.Logger
}

// NewPipeline wires the pipeline from configuration. The governor paces
// hosted-parser calls; local fetches are bounded by the admission controller
// instead, which the caller holds.
func NewPipeline(cfg *config.Config, governor *ratelimit.Governor) *Pipeline {
	pdfx := NewPDFExtractor(
		cfg.Parsing.PDFMaxPages,
		cfg.Parsing.PDFMaxFilesize,
		cfg.Parsing.PDFTimeout.Std(),
	)
	p := &Pipeline{
		local: NewLocalFetcher(
			cfg.Concurrency.FetchTimeout.Std(),
			cfg.Parsing.MaxHTMLLength,
			cfg.Settings.BrowseLite,
			pdfx,
		),
		verbose: cfg.Settings.VerbosePageParse,
		logger:  slog.With("component", "fetch"),
	}
	if cfg.API.ParserBaseURL != "" {
		p.hosted = NewHostedParser(
			cfg.API.ParserBaseURL,
			cfg.API.ParserAPIKey,
			cfg.Parsing.MaxHTMLLength,
			cfg.Concurrency.FetchTimeout.Std(),
			governor,
		)
	}
	return p
}

// Fetch returns the text of rawURL. useHosted selects the hosted parser when
// one is configured; otherwise the local fetcher runs.
func (p *Pipeline) Fetch(ctx context.Context, rawURL string, useHosted bool) (string, error) {
	if useHosted {
		if p.hosted != nil {
			text, err := p.hosted.Extract(ctx, rawURL)
			return p.finish(rawURL, text, err)
		}
		p.logger.Warn("Hosted parser requested but not configured, using local fetcher", "url", rawURL)
	}
	text, err := p.local.Extract(ctx, rawURL)
	return p.finish(rawURL, text, err)
}

func (p *Pipeline) finish(rawURL string, text string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if p.verbose {
		p.logger.Debug("Extracted page text",
			"url", rawURL,
			"chars", len(text),
			"preview", truncateRunes(text, 120))
	}
	return text, nil
}
