package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Battery Storage Report</title><style>p { color: red }</style></head>
<body>
<nav>Home | About | Contact</nav>
<main>
<h2>Findings</h2>
<p>Grid-scale storage grew by <a href="/stats">40 percent</a> last year.</p>
<script>trackPageView();</script>
</main>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestExtractLiteSkipsBoilerplate(t *testing.T) {
	title, text := extractLite(samplePage)

	assert.Equal(t, "Battery Storage Report", title)
	assert.Contains(t, text, "Findings")
	assert.Contains(t, text, "Grid-scale storage grew by 40 percent last year.")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "trackPageView")
	assert.NotContains(t, text, "Copyright 2026")
	assert.NotContains(t, text, "color: red")
}

func TestExtractMarkdownConvertsMainContent(t *testing.T) {
	title, md, err := extractMarkdown(samplePage, 100_000)
	require.NoError(t, err)

	assert.Equal(t, "Battery Storage Report", title)
	assert.Contains(t, md, "## Findings")
	assert.Contains(t, md, "40 percent")
	assert.NotContains(t, md, "Copyright 2026")
	assert.NotContains(t, md, "trackPageView")
}

func TestExtractMarkdownFallsBackToBody(t *testing.T) {
	page := `<html><head><title>Plain</title></head><body><p>Just a paragraph.</p></body></html>`

	title, md, err := extractMarkdown(page, 100_000)
	require.NoError(t, err)
	assert.Equal(t, "Plain", title)
	assert.Contains(t, md, "Just a paragraph.")
}

func TestCollapseWhitespace(t *testing.T) {
	in := "first   line\t here\n\n\n\nsecond line\n"
	out := collapseWhitespace(in)
	assert.Equal(t, "first line here\n\nsecond line", out)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo wörld", 4))
	assert.Equal(t, "short", truncateRunes("short", 50))
	assert.Equal(t, "unbounded", truncateRunes("unbounded", 0))
	assert.Equal(t, "日本", truncateRunes("日本語テキスト", 2))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		want        pageKind
	}{
		{name: "pdf extension", url: "https://x.example/paper.pdf", contentType: "", want: kindPDF},
		{name: "pdf extension with query", url: "https://x.example/file.PDF?dl=1", contentType: "", want: kindPDF},
		{name: "pdf content type", url: "https://x.example/doc", contentType: "application/pdf", want: kindPDF},
		{name: "html content type", url: "https://x.example/page", contentType: "text/html; charset=utf-8", want: kindHTML},
		{name: "unknown defaults to html", url: "https://x.example/page", contentType: "", want: kindHTML},
		{name: "image is binary", url: "https://x.example/pic", contentType: "image/png", want: kindBinary},
		{name: "octet stream is binary", url: "https://x.example/blob", contentType: "application/octet-stream", want: kindBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.url, tt.contentType))
		})
	}
}
