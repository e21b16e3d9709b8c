package fetch

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplateElements never contribute page text and are dropped before
// extraction in both modes.
var boilerplateElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
}

// extractLite parses raw HTML and walks the tree collecting visible text.
// Returns the page title and the cleaned text.
func extractLite(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", ""
	}
	var b strings.Builder
	visibleText(doc, &b)
	return pageTitle(doc), collapseWhitespace(b.String())
}

// extractMarkdown narrows raw HTML to its main content element, prunes
// boilerplate, truncates the remaining markup to maxMarkup characters and
// converts it to markdown.
func extractMarkdown(raw string, maxMarkup int) (string, string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse html: %w", err)
	}
	title := pageTitle(doc)

	node := mainContentNode(doc)
	pruneBoilerplate(node)

	var buf bytes.Buffer
	if err := html.Render(&buf, node); err != nil {
		return "", "", fmt.Errorf("failed to render html: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(truncateRunes(buf.String(), maxMarkup))
	if err != nil {
		return "", "", fmt.Errorf("failed to convert html to markdown: %w", err)
	}
	return title, strings.TrimSpace(md), nil
}

func pageTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return strings.TrimSpace(b.String())
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := pageTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func visibleText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.ElementNode:
		if boilerplateElements[n.DataAtom] {
			return
		}
		if blockLevel(n.DataAtom) && b.Len() > 0 {
			b.WriteString("\n")
		}
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			b.WriteString(text)
			b.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, b)
	}
	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		b.WriteString("\n")
	}
}

func blockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table, atom.Tr,
		atom.Dl, atom.Dt, atom.Dd, atom.Figure, atom.Figcaption, atom.Hr:
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func pruneBoilerplate(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		pruneBoilerplate(c)
		c = next
	}
	if n.Type == html.ElementNode && boilerplateElements[n.DataAtom] && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// mainContentNode prefers <main>, then <article>, then <body>; the whole
// document is the last resort.
func mainContentNode(doc *html.Node) *html.Node {
	var mainNode, articleNode, bodyNode *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Main:
				if mainNode == nil {
					mainNode = n
				}
			case atom.Article:
				if articleNode == nil {
					articleNode = n
				}
			case atom.Body:
				if bodyNode == nil {
					bodyNode = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	switch {
	case mainNode != nil:
		return mainNode
	case articleNode != nil:
		return articleNode
	case bodyNode != nil:
		return bodyNode
	}
	return doc
}
