package research

import (
	"regexp"
	"strings"
)

// DoneSentinel is the literal token a model emits to signal that no further
// research is needed.
const DoneSentinel = "<done>"

var thinkBlocks = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes <think>...</think> segments from a model response and
// trims the remainder. Reasoning models prepend these blocks to every answer;
// stored plans and parsed decisions must not carry them.
func StripThink(s string) string {
	return strings.TrimSpace(thinkBlocks.ReplaceAllString(s, ""))
}

// IsDone reports whether a model response is the research-complete sentinel.
func IsDone(s string) bool {
	return StripThink(s) == DoneSentinel
}

// ParseQueryList interprets a model response as either the done sentinel or a
// bracketed list of quoted search queries. Markdown code fences are unwrapped
// before the list is located. A response that is neither the sentinel nor a
// parseable list yields (nil, false); callers treat that like an empty list.
func ParseQueryList(response string) (queries []string, done bool) {
	s := StripThink(response)
	if s == DoneSentinel {
		return nil, true
	}
	s = stripCodeFence(s)

	open := strings.Index(s, "[")
	closing := strings.LastIndex(s, "]")
	if open < 0 || closing <= open {
		return nil, false
	}
	return parseQuotedItems(s[open+1 : closing])
}

// parseQuotedItems scans the interior of a bracketed list for single- or
// double-quoted strings. Anything between items other than commas and
// whitespace disqualifies the whole list.
func parseQuotedItems(inner string) ([]string, bool) {
	var items []string
	var cur strings.Builder
	var quote rune
	escaped := false
	for _, r := range inner {
		switch {
		case quote == 0:
			switch r {
			case '\'', '"':
				quote = r
			case ',', ' ', '\t', '\n', '\r':
			default:
				return nil, false
			}
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == quote:
			items = append(items, cur.String())
			cur.Reset()
			quote = 0
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, false
	}
	return items, false
}

// stripCodeFence returns the body of the first ``` fenced block when the
// response contains one, dropping the language tag line if present.
func stripCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 && !strings.ContainsAny(rest[:nl], "[]") {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
