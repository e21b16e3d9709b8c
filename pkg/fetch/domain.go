package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

// RegisteredDomain returns the admission-control key for a URL: its hostname
// lowercased, without port. Scheme-relative and malformed URLs are rejected.
func RegisteredDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return host, nil
}
