package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/scourlabs/scour/pkg/search"
)

// StubSearch is an in-process SearXNG lookalike serving canned results per
// query. Queries with no registered results return an empty result list, the
// way a real instance answers an over-narrow query.
type StubSearch struct {
	mu      sync.Mutex
	results map[string][]search.Result

	server *httptest.Server
}

// NewStubSearch starts the stub metasearch backend.
func NewStubSearch() *StubSearch {
	s := &StubSearch{results: make(map[string][]search.Result)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the base URL to configure as the SearXNG endpoint.
func (s *StubSearch) URL() string { return s.server.URL }

// Close shuts the backend down.
func (s *StubSearch) Close() { s.server.Close() }

// Add registers the result links returned for query, in order.
func (s *StubSearch) Add(query string, urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]search.Result, 0, len(urls))
	for i, u := range urls {
		results = append(results, search.Result{
			URL:     u,
			Title:   fmt.Sprintf("Result %d for %s", i+1, query),
			Content: "snippet",
		})
	}
	s.results[query] = results
}

func (s *StubSearch) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	results := s.results[r.URL.Query().Get("q")]
	s.mu.Unlock()
	if results == nil {
		results = []search.Result{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

// StubSite is an in-process web site serving HTML pages for the local
// fetcher. It records request timing so tests can assert the admission
// controller's per-domain bounds from the outside.
type StubSite struct {
	mu        sync.Mutex
	pages     map[string]string
	delay     time.Duration
	blocking  map[string]bool
	starts    []time.Time
	ends      []time.Time
	inFlight  int
	maxFlight int

	started chan string

	server *httptest.Server
}

// NewStubSite starts the stub site.
func NewStubSite() *StubSite {
	s := &StubSite{
		pages:    make(map[string]string),
		blocking: make(map[string]bool),
		started:  make(chan string, 64),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the absolute URL of path on this site.
func (s *StubSite) URL(path string) string { return s.server.URL + path }

// Close shuts the site down.
func (s *StubSite) Close() { s.server.Close() }

// AddPage serves an HTML page at path and returns its absolute URL.
func (s *StubSite) AddPage(path, title, body string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = fmt.Sprintf(
		"<html><head><title>%s</title></head><body><main><p>%s</p></main></body></html>",
		title, body)
	return s.server.URL + path
}

// BlockPage makes requests for path hang until the caller's request context
// is cancelled. Used to pin a fetch mid-flight.
func (s *StubSite) BlockPage(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocking[path] = true
	return s.server.URL + path
}

// SetDelay delays every response by d. Requests abandoned by the client
// return early instead of holding the handler.
func (s *StubSite) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Started signals the path of each request as its handler begins.
func (s *StubSite) Started() <-chan string { return s.started }

// MaxInFlight reports the highest number of requests observed in flight.
func (s *StubSite) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxFlight
}

// Timings returns copies of the handler start and end times in arrival order.
func (s *StubSite) Timings() (starts, ends []time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.starts...), append([]time.Time(nil), s.ends...)
}

func (s *StubSite) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	s.starts = append(s.starts, time.Now())
	delay := s.delay
	block := s.blocking[r.URL.Path]
	page, ok := s.pages[r.URL.Path]
	s.mu.Unlock()

	select {
	case s.started <- r.URL.Path:
	default:
	}

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.ends = append(s.ends, time.Now())
		s.mu.Unlock()
	}()

	if block {
		<-r.Context().Done()
		return
	}
	if delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// StubParser is an in-process hosted-parser lookalike: it answers any
// GET {base}{url} with canned markdown and records the Authorization header.
type StubParser struct {
	mu       sync.Mutex
	text     string
	requests []string
	auth     string

	server *httptest.Server
}

// NewStubParser starts the stub parser returning text for every page.
func NewStubParser(text string) *StubParser {
	s := &StubParser{text: text}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the base URL to configure as the parser endpoint.
func (s *StubParser) URL() string { return s.server.URL }

// Close shuts the parser down.
func (s *StubParser) Close() { s.server.Close() }

// Requests returns the request paths seen, one per parsed page.
func (s *StubParser) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// AuthHeader returns the last Authorization header received.
func (s *StubParser) AuthHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *StubParser) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.String())
	s.auth = r.Header.Get("Authorization")
	text := s.text
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}
