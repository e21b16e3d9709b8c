// Package e2e boots a complete research service against in-process stand-ins
// for its network neighbours: an OpenAI-compatible scripted model backend, a
// SearXNG lookalike, a stub web site, and a real PostgreSQL schema. Only the
// outer edges are faked; the orchestrator, session store, rate-limit
// governor, fetch admission, and HTTP API under test are the production
// implementations.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scourlabs/scour/pkg/api"
	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/database"
	"github.com/scourlabs/scour/pkg/fetch"
	"github.com/scourlabs/scour/pkg/llm"
	"github.com/scourlabs/scour/pkg/ratelimit"
	"github.com/scourlabs/scour/pkg/research"
	"github.com/scourlabs/scour/pkg/search"
	"github.com/scourlabs/scour/pkg/services"
	"github.com/scourlabs/scour/test/util"
)

// TestApp is one fully wired research service instance for e2e testing.
type TestApp struct {
	Config   *config.Config
	DB       *database.Client
	Store    *services.SessionStore
	Registry *research.RunRegistry

	LLM    *ScriptedLLM
	Search *StubSearch
	Site   *StubSite
	Parser *StubParser // nil unless WithParser was used

	BaseURL string

	t *testing.T
}

// testAppConfig accumulates options before the app is built.
type testAppConfig struct {
	llm    *ScriptedLLM
	search *StubSearch
	site   *StubSite
	parser *StubParser
	mutate []func(*config.Config)
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLM injects a pre-scripted model backend.
func WithLLM(s *ScriptedLLM) TestAppOption {
	return func(c *testAppConfig) { c.llm = s }
}

// WithSearch injects a pre-populated metasearch stub.
func WithSearch(s *StubSearch) TestAppOption {
	return func(c *testAppConfig) { c.search = s }
}

// WithSite injects a pre-populated web site stub.
func WithSite(s *StubSite) TestAppOption {
	return func(c *testAppConfig) { c.site = s }
}

// WithParser wires a hosted-parser stub and enables the hosted parsing path.
func WithParser(s *StubParser) TestAppOption {
	return func(c *testAppConfig) { c.parser = s }
}

// WithConfig applies an override to the config after the stub endpoints have
// been wired in.
func WithConfig(mutate func(*config.Config)) TestAppOption {
	return func(c *testAppConfig) { c.mutate = append(c.mutate, mutate) }
}

// NewTestApp builds and starts a full research service instance on a random
// port. Shutdown is registered via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llm == nil {
		tc.llm = NewScriptedLLM()
	}
	if tc.search == nil {
		tc.search = NewStubSearch()
	}
	if tc.site == nil {
		tc.site = NewStubSite()
	}

	db := util.NewTestClient(t)
	cfg := testConfig(tc)

	store := services.NewSessionStore(db.Pool())
	governor := ratelimit.NewGovernor(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimits.RequestsPerMinute,
		MaxConcurrent:     cfg.RateLimits.MaxConcurrent,
		FailureThreshold:  cfg.RateLimits.FailureThreshold,
		FallbackModel:     cfg.RateLimits.FallbackModel,
	})
	admission := fetch.NewAdmission(cfg.Concurrency.ConcurrentLimit, cfg.Concurrency.CoolDown.Std())

	client, err := llm.New(cfg, governor)
	if err != nil {
		t.Fatalf("failed to build llm client: %v", err)
	}
	searcher := search.NewClient(cfg.API.SearxngURL, cfg.Concurrency.FetchTimeout.Std())
	pages := fetch.NewPipeline(cfg, governor)

	orchestrator := research.NewOrchestrator(cfg, client, searcher, pages, admission, store)
	registry := research.NewRunRegistry()

	server := api.NewServer(cfg, store, orchestrator, registry, db)
	httpServer := httptest.NewServer(server.Handler())

	app := &TestApp{
		Config:   cfg,
		DB:       db,
		Store:    store,
		Registry: registry,
		LLM:      tc.llm,
		Search:   tc.search,
		Site:     tc.site,
		Parser:   tc.parser,
		BaseURL:  httpServer.URL,
		t:        t,
	}

	t.Cleanup(func() {
		// Cancel stragglers before tearing the stubs down so their terminal
		// saves run against a live database.
		registry.CancelAll()
		deadline := time.Now().Add(5 * time.Second)
		for registry.Count() > 0 && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
		httpServer.Close()
		tc.llm.Close()
		tc.search.Close()
		tc.site.Close()
		if tc.parser != nil {
			tc.parser.Close()
		}
	})

	return app
}

// testConfig builds the app configuration: production defaults with the stub
// endpoints substituted and the timing knobs tightened for tests.
func testConfig(tc *testAppConfig) *config.Config {
	cfg := config.DefaultConfig()

	useLocal := true
	cfg.Settings.UseLocalLLM = &useLocal
	cfg.LocalAI.Provider = config.ProviderOpenAICompat
	cfg.LocalAI.LocalOpenAIBaseURL = tc.llm.URL()
	cfg.LocalAI.DefaultModel = "test-default"
	cfg.LocalAI.ReasonModel = "test-reason"

	cfg.API.SearxngURL = tc.search.URL()
	cfg.API.ParserBaseURL = ""
	if tc.parser != nil {
		// The page URL is appended verbatim, so the base needs the slash.
		cfg.API.ParserBaseURL = tc.parser.URL() + "/"
		cfg.API.ParserAPIKey = "test-parser-key"
		cfg.Settings.UseHostedParser = true
	}

	cfg.Concurrency.ConcurrentLimit = 3
	cfg.Concurrency.CoolDown = config.Duration(10 * time.Millisecond)
	cfg.Concurrency.FetchTimeout = config.Duration(5 * time.Second)

	cfg.RateLimits.RequestsPerMinute = -1
	cfg.RateLimits.MaxConcurrent = 8
	cfg.RateLimits.FailureThreshold = 3
	cfg.RateLimits.LLMTimeout = config.Duration(30 * time.Second)
	cfg.RateLimits.OperationWait = 0

	for _, mutate := range tc.mutate {
		mutate(cfg)
	}
	return cfg
}

// waitCtx returns a context bounded by the default e2e wait budget.
func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
