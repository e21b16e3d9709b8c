package config

import "time"

// DefaultConfig returns the built-in defaults. Every field a deployment is
// likely to leave alone has a workable value; only secrets and deployment
// specific URLs must come from the file or environment.
func DefaultConfig() *Config {
	return &Config{
		LocalAI: LocalAIConfig{
			Provider:           ProviderOllama,
			OllamaBaseURL:      "http://localhost:11434",
			LocalOpenAIBaseURL: "http://localhost:1234/v1",
			DefaultModelCtx:    -1,
			ReasonModelCtx:     -1,
		},
		API: APIConfig{
			OpenAIBaseURL: "https://openrouter.ai/api/v1",
			ParserBaseURL: "https://r.jina.ai/",
			SearxngURL:    "http://localhost:4000",
		},
		Settings: SettingsConfig{
			UseHostedParser:  false,
			BrowseLite:       false,
			VerbosePageParse: false,
			// UseLocalLLM and WithPlanning default to true via nil.
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Concurrency: ConcurrencyConfig{
			ConcurrentLimit: 3,
			CoolDown:        Duration(1 * time.Second),
			FetchTimeout:    Duration(30 * time.Second),
		},
		Parsing: ParsingConfig{
			PDFMaxPages:    10,
			PDFMaxFilesize: 10 * 1024 * 1024,
			MaxHTMLLength:  1_000_000,
			PDFTimeout:     Duration(60 * time.Second),
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: -1,
			MaxConcurrent:     4,
			OperationWait:     0,
			FailureThreshold:  3,
			LLMTimeout:        Duration(120 * time.Second),
		},
	}
}
