package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for both human-readable
// strings ("1s", "500ms") and bare numbers (interpreted as seconds).
type Duration time.Duration

// UnmarshalYAML implements custom unmarshaling for duration values.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", value.Tag)
	}
	switch value.Tag {
	case "!!int":
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	case "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	case "!!str":
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("duration must be a string or number, got %s", value.Tag)
	}
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LLMProvider selects which local backend serves model calls when
// use_local_llm is enabled.
type LLMProvider string

const (
	// ProviderOpenAICompat is a local server speaking the OpenAI
	// chat-completions contract (SSE streaming).
	ProviderOpenAICompat LLMProvider = "openai-compat"
	// ProviderOllama is the Ollama native chat API (NDJSON streaming).
	ProviderOllama LLMProvider = "ollama"
)

// LocalAIConfig holds local provider URLs, model ids, and context sizes.
type LocalAIConfig struct {
	Provider           LLMProvider `yaml:"provider"`
	OllamaBaseURL      string      `yaml:"ollama_base_url"`
	LocalOpenAIBaseURL string      `yaml:"local_openai_base_url"`
	DefaultModel       string      `yaml:"default_model"`
	ReasonModel        string      `yaml:"reason_model"`
	// Context sizes; values <= 0 mean "unset, use the provider default".
	DefaultModelCtx int `yaml:"default_model_ctx"`
	ReasonModelCtx  int `yaml:"reason_model_ctx"`
}

// APIConfig holds external endpoint URLs and their secrets.
type APIConfig struct {
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	ParserBaseURL string `yaml:"parser_base_url"`
	ParserAPIKey  string `yaml:"parser_api_key"`
	SearxngURL    string `yaml:"searxng_url"`
}

// SettingsConfig holds the feature flags snapshotted into each session.
// Pointer flags default to true when omitted.
type SettingsConfig struct {
	UseHostedParser  bool  `yaml:"use_hosted_parser"`
	UseLocalLLM      *bool `yaml:"use_local_llm"`
	WithPlanning     *bool `yaml:"with_planning"`
	BrowseLite       bool  `yaml:"browse_lite"`
	VerbosePageParse bool  `yaml:"verbose_page_parse"`
}

// LocalLLMEnabled resolves the use_local_llm flag (default true).
func (s SettingsConfig) LocalLLMEnabled() bool {
	return s.UseLocalLLM == nil || *s.UseLocalLLM
}

// PlanningEnabled resolves the with_planning flag (default true).
func (s SettingsConfig) PlanningEnabled() bool {
	return s.WithPlanning == nil || *s.WithPlanning
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConcurrencyConfig bounds the fetch fan-out.
type ConcurrencyConfig struct {
	// ConcurrentLimit caps concurrent fetches both per domain and globally.
	ConcurrentLimit int `yaml:"concurrent_limit"`
	// CoolDown is the minimum gap between a completed fetch of a domain
	// and the start of the next fetch of the same domain.
	CoolDown Duration `yaml:"cool_down"`
	// FetchTimeout bounds a single page acquisition.
	FetchTimeout Duration `yaml:"fetch_timeout"`
}

// ParsingConfig bounds page parsing work.
type ParsingConfig struct {
	PDFMaxPages    int      `yaml:"pdf_max_pages"`
	PDFMaxFilesize int64    `yaml:"pdf_max_filesize"`
	MaxHTMLLength  int      `yaml:"max_html_length"`
	PDFTimeout     Duration `yaml:"pdf_timeout"`
}

// RateLimitConfig tunes the LLM rate-limit governor.
type RateLimitConfig struct {
	// RequestsPerMinute paces calls per model; <= 0 disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// MaxConcurrent is the shared ceiling on in-flight governed calls.
	MaxConcurrent int64 `yaml:"max_concurrent"`
	// OperationWait is an optional pause between iterations.
	OperationWait Duration `yaml:"operation_wait"`
	// FallbackModel substitutes a persistently failing model; empty means
	// the configured default model.
	FallbackModel string `yaml:"fallback_model"`
	// FailureThreshold is the consecutive-failure count that triggers the
	// fallback switch.
	FailureThreshold int `yaml:"failure_threshold"`
	// LLMTimeout bounds a single model call.
	LLMTimeout Duration `yaml:"llm_timeout"`
}
