package config

// Validator performs comprehensive validation on a loaded Config.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll checks every section and returns the first failure.
func (v *Validator) ValidateAll() error {
	checks := []func() error{
		v.validateLocalAI,
		v.validateAPI,
		v.validateServer,
		v.validateConcurrency,
		v.validateParsing,
		v.validateRateLimits,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateLocalAI() error {
	ai := v.cfg.LocalAI
	if ai.DefaultModel == "" {
		return &ValidationError{Section: "local_ai", Field: "default_model", Err: ErrMissingRequiredField}
	}
	if ai.ReasonModel == "" {
		return &ValidationError{Section: "local_ai", Field: "reason_model", Err: ErrMissingRequiredField}
	}
	switch ai.Provider {
	case ProviderOpenAICompat, ProviderOllama:
	default:
		return &ValidationError{Section: "local_ai", Field: "provider", Err: ErrInvalidValue}
	}
	if v.cfg.Settings.LocalLLMEnabled() {
		switch ai.Provider {
		case ProviderOllama:
			if ai.OllamaBaseURL == "" {
				return &ValidationError{Section: "local_ai", Field: "ollama_base_url", Err: ErrMissingRequiredField}
			}
		case ProviderOpenAICompat:
			if ai.LocalOpenAIBaseURL == "" {
				return &ValidationError{Section: "local_ai", Field: "local_openai_base_url", Err: ErrMissingRequiredField}
			}
		}
	}
	return nil
}

func (v *Validator) validateAPI() error {
	api := v.cfg.API
	if api.SearxngURL == "" {
		return &ValidationError{Section: "api", Field: "searxng_url", Err: ErrMissingRequiredField}
	}
	if !v.cfg.Settings.LocalLLMEnabled() {
		if api.OpenAIBaseURL == "" {
			return &ValidationError{Section: "api", Field: "openai_base_url", Err: ErrMissingRequiredField}
		}
		if api.OpenAIAPIKey == "" {
			return &ValidationError{Section: "api", Field: "openai_api_key", Err: ErrMissingRequiredField}
		}
	}
	if v.cfg.Settings.UseHostedParser && api.ParserBaseURL == "" {
		return &ValidationError{Section: "api", Field: "parser_base_url", Err: ErrMissingRequiredField}
	}
	return nil
}

func (v *Validator) validateServer() error {
	srv := v.cfg.Server
	if srv.Port < 1 || srv.Port > 65535 {
		return &ValidationError{Section: "server", Field: "port", Err: ErrInvalidValue}
	}
	return nil
}

func (v *Validator) validateConcurrency() error {
	c := v.cfg.Concurrency
	if c.ConcurrentLimit < 1 {
		return &ValidationError{Section: "concurrency", Field: "concurrent_limit", Err: ErrInvalidValue}
	}
	if c.CoolDown < 0 {
		return &ValidationError{Section: "concurrency", Field: "cool_down", Err: ErrInvalidValue}
	}
	if c.FetchTimeout <= 0 {
		return &ValidationError{Section: "concurrency", Field: "fetch_timeout", Err: ErrInvalidValue}
	}
	return nil
}

func (v *Validator) validateParsing() error {
	p := v.cfg.Parsing
	if p.PDFMaxPages < 1 {
		return &ValidationError{Section: "parsing", Field: "pdf_max_pages", Err: ErrInvalidValue}
	}
	if p.PDFMaxFilesize < 1 {
		return &ValidationError{Section: "parsing", Field: "pdf_max_filesize", Err: ErrInvalidValue}
	}
	if p.MaxHTMLLength < 1 {
		return &ValidationError{Section: "parsing", Field: "max_html_length", Err: ErrInvalidValue}
	}
	if p.PDFTimeout <= 0 {
		return &ValidationError{Section: "parsing", Field: "pdf_timeout", Err: ErrInvalidValue}
	}
	return nil
}

func (v *Validator) validateRateLimits() error {
	rl := v.cfg.RateLimits
	if rl.MaxConcurrent < 1 {
		return &ValidationError{Section: "rate_limits", Field: "max_concurrent", Err: ErrInvalidValue}
	}
	if rl.FailureThreshold < 1 {
		return &ValidationError{Section: "rate_limits", Field: "failure_threshold", Err: ErrInvalidValue}
	}
	if rl.OperationWait < 0 {
		return &ValidationError{Section: "rate_limits", Field: "operation_wait", Err: ErrInvalidValue}
	}
	if rl.LLMTimeout <= 0 {
		return &ValidationError{Section: "rate_limits", Field: "llm_timeout", Err: ErrInvalidValue}
	}
	return nil
}
