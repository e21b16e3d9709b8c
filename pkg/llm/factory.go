package llm

import (
	"fmt"

	"github.com/scourlabs/scour/pkg/config"
	"github.com/scourlabs/scour/pkg/ratelimit"
)

// New selects the backend from configuration: the local provider when
// use_local_llm is on, the hosted OpenAI-compatible endpoint otherwise.
func New(cfg *config.Config, governor *ratelimit.Governor) (Client, error) {
	timeout := cfg.RateLimits.LLMTimeout.Std()

	if cfg.Settings.LocalLLMEnabled() {
		switch cfg.LocalAI.Provider {
		case config.ProviderOllama:
			return NewOllamaClient(cfg.LocalAI.OllamaBaseURL, timeout, governor), nil
		case config.ProviderOpenAICompat:
			return NewOpenAIClient(cfg.LocalAI.LocalOpenAIBaseURL, "", timeout, governor), nil
		default:
			return nil, fmt.Errorf("unknown local llm provider %q", cfg.LocalAI.Provider)
		}
	}
	return NewOpenAIClient(cfg.API.OpenAIBaseURL, cfg.API.OpenAIAPIKey, timeout, governor), nil
}
