package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scour.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
local_ai:
  default_model: qwen3:30b
  reason_model: deepseek-r1:14b
`

func TestInitializeAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "qwen3:30b", cfg.LocalAI.DefaultModel)
	assert.Equal(t, ProviderOllama, cfg.LocalAI.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.LocalAI.OllamaBaseURL)
	assert.Equal(t, -1, cfg.LocalAI.DefaultModelCtx)
	assert.Equal(t, "http://localhost:4000", cfg.API.SearxngURL)
	assert.True(t, cfg.Settings.LocalLLMEnabled())
	assert.True(t, cfg.Settings.PlanningEnabled())
	assert.False(t, cfg.Settings.UseHostedParser)
	assert.Equal(t, 3, cfg.Concurrency.ConcurrentLimit)
	assert.Equal(t, time.Second, cfg.Concurrency.CoolDown.Std())
	assert.Equal(t, 10, cfg.Parsing.PDFMaxPages)
	assert.Equal(t, int64(10*1024*1024), cfg.Parsing.PDFMaxFilesize)
	assert.Equal(t, -1, cfg.RateLimits.RequestsPerMinute)
	assert.Equal(t, int64(4), cfg.RateLimits.MaxConcurrent)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
}

func TestInitializeOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
local_ai:
  provider: openai-compat
  local_openai_base_url: http://127.0.0.1:9001/v1
  default_model: m1
  reason_model: m2
  default_model_ctx: 32768
settings:
  with_planning: false
  use_hosted_parser: true
  browse_lite: true
api:
  searxng_url: http://searx.local:8888
  parser_base_url: https://parse.local/
  parser_api_key: k
server:
  port: 9999
concurrency:
  concurrent_limit: 8
  cool_down: 250ms
rate_limits:
  requests_per_minute: 30
  max_concurrent: 2
  operation_wait: 2s
  fallback_model: m3
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAICompat, cfg.LocalAI.Provider)
	assert.Equal(t, 32768, cfg.LocalAI.DefaultModelCtx)
	assert.Equal(t, -1, cfg.LocalAI.ReasonModelCtx, "unset field keeps default")
	assert.False(t, cfg.Settings.PlanningEnabled())
	assert.True(t, cfg.Settings.UseHostedParser)
	assert.True(t, cfg.Settings.BrowseLite)
	assert.Equal(t, "http://searx.local:8888", cfg.API.SearxngURL)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Concurrency.ConcurrentLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Concurrency.CoolDown.Std())
	assert.Equal(t, 30, cfg.RateLimits.RequestsPerMinute)
	assert.Equal(t, 2*time.Second, cfg.RateLimits.OperationWait.Std())
	assert.Equal(t, "m3", cfg.RateLimits.FallbackModel)
}

func TestInitializeExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("SCOUR_TEST_OPENAI_KEY", "sk-test-123")
	path := writeConfig(t, `
local_ai:
  default_model: m1
  reason_model: m2
api:
  openai_api_key: ${SCOUR_TEST_OPENAI_KEY}
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.API.OpenAIAPIKey)
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAML(t *testing.T) {
	path := writeConfig(t, "local_ai: [unclosed")
	_, err := Initialize(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "missing default model",
			content: "local_ai:\n  reason_model: m2\n",
			field:   "default_model",
		},
		{
			name:    "missing reason model",
			content: "local_ai:\n  default_model: m1\n",
			field:   "reason_model",
		},
		{
			name: "hosted llm requires api key",
			content: `
local_ai:
  default_model: m1
  reason_model: m2
settings:
  use_local_llm: false
`,
			field: "openai_api_key",
		},
		{
			name: "bad provider",
			content: `
local_ai:
  provider: vllm
  default_model: m1
  reason_model: m2
`,
			field: "provider",
		},
		{
			name: "bad port",
			content: minimalConfig + `
server:
  port: 700000
`,
			field: "port",
		},
		{
			name: "negative concurrent limit rejected",
			content: minimalConfig + `
concurrency:
  concurrent_limit: -2
`,
			field: "concurrent_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Initialize(context.Background(), path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
concurrency:
  cool_down: 1.5
  fetch_timeout: 45
parsing:
  pdf_timeout: 2m
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Concurrency.CoolDown.Std(), "float seconds")
	assert.Equal(t, 45*time.Second, cfg.Concurrency.FetchTimeout.Std(), "integer seconds")
	assert.Equal(t, 2*time.Minute, cfg.Parsing.PDFTimeout.Std(), "duration string")
}
