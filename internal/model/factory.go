package model

import (
	"fmt"
	"strings"

	"chartflow/internal/config"
)

// ProviderForModel infers the provider from a model identifier.
// Unrecognized names fall through to the config's active provider.
func ProviderForModel(name string) Provider {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "gemini"):
		return ProviderGemini
	case strings.Contains(lower, "claude") || strings.Contains(lower, "anthropic"):
		return ProviderAnthropic
	case strings.HasPrefix(lower, "gpt") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4"):
		return ProviderOpenAI
	}
	return ""
}

// NewForModel builds a ContentModel for the given model identifier,
// resolving the provider and API key from the user config. A missing
// key for the resolved provider is a configuration error.
func NewForModel(cfg *config.UserConfig, modelName string) (ContentModel, error) {
	provider := ProviderForModel(modelName)
	if provider == "" {
		active, _ := cfg.GetActiveProvider()
		if active == "" {
			return nil, fmt.Errorf("cannot resolve provider for model %q and no credentials configured", modelName)
		}
		provider = Provider(active)
	}

	apiKey := cfg.APIKeyFor(string(provider))
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s (model %q); set %s or .chartflow/config.json", provider, modelName, envVarFor(provider))
	}

	switch provider {
	case ProviderGemini:
		gc := DefaultGeminiConfig(apiKey)
		gc.Model = modelName
		gc.Timeout = cfg.CallTimeout()
		return NewGeminiClientWithConfig(gc)
	case ProviderOpenAI:
		oc := DefaultOpenAIConfig(apiKey)
		oc.Model = modelName
		oc.Timeout = cfg.CallTimeout()
		return NewOpenAIClientWithConfig(oc), nil
	case ProviderAnthropic:
		ac := DefaultAnthropicConfig(apiKey)
		ac.Model = modelName
		ac.Timeout = cfg.CallTimeout()
		return NewAnthropicClientWithConfig(ac), nil
	}

	return nil, fmt.Errorf("unsupported provider: %s", provider)
}

func envVarFor(p Provider) string {
	switch p {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	}
	return "an API key"
}
