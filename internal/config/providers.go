package config

import (
	"fmt"
	"os"
	"strings"
)

// detection order when LLM_PROVIDER is unset
var providerOrder = []string{"claude", "openai", "gemini", "kimi"}

// EnvKeyForProvider returns the env var holding the provider's API key.
func EnvKeyForProvider(provider string) string {
	switch provider {
	case "claude":
		return "ANTHROPIC_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// DetectProvider picks the first provider with a key set, falling back to
// a local ollama.
func DetectProvider() string {
	for _, p := range providerOrder {
		if os.Getenv(EnvKeyForProvider(p)) != "" {
			return p
		}
	}
	return "ollama"
}

// InferProviderFromModel guesses the provider from a model name. Returns
// an empty string when unknown.
func InferProviderFromModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return "claude"
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return "openai"
	case strings.HasPrefix(m, "gemini"):
		return "gemini"
	case strings.HasPrefix(m, "kimi"), strings.HasPrefix(m, "moonshot"):
		return "kimi"
	default:
		return ""
	}
}

func getAPIKey(provider, prefix string) (string, error) {
	if key := os.Getenv(prefix + "_API_KEY"); key != "" {
		return key, nil
	}

	if provider == "ollama" {
		return "ollama", nil
	}

	envKey := EnvKeyForProvider(provider)
	key := os.Getenv(envKey)
	if key == "" {
		return "", fmt.Errorf("%s not set", envKey)
	}
	return key, nil
}
