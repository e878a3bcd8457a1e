package providers

import (
	"fmt"
	"os"

	"github.com/ternlabs/tern/internal/engine"
)

// providerPreset describes one OpenAI-compatible provider: its env
// variable prefix, default model and fixed base URL (empty means the
// hosted OpenAI endpoint or the env-provided URL).
type providerPreset struct {
	envPrefix       string
	defaultModel    string
	defaultBaseURL  string
	apiKeyOptional  bool   // local servers accept any key
	fallbackAPIKey  string // used when apiKeyOptional and no key set
}

var openAICompatible = map[string]providerPreset{
	"openai":   {envPrefix: "OPENAI", defaultModel: "gpt-4o-mini"},
	"ollama":   {envPrefix: "OLLAMA", defaultModel: "llama3.1", defaultBaseURL: "http://localhost:11434/v1", apiKeyOptional: true, fallbackAPIKey: "ollama"},
	"lmstudio": {envPrefix: "LMSTUDIO", defaultModel: "local-model", defaultBaseURL: "http://localhost:1234/v1", apiKeyOptional: true, fallbackAPIKey: "lm-studio"},
	"deepseek": {envPrefix: "DEEPSEEK", defaultModel: "deepseek-chat", defaultBaseURL: "https://api.deepseek.com/v1"},
	"groq":     {envPrefix: "GROQ", defaultModel: "llama-3.1-70b-versatile", defaultBaseURL: "https://api.groq.com/openai/v1"},
}

// NewLLMClientFromEnv builds an engine.LLMClient from LLM_PROVIDER and
// the provider's own environment variables. It returns the client and
// the model name to use with it. Defaults to ollama: this agent is built
// around local inference.
func NewLLMClientFromEnv() (engine.LLMClient, string, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "ollama"
	}

	if provider == "anthropic" {
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}
		return NewAnthropicClient(apiKey), model, nil
	}

	preset, ok := openAICompatible[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER %q (supported: anthropic, openai, ollama, lmstudio, deepseek, groq)", provider)
	}

	apiKey := os.Getenv(preset.envPrefix + "_API_KEY")
	if apiKey == "" {
		if !preset.apiKeyOptional {
			return nil, "", fmt.Errorf("%s_API_KEY not set", preset.envPrefix)
		}
		apiKey = preset.fallbackAPIKey
	}

	model := os.Getenv(preset.envPrefix + "_MODEL")
	if model == "" {
		model = preset.defaultModel
	}

	baseURL := os.Getenv(preset.envPrefix + "_BASE_URL")
	if baseURL == "" {
		baseURL = preset.defaultBaseURL
	}

	return NewOpenAIClient(apiKey, baseURL), model, nil
}
