package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
)

// Settings select and configure a provider. Empty fields fall back to the
// provider's environment variables and defaults.
type Settings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// openAICompatible lists providers reached through the OpenAI client.
var openAICompatible = map[string]struct {
	keyEnv, modelEnv, urlEnv string
	defaultModel, defaultURL string
	keyOptional              bool
}{
	"openai":   {"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "gpt-4o-mini", "", false},
	"deepseek": {"DEEPSEEK_API_KEY", "DEEPSEEK_MODEL", "DEEPSEEK_BASE_URL", "deepseek-chat", "https://api.deepseek.com/v1", false},
	"groq":     {"GROQ_API_KEY", "GROQ_MODEL", "GROQ_BASE_URL", "llama-3.1-70b-versatile", "https://api.groq.com/openai/v1", false},
	"gemini":   {"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL", "gemini-1.5-flash", "https://generativelanguage.googleapis.com/v1beta/openai", false},
	"ollama":   {"OLLAMA_API_KEY", "OLLAMA_MODEL", "OLLAMA_BASE_URL", "llama3.1", "http://localhost:11434/v1", true},
	"lmstudio": {"LMSTUDIO_API_KEY", "LMSTUDIO_MODEL", "LMSTUDIO_BASE_URL", "local-model", "http://localhost:1234/v1", true},
}

// Supported returns the provider names NewLLMClient accepts.
func Supported() []string {
	return []string{"anthropic", "deepseek", "gemini", "groq", "lmstudio", "ollama", "openai"}
}

// NewLLMClient creates an engine.LLMClient and resolves the model name.
// LLM_PROVIDER picks the provider when s.Provider is empty (default anthropic).
func NewLLMClient(s Settings) (engine.LLMClient, string, error) {
	provider := strings.ToLower(firstNonEmpty(s.Provider, os.Getenv("LLM_PROVIDER"), "anthropic"))

	if provider == "anthropic" {
		apiKey := firstNonEmpty(s.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		model := firstNonEmpty(s.Model, os.Getenv("ANTHROPIC_MODEL"), engine.DefaultExecutorConfig().Model)
		return NewAnthropicClient(apiKey), model, nil
	}

	p, ok := openAICompatible[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: %s)", provider, strings.Join(Supported(), ", "))
	}
	apiKey := firstNonEmpty(s.APIKey, os.Getenv(p.keyEnv))
	if apiKey == "" {
		if !p.keyOptional {
			return nil, "", fmt.Errorf("%s not set", p.keyEnv)
		}
		apiKey = provider
	}
	model := firstNonEmpty(s.Model, os.Getenv(p.modelEnv), p.defaultModel)
	baseURL := firstNonEmpty(s.BaseURL, os.Getenv(p.urlEnv), p.defaultURL)
	return NewOpenAIClient(apiKey, baseURL), model, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
