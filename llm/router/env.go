package router

import (
	"os"

	"github.com/BaSui01/localroute/llm"
)

// Environment variables consulted by NewFromEnv.
const (
	EnvDefaultProvider = "AI_ROUTER_DEFAULT"
	EnvAnthropicKey    = "ANTHROPIC_API_KEY"
	EnvOpenAIKey       = "OPENAI_API_KEY"
)

// NewFromEnv builds a Router the way the vendor SDKs pick up their
// defaults. An empty provider falls back to $AI_ROUTER_DEFAULT, then
// "claude"; an empty credential falls back to the family's API key
// variable.
func NewFromEnv(provider, credential string, opts ...Option) (*Router, error) {
	if provider == "" {
		provider = os.Getenv(EnvDefaultProvider)
	}
	if provider == "" {
		provider = string(llm.ProviderClaude)
	}
	if credential == "" {
		if p, err := llm.ParseProvider(provider); err == nil {
			credential = os.Getenv(credentialEnv(p.Family()))
		}
	}
	return New(provider, credential, opts...)
}

func credentialEnv(f llm.Family) string {
	if f == llm.FamilyOpenAI {
		return EnvOpenAIKey
	}
	return EnvAnthropicKey
}
