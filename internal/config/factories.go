package config

import (
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/commentator/pkg/provider/llm"
	"github.com/MrWong99/commentator/pkg/provider/llm/anyllm"
	"github.com/MrWong99/commentator/pkg/provider/llm/openai"
)

// RegisterBuiltinLLMProviders registers the two backends named by
// [ModelProvider] ("openai" direct, "google" via any-llm-go's gemini
// backend) under a fresh Registry.
func RegisterBuiltinLLMProviders(reg *Registry) {
	reg.RegisterLLM(string(ModelProviderOpenAI), func(entry ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("config: build openai provider: %w", err)
		}
		return p, nil
	})

	reg.RegisterLLM(string(ModelProviderGoogle), func(entry ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("gemini", entry.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("config: build google (gemini) provider: %w", err)
		}
		return p, nil
	})
}
