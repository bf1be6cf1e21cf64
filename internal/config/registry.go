package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/commentator/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by CreateLLM when no factory has been
// registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps LLM provider names to their constructor functions. It is
// safe for concurrent use. The orchestrator only ever drives one kind of
// provider — text completion — so unlike the multi-modal registry this was
// adapted from, a single map suffices; see DESIGN.md for the STT/TTS/S2S/
// embeddings/VAD/audio registries this dropped.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]func(ProviderEntry) (llm.Provider, error)
}

// ProviderEntry is the configuration block passed to a registered factory.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "google").
	Name string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// BaseURL overrides the provider's default API endpoint. Empty uses the
	// provider's built-in default.
	BaseURL string

	// Model selects a specific model within the provider (e.g., "gpt-5-nano").
	Model string
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]func(ProviderEntry) (llm.Provider, error))}
}

// RegisterLLM registers an LLM provider factory under name. Subsequent
// calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
