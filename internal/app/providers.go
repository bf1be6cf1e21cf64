package app

import (
	"fmt"
	"sync"

	"github.com/MrWong99/commentator/internal/config"
	"github.com/MrWong99/commentator/internal/resilience"
	"github.com/MrWong99/commentator/pkg/provider/llm"
)

// providerCache resolves a model name to an llm.Provider, building and
// caching one provider per distinct model on first use via
// internal/config.Registry, so the selector and every configured writer
// share one provider instance per model instead of reconnecting on every
// call. The event detector's provider is built directly from the registry in
// New and does not go through this cache.
type providerCache struct {
	mu       sync.Mutex
	cache    map[string]llm.Provider
	registry *config.Registry
	entry    func(model string) config.ProviderEntry
}

func newProviderCache(registry *config.Registry, entry func(model string) config.ProviderEntry) *providerCache {
	return &providerCache{
		cache:    make(map[string]llm.Provider),
		registry: registry,
		entry:    entry,
	}
}

// resolve implements writer.ProviderFor. Each freshly built provider is wrapped in a
// resilience.LLMFallback carrying just a circuit breaker (no registered
// fallback target), so a model that starts erroring trips open instead of
// being retried on every job — while a generation the scheduler preempted
// (resilience.IsPreemption) never counts against that budget.
func (c *providerCache) resolve(model string) (llm.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.cache[model]; ok {
		return p, nil
	}
	p, err := c.registry.CreateLLM(c.entry(model))
	if err != nil {
		return nil, fmt.Errorf("app: resolve provider for model %q: %w", model, err)
	}
	guarded := resilience.NewLLMFallback(p, model, resilience.FallbackConfig{})
	c.cache[model] = guarded
	return guarded, nil
}
