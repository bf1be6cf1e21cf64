package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/commentator/pkg/provider/llm"
	"github.com/MrWong99/commentator/pkg/types"
)

// LLMFallback implements [llm.Provider] with automatic failover across the
// models configured for one logical slot. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next
// configured fallback model is tried instead.
//
// Completion requests from pkg/writer's selector and pkg/writer's
// generation step reach their backend through an LLMFallback (see
// internal/app's provider cache), so it is the place that can tell an
// unhealthy model apart from a request the scheduler simply gave up on.
// internal/detector's provider is not wrapped in one.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// IsPreemption reports whether err reflects a completion request abandoned
// because the scheduler cancelled its context — a newer decision superseded
// the in-flight generation before the backend ever had a chance to answer
// (see internal/scheduler.Scheduler.Schedule's cancelPrior). Such an error
// says nothing about backend health and must never trip a circuit breaker.
func IsPreemption(err error) bool {
	return errors.Is(err, context.Canceled)
}

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend. If cfg.CircuitBreaker.IgnoreErr is nil, it defaults to
// [IsPreemption] — generation requests killed by scheduler preemption never
// count against a model's failure budget.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.CircuitBreaker.IgnoreErr == nil {
		cfg.CircuitBreaker.IgnoreErr = IsPreemption
	}
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy model and returns its
// response. If the primary fails, subsequent fallback models are tried in
// configured order.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy model and returns
// a streaming chunk channel. Only the initial connection attempt is covered
// by failover; once a stream is established, mid-stream errors are the
// caller's responsibility.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens delegates to the first healthy model's token counter.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities returns the capabilities of the first entry (the primary).
// This does not participate in failover because capabilities are static metadata.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Capabilities()
	}
	return types.ModelCapabilities{}
}
