// Package writer implements the comment-generation boundary: given packaged
// context, a configured list of writer styles, and a selector
// configuration, it either produces a comment or rejects generation
// outright.
//
// Writers are plain configuration records, not a polymorphic interface:
// picking one of several commentary styles is expressed here as a single
// selection step followed by a single generation call, both going through
// the same Provider abstraction as the rest of the pipeline
// (internal/resilience wraps that Provider in a circuit breaker before it
// ever reaches Generate — never inside it).
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/commentator/pkg/provider/llm"
	"github.com/MrWong99/commentator/pkg/types"
)

// groundingTailChars is the number of trailing characters of
// UncommentedText used as primary grounding for generation.
const groundingTailChars = 600

// historicalFallbackChars is the number of trailing characters of
// HistoricalText used when UncommentedText is empty.
const historicalFallbackChars = 400

// maxSummarizedEvents caps how many events are described in the prompt.
const maxSummarizedEvents = 5

// CommentContext packages everything a writer needs to produce a comment.
type CommentContext struct {
	CurrentText      string
	HistoricalText   string
	UncommentedText  string
	Events           []types.Event
	PreviousComments []types.Comment
}

// WriterConfig is one configured comment style.
type WriterConfig struct {
	Name         string
	Instructions string
	MinLength    int
	MaxLength    int
	Model        string
}

// SelectorConfig configures the model that picks (or rejects) a writer.
type SelectorConfig struct {
	Model        string
	Instructions string
}

// ProviderFor resolves an llm.Provider for a named model. Callers typically
// back this with a config.Registry lookup; Generate never constructs a
// provider itself and never reaches for a package-global client.
type ProviderFor func(model string) (llm.Provider, error)

type selectorResponse struct {
	Writer string `json:"writer"`
	Reject bool   `json:"reject"`
	Reason string `json:"reason"`
}

// Generate selects a writer (or rejects generation) via the selector model,
// then asks the chosen writer's model for the comment text.
//
// Returns (comment, accepted, reason, err). accepted is false both when the
// selector explicitly rejects and when the generated content falls outside
// the chosen writer's configured length bounds; reason explains why. err is
// reserved for transport/parse failures and misconfiguration — rejection is
// never an error.
//
// The returned comment's Metadata.Timestamp is left zero: the caller (the
// scheduler) stamps it from the triggering turn's EndTime before recording
// it with the decision engine, per the timestamp-source contract in
// internal/decision.
func Generate(ctx context.Context, cctx CommentContext, writers []WriterConfig, selector SelectorConfig, resolve ProviderFor) (*types.Comment, bool, string, error) {
	if len(writers) == 0 {
		return nil, false, "", fmt.Errorf("writer: no writers configured")
	}

	start := time.Now()

	selectorProvider, err := resolve(selector.Model)
	if err != nil {
		return nil, false, "", fmt.Errorf("writer: resolve selector provider: %w", err)
	}

	chosen, reject, reason, err := selectWriter(ctx, selectorProvider, selector, cctx, writers)
	if err != nil {
		return nil, false, "", err
	}
	if reject {
		return nil, false, reason, nil
	}

	writerProvider, err := resolve(chosen.Model)
	if err != nil {
		return nil, false, "", fmt.Errorf("writer: resolve writer provider %q: %w", chosen.Name, err)
	}

	content, err := generateContent(ctx, writerProvider, chosen, cctx)
	if err != nil {
		return nil, false, "", err
	}

	if ok, why := withinBounds(content, chosen); !ok {
		return nil, false, why, nil
	}

	comment := &types.Comment{
		ID:             uuid.New().String(),
		Content:        content,
		Writer:         chosen.Name,
		Length:         len(content),
		GenerationTime: time.Since(start),
	}
	return comment, true, "", nil
}

// selectWriter asks the selector model to pick one of writers by name, or
// reject generation outright.
func selectWriter(ctx context.Context, provider llm.Provider, selector SelectorConfig, cctx CommentContext, writers []WriterConfig) (WriterConfig, bool, string, error) {
	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: selectorSystemPrompt(selector.Instructions, writers),
		Messages: []types.Message{
			{Role: "user", Content: groundingPrompt(cctx)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return WriterConfig{}, false, "", fmt.Errorf("writer: selector completion: %w", err)
	}

	var parsed selectorResponse
	if err := llm.DecodeStrictJSON(resp.Content, &parsed); err != nil {
		return WriterConfig{}, false, "", fmt.Errorf("writer: %w", err)
	}
	if parsed.Reject {
		return WriterConfig{}, true, parsed.Reason, nil
	}

	for _, w := range writers {
		if w.Name == parsed.Writer {
			return w, false, "", nil
		}
	}
	return WriterConfig{}, false, "", fmt.Errorf("writer: selector chose unknown writer %q", parsed.Writer)
}

// generateContent asks the chosen writer's model for the comment text.
func generateContent(ctx context.Context, provider llm.Provider, w WriterConfig, cctx CommentContext) (string, error) {
	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: w.Instructions,
		Messages: []types.Message{
			{Role: "user", Content: groundingPrompt(cctx)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("writer: generation completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// withinBounds reports whether content satisfies w's configured length
// bounds. A zero bound is unconstrained on that side.
func withinBounds(content string, w WriterConfig) (bool, string) {
	if w.MinLength > 0 && len(content) < w.MinLength {
		return false, fmt.Sprintf("generated content shorter than writer %q's minimum length", w.Name)
	}
	if w.MaxLength > 0 && len(content) > w.MaxLength {
		return false, fmt.Sprintf("generated content longer than writer %q's maximum length", w.Name)
	}
	return true, ""
}

// selectorSystemPrompt describes the available writers and asks for strict
// JSON back.
func selectorSystemPrompt(instructions string, writers []WriterConfig) string {
	var sb strings.Builder
	sb.WriteString("You choose which comment writer style best fits the moment, or reject commenting entirely if nothing fits.\n\n")
	if instructions != "" {
		sb.WriteString(instructions)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Available writers:\n")
	for _, w := range writers {
		fmt.Fprintf(&sb, "- %s: %s\n", w.Name, w.Instructions)
	}
	sb.WriteString("\nRespond with strict JSON only, no markdown fences: {\"writer\": string, \"reject\": bool, \"reason\": string}. Set reject=true and explain in reason when no writer fits.")
	return sb.String()
}

// groundingPrompt assembles the grounding text and event summary shared by
// the selector and writer calls.
func groundingPrompt(cctx CommentContext) string {
	var sb strings.Builder
	sb.WriteString("Grounding text:\n")
	sb.WriteString(primaryGrounding(cctx))
	sb.WriteString("\n\nCurrent turn:\n")
	sb.WriteString(cctx.CurrentText)

	if events := summarizeEvents(cctx.Events); events != "" {
		sb.WriteString("\n\nDetected events:\n")
		sb.WriteString(events)
	}
	return sb.String()
}

// primaryGrounding returns the last groundingTailChars of UncommentedText,
// falling back to the last historicalFallbackChars of HistoricalText when
// UncommentedText is empty.
func primaryGrounding(cctx CommentContext) string {
	if cctx.UncommentedText != "" {
		return tail(cctx.UncommentedText, groundingTailChars)
	}
	return tail(cctx.HistoricalText, historicalFallbackChars)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func summarizeEvents(events []types.Event) string {
	if len(events) == 0 {
		return ""
	}
	n := len(events)
	if n > maxSummarizedEvents {
		n = maxSummarizedEvents
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		e := events[i]
		fmt.Fprintf(&sb, "- %s (confidence %.2f, intensity %.2f): %s\n", e.Type, e.Confidence, e.Intensity, e.Metadata.Reasoning)
	}
	return sb.String()
}
