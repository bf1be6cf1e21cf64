// Package detector adapts an LLM provider into the event-spotting stage of
// the pipeline: given a turn and its surrounding context, it asks the model
// for a structured list of noteworthy events and filters the response down
// to the events worth acting on.
//
// None of the wired backends expose a native structured-output field, so
// the contract is carried entirely in the system prompt and enforced on the
// way back out via llm.DecodeStrictJSON — the same parse-then-validate shape
// pkg/writer uses for its selector response.
package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/MrWong99/commentator/internal/detectqueue"
	"github.com/MrWong99/commentator/pkg/provider/llm"
	"github.com/MrWong99/commentator/pkg/types"
)

// broadContextTail is the maximum number of trailing characters of the
// broad (long-retention) context fed into the prompt.
const broadContextTail = 1500

// defaultStaleness mirrors detectqueue's default staleness bound for the
// belt-and-suspenders re-check performed before calling the provider.
const defaultStaleness = 5 * time.Second

const systemPrompt = `You are a real-time commentary event spotter watching a live stream transcript.

Given recent context and the latest spoken turn, identify noteworthy events worth reacting to.

Respond with strict JSON only, no markdown fences, no prose, matching exactly this shape:
{"events":[{"type":string,"confidence":number,"intensity":number,"triggers":[string],"reasoning":string,"content_quality_score":number}],"context_language":string}

Valid "type" values: emotion_peak, topic_change, question_raised, conclusion_reached, key_point, climax_moment, summary_point.
"confidence" and "intensity" are in [0,1]. "content_quality_score" is in [0,10]. "triggers" are short verbatim phrases from the turn that justify the event. Omit events you are not confident about rather than padding the list.`

// Config tunes per-event-type admission thresholds and trigger-phrase
// de-duplication.
type Config struct {
	DetectionSensitivity     float64
	EmotionThreshold         float64
	TopicTransitionThreshold float64
	KeypointDensityThreshold float64

	// TriggerDedupThreshold is the Jaro-Winkler similarity above which two
	// trigger phrases within the same event are considered duplicates of
	// one another. Zero disables de-duplication.
	TriggerDedupThreshold float64

	// Staleness is the defensive re-check bound applied to a job's
	// EnqueuedAt before calling the provider. Zero uses defaultStaleness;
	// a negative value disables the check (the queue's own staleness gate
	// is then the only one in effect).
	Staleness time.Duration
}

// Detector calls an LLM provider to spot events in a turn and filters the
// result per Config.
type Detector struct {
	provider llm.Provider
	cfg      Config
}

// New creates a Detector backed by provider.
func New(provider llm.Provider, cfg Config) *Detector {
	return &Detector{provider: provider, cfg: cfg}
}

// rawResponse is the wire shape requested of the model.
type rawResponse struct {
	Events          []rawEvent `json:"events"`
	ContextLanguage string     `json:"context_language"`
}

type rawEvent struct {
	Type                string   `json:"type"`
	Confidence          float64  `json:"confidence"`
	Intensity           float64  `json:"intensity"`
	Triggers            []string `json:"triggers"`
	Reasoning           string   `json:"reasoning"`
	ContentQualityScore float64  `json:"content_quality_score"`
}

// Detect builds a prompt from job.UncommentedText (the immediate context),
// the trailing broadContextTail characters of job.FullContext, and
// job.Turn.Content, then asks the provider for a strict-JSON event list.
// Events that fail their type-specific filter are dropped; survivors are
// enriched with a fresh id, Timestamp = job.Turn.EndTime, and Duration = 0.
//
// As a defensive re-check — the queue already verifies this before
// processing a job — Detect first compares job.EnqueuedAt against the configured
// staleness bound and returns detectqueue.ErrStaleJob without calling the
// provider if it has already expired.
//
// Network and parse errors are returned to the caller unwrapped from any
// retry logic — retries, if wanted, belong in a resilience wrapper around
// the Detector, not inside it.
func (d *Detector) Detect(ctx context.Context, job detectqueue.Job) ([]types.Event, error) {
	if staleness := d.staleness(); staleness >= 0 && !job.EnqueuedAt.IsZero() && time.Since(job.EnqueuedAt) > staleness {
		return nil, detectqueue.ErrStaleJob
	}

	turn := job.Turn
	tail := job.FullContext
	if len(tail) > broadContextTail {
		tail = tail[len(tail)-broadContextTail:]
	}

	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []types.Message{
			{Role: "user", Content: buildPrompt(job.UncommentedText, tail, turn.Content)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("detector: completion request: %w", err)
	}

	var parsed rawResponse
	if err := llm.DecodeStrictJSON(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}

	events := make([]types.Event, 0, len(parsed.Events))
	for _, re := range parsed.Events {
		et := types.EventType(re.Type)
		if !d.admits(et, re.Confidence, re.Intensity) {
			continue
		}
		events = append(events, types.Event{
			ID:         uuid.New().String(),
			Type:       et,
			Confidence: clamp01(re.Confidence),
			Intensity:  clamp01(re.Intensity),
			Timestamp:  turn.EndTime,
			Duration:   0,
			Triggers:   dedupeTriggers(re.Triggers, d.cfg.TriggerDedupThreshold),
			Metadata: types.EventMetadata{
				Reasoning:           re.Reasoning,
				Language:            parsed.ContextLanguage,
				ContentQualityScore: clamp(re.ContentQualityScore, 0, 10),
			},
		})
	}
	return events, nil
}

// staleness returns the configured staleness bound, or defaultStaleness if
// unset.
func (d *Detector) staleness() time.Duration {
	if d.cfg.Staleness == 0 {
		return defaultStaleness
	}
	return d.cfg.Staleness
}

// admits reports whether an event of type et with the given confidence and
// intensity passes every applicable threshold. All applicable checks must
// pass; an unrecognised type never admits.
func (d *Detector) admits(et types.EventType, confidence, intensity float64) bool {
	switch et {
	case types.EventEmotionPeak, types.EventTopicChange, types.EventQuestionRaised,
		types.EventConclusionReached, types.EventKeyPoint, types.EventClimaxMoment, types.EventSummaryPoint:
	default:
		return false
	}

	if confidence < d.cfg.DetectionSensitivity {
		return false
	}
	if (et == types.EventEmotionPeak || et == types.EventTopicChange) && intensity < d.cfg.EmotionThreshold {
		return false
	}
	switch et {
	case types.EventTopicChange, types.EventQuestionRaised, types.EventConclusionReached, types.EventSummaryPoint:
		if intensity < d.cfg.TopicTransitionThreshold {
			return false
		}
	}
	if et == types.EventKeyPoint && intensity < d.cfg.KeypointDensityThreshold {
		return false
	}
	return true
}

// buildPrompt assembles the user-turn prompt from the three context tiers.
func buildPrompt(immediateContext, broadContextTail, content string) string {
	var sb strings.Builder
	sb.WriteString("Broad context (earlier in the stream):\n")
	sb.WriteString(broadContextTail)
	sb.WriteString("\n\nRecent context since the last comment:\n")
	sb.WriteString(immediateContext)
	sb.WriteString("\n\nLatest turn:\n")
	sb.WriteString(content)
	return sb.String()
}

// dedupeTriggers drops trigger phrases that are near-duplicates (by
// Jaro-Winkler similarity) of a phrase already kept, preserving order and
// the first occurrence of each distinct phrase. A non-positive threshold
// disables de-duplication.
func dedupeTriggers(triggers []string, threshold float64) []string {
	if threshold <= 0 || len(triggers) < 2 {
		return triggers
	}

	kept := make([]string, 0, len(triggers))
	for _, t := range triggers {
		tl := strings.ToLower(strings.TrimSpace(t))
		if tl == "" {
			continue
		}
		dup := false
		for _, k := range kept {
			if matchr.JaroWinkler(tl, strings.ToLower(k), false) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, t)
		}
	}
	return kept
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
