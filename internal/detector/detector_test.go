package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/commentator/internal/detectqueue"
	"github.com/MrWong99/commentator/pkg/provider/llm"
	"github.com/MrWong99/commentator/pkg/provider/llm/mock"
	"github.com/MrWong99/commentator/pkg/types"
)

func cfg() Config {
	return Config{
		DetectionSensitivity:     0.70,
		EmotionThreshold:         0.75,
		TopicTransitionThreshold: 0.30,
		KeypointDensityThreshold: 0.50,
		TriggerDedupThreshold:    0.92,
	}
}

func job(turn types.Turn, immediate, broad string) detectqueue.Job {
	return detectqueue.Job{Turn: turn, UncommentedText: immediate, FullContext: broad, EnqueuedAt: time.Now()}
}

func TestDetect_FiltersByConfidenceAndIntensity(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{
		"events": [
			{"type": "emotion_peak", "confidence": 0.9, "intensity": 0.8, "triggers": ["wow!"], "reasoning": "excited reaction", "content_quality_score": 7},
			{"type": "emotion_peak", "confidence": 0.9, "intensity": 0.2, "triggers": ["meh"], "reasoning": "low intensity", "content_quality_score": 2},
			{"type": "key_point", "confidence": 0.5, "intensity": 0.9, "triggers": ["important"], "reasoning": "below sensitivity", "content_quality_score": 5}
		],
		"context_language": "en"
	}`}}
	d := New(provider, cfg())

	events, err := d.Detect(context.Background(), job(types.Turn{EndTime: 10 * time.Second}, "immediate", "broad"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventEmotionPeak, events[0].Type)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, 10*time.Second, events[0].Timestamp)
	assert.Equal(t, "en", events[0].Metadata.Language)
}

func TestDetect_UnknownTypeDropped(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{
		"events": [{"type": "plot_twist", "confidence": 0.99, "intensity": 0.99}],
		"context_language": "en"
	}`}}
	d := New(provider, cfg())

	events, err := d.Detect(context.Background(), job(types.Turn{}, "", ""))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetect_StripsMarkdownFences(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "```json\n" + `{"events": [], "context_language": "en"}` + "\n```"}}
	d := New(provider, cfg())

	events, err := d.Detect(context.Background(), job(types.Turn{}, "", ""))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetect_MalformedJSONReturnsError(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "not json"}}
	d := New(provider, cfg())

	_, err := d.Detect(context.Background(), job(types.Turn{}, "", ""))
	assert.Error(t, err)
}

func TestDetect_ProviderErrorPropagates(t *testing.T) {
	t.Parallel()
	wantErr := assert.AnError
	provider := &mock.Provider{CompleteErr: wantErr}
	d := New(provider, cfg())

	_, err := d.Detect(context.Background(), job(types.Turn{}, "", ""))
	assert.ErrorIs(t, err, wantErr)
}

func TestDetect_StaleJobReturnsErrStaleJobWithoutCallingProvider(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"events": [], "context_language": "en"}`}}
	c := cfg()
	c.Staleness = 5 * time.Second
	d := New(provider, c)

	staleJob := job(types.Turn{}, "", "")
	staleJob.EnqueuedAt = time.Now().Add(-10 * time.Second)

	_, err := d.Detect(context.Background(), staleJob)
	assert.ErrorIs(t, err, detectqueue.ErrStaleJob)
	assert.Empty(t, provider.CompleteCalls)
}

func TestDedupeTriggers_DropsNearDuplicates(t *testing.T) {
	t.Parallel()
	got := dedupeTriggers([]string{"that's incredible", "thats incredible", "totally different phrase"}, 0.92)
	require.Len(t, got, 2)
	assert.Equal(t, "that's incredible", got[0])
	assert.Equal(t, "totally different phrase", got[1])
}

func TestDedupeTriggers_ZeroThresholdDisablesDedup(t *testing.T) {
	t.Parallel()
	got := dedupeTriggers([]string{"a", "a"}, 0)
	assert.Equal(t, []string{"a", "a"}, got)
}
