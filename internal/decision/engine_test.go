package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/commentator/pkg/types"
)

func defaultConfig() Config {
	return Config{
		BaseThreshold:        0.65,
		MinInterval:          20 * time.Second,
		MaxInterval:          90 * time.Second,
		EmotionWeight:        0.20,
		TopicWeight:          0.40,
		TimingWeight:         0.15,
		ImportanceWeight:     0.60,
		KeywordWeight:        0.30,
		FrequencySuppression: 0.80,
		TimeDecayRate:        0.95,
	}
}

func TestNew_InitialDynamicThreshold(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())
	assert.InDelta(t, 0.845, e.DynamicThreshold(), 1e-9)
}

func TestEvaluate_ColdStartSuppression(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())

	events := []types.Event{{
		Type:       types.EventKeyPoint,
		Confidence: 0.95,
		Intensity:  0.9,
		Metadata:   types.EventMetadata{ContentQualityScore: 8},
	}}

	d := e.Evaluate(events, 3*time.Second)
	assert.False(t, d.ShouldComment)
	assert.InDelta(t, 0.1, d.Factors.Timing, 1e-9)
	assert.Contains(t, d.Reasoning, "cold-start")
}

func TestEvaluate_FrequencySuppression(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())

	require.NoError(t, e.UpdateHistory(types.Comment{Metadata: types.CommentMetadata{Timestamp: 100 * time.Second}}))
	require.NoError(t, e.UpdateHistory(types.Comment{Metadata: types.CommentMetadata{Timestamp: 120 * time.Second}}))
	require.NoError(t, e.UpdateHistory(types.Comment{Metadata: types.CommentMetadata{Timestamp: 140 * time.Second}}))

	events := []types.Event{{Type: types.EventKeyPoint, Confidence: 1.0}}
	d := e.Evaluate(events, 150*time.Second)

	assert.False(t, d.ShouldComment)
}

func TestEvaluate_ZeroEventsNeverComments(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())
	d := e.Evaluate(nil, time.Minute)
	assert.False(t, d.ShouldComment)
	assert.Equal(t, types.PriorityLow, d.Priority)
}

func TestEvaluate_HighPriorityRequiresEligibleTypeAndScore(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())

	events := []types.Event{
		{Type: types.EventConclusionReached, Confidence: 1.0, Intensity: 1.0, Metadata: types.EventMetadata{ContentQualityScore: 10}},
		{Type: types.EventEmotionPeak, Confidence: 1.0, Intensity: 1.0, Metadata: types.EventMetadata{ContentQualityScore: 10}},
		{Type: types.EventTopicChange, Confidence: 1.0, Intensity: 1.0, Metadata: types.EventMetadata{ContentQualityScore: 10}},
	}
	d := e.Evaluate(events, 45*time.Second)
	assert.Equal(t, types.PriorityHigh, d.Priority)
	assert.True(t, d.ShouldComment)
}

func TestDynamicThreshold_StaysWithinBounds(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())

	for i := 0; i < 50; i++ {
		d := e.Evaluate([]types.Event{{Type: types.EventConclusionReached, Confidence: 1, Intensity: 1}}, time.Duration(i)*time.Minute)
		if d.ShouldComment {
			require.NoError(t, e.UpdateHistory(types.Comment{Metadata: types.CommentMetadata{Timestamp: time.Duration(i) * time.Minute}}))
		}
		th := e.DynamicThreshold()
		assert.GreaterOrEqual(t, th, minDynamicThreshold)
		assert.LessOrEqual(t, th, maxDynamicThreshold)
	}
}

func TestUpdateHistory_TrimsToCapAndUsesStampedTimestamp(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())

	for i := 0; i < historyCap+5; i++ {
		require.NoError(t, e.UpdateHistory(types.Comment{Metadata: types.CommentMetadata{Timestamp: time.Duration(i) * time.Second}}))
	}

	assert.Len(t, e.history, historyCap)
	assert.Equal(t, time.Duration(historyCap+4)*time.Second, e.lastCommentTime)
}

func TestEvaluate_LastCommentTimeNonDecreasingAcrossEmissions(t *testing.T) {
	t.Parallel()
	e := New(defaultConfig())

	var prev time.Duration = -1
	for i := 0; i < 10; i++ {
		ts := time.Duration(i) * 30 * time.Second
		d := e.Evaluate([]types.Event{{Type: types.EventConclusionReached, Confidence: 1, Intensity: 1}}, ts)
		if d.ShouldComment {
			require.NoError(t, e.UpdateHistory(types.Comment{Metadata: types.CommentMetadata{Timestamp: ts}}))
			assert.GreaterOrEqual(t, e.lastCommentTime, prev)
			prev = e.lastCommentTime
		}
	}
}
