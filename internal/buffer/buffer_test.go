package buffer

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/commentator/pkg/types"
)

func turn(content string, start, end time.Duration) types.Turn {
	return types.Turn{ID: content, Content: content, StartTime: start, EndTime: end}
}

func TestAppend_OrderMatchesArrival(t *testing.T) {
	t.Parallel()
	b := New()
	b.Append(turn("a", 0, time.Second))
	b.Append(turn("b", time.Second, 2*time.Second))
	b.Append(turn("c", 2*time.Second, 3*time.Second))

	got := b.GetLastN(10)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Content, got[1].Content, got[2].Content})
	assert.Equal(t, uint64(0), got[0].Position)
	assert.Equal(t, uint64(2), got[2].Position)
}

func TestGetWindow_CutoffIsDurationNotRescaled(t *testing.T) {
	t.Parallel()
	b := New()
	b.Append(turn("old", 0, 100*time.Second))
	b.Append(turn("new", 100*time.Second, 110*time.Second))

	// Window of 5s from the newest (110s) should exclude the segment at 100s.
	got := b.GetWindow(5 * time.Second)
	assert.Equal(t, "new", got)

	// Window of 20s should include both.
	got = b.GetWindow(20 * time.Second)
	assert.Equal(t, "old new", got)
}

func TestGetWindow_DefaultsToConfiguredWindow(t *testing.T) {
	t.Parallel()
	b := New(WithDefaultWindow(10 * time.Second))
	b.Append(turn("old", 0, 0))
	b.Append(turn("new", 20*time.Second, 20*time.Second))

	assert.Equal(t, "new", b.GetWindow())
}

func TestAppend_EvictsByRetention(t *testing.T) {
	t.Parallel()
	b := New(WithRetention(10 * time.Second))
	b.Append(turn("old", 0, 0))
	b.Append(turn("new", 15*time.Second, 15*time.Second))

	stats := b.Statistics()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 15*time.Second, stats.Newest)
}

func TestGetRange(t *testing.T) {
	t.Parallel()
	b := New()
	b.Append(turn("a", 0, 1*time.Second))
	b.Append(turn("b", 1*time.Second, 5*time.Second))
	b.Append(turn("c", 5*time.Second, 10*time.Second))

	assert.Equal(t, "a b", b.GetRange(0, 5*time.Second))
}

func TestSearch_NewestFirstCappedAtLimit(t *testing.T) {
	t.Parallel()
	b := New()
	for i, content := range []string{"apple pie", "banana split", "apple tart", "cherry cake"} {
		b.Append(turn(content, time.Duration(i)*time.Second, time.Duration(i)*time.Second))
	}

	got := b.Search(regexp.MustCompile(`apple`), 1)
	require.Len(t, got, 1)
	assert.Equal(t, "apple tart", got[0].Content)
}

func TestClear_ResetsPositionAndStatistics(t *testing.T) {
	t.Parallel()
	b := New()
	b.Append(turn("a", 0, 0))
	b.Clear()

	assert.Equal(t, Statistics{}, b.Statistics())
	b.Append(turn("b", 0, 0))
	got := b.GetLastN(1)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(0), got[0].Position)
}
