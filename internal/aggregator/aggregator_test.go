package aggregator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/commentator/pkg/types"
)

func turn(id, content string, start, end time.Duration) types.Turn {
	return types.Turn{ID: id, Content: content, StartTime: start, EndTime: end}
}

func TestAdd_FlushesByWordCap(t *testing.T) {
	t.Parallel()
	cfg := Config{MinTurnDuration: 5 * time.Second, MaxWords: 5, MaxDelay: time.Hour}
	a := New(cfg, func(types.Turn) { t.Fatal("onTimeout should not fire") })

	_, ready := a.Add(turn("1", "a b", 0, 300*time.Millisecond))
	assert.False(t, ready)

	got, ready := a.Add(turn("2", "c d e", 300*time.Millisecond, 600*time.Millisecond))
	require.True(t, ready)
	assert.Equal(t, "a b c d e", got.Content)
	assert.Equal(t, time.Duration(0), got.StartTime)
	assert.Equal(t, 600*time.Millisecond, got.EndTime)
}

func TestAdd_FlushesByMinTurnDuration(t *testing.T) {
	t.Parallel()
	cfg := Config{MinTurnDuration: time.Second, MaxDelay: time.Hour}
	a := New(cfg, func(types.Turn) {})

	got, ready := a.Add(turn("1", "hello there", 0, 2*time.Second))
	require.True(t, ready)
	assert.Equal(t, "hello there", got.Content)
}

func TestAdd_DiscardsOnLargeGap(t *testing.T) {
	t.Parallel()
	cfg := Config{MinTurnDuration: time.Hour, MaxGap: 100 * time.Millisecond, MaxDelay: time.Hour}
	a := New(cfg, func(types.Turn) {})

	_, ready := a.Add(turn("1", "first", 0, 100*time.Millisecond))
	require.False(t, ready)

	// Gap of 1s exceeds MaxGap of 100ms — prior buffer discarded.
	_, ready = a.Add(turn("2", "second", 1100*time.Millisecond, 1200*time.Millisecond))
	require.False(t, ready)

	got, ready := a.Add(turn("3", "third", 1200*time.Millisecond, 1200*time.Millisecond+time.Hour+time.Millisecond))
	require.True(t, ready)
	// Content must not include "first" — it was discarded by the gap rule.
	assert.Equal(t, "second third", got.Content)
}

func TestDebounce_FiresOnTimeout(t *testing.T) {
	t.Parallel()
	cfg := Config{MinTurnDuration: time.Hour, MaxDelay: 10 * time.Millisecond}

	var (
		mu  sync.Mutex
		got types.Turn
		fired bool
		wg  sync.WaitGroup
	)
	wg.Add(1)
	a := New(cfg, func(turn types.Turn) {
		mu.Lock()
		got = turn
		fired = true
		mu.Unlock()
		wg.Done()
	})

	_, ready := a.Add(turn("1", "partial", 0, 300*time.Millisecond))
	require.False(t, ready)

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, fired)
	assert.Equal(t, "partial", got.Content)
	assert.Equal(t, "0", got.ID)
}

func TestClear_StopsTimerAndResets(t *testing.T) {
	t.Parallel()
	cfg := Config{MinTurnDuration: time.Hour, MaxDelay: 5 * time.Millisecond}
	a := New(cfg, func(types.Turn) { t.Fatal("onTimeout should not fire after Clear") })

	_, ready := a.Add(turn("1", "partial", 0, time.Second))
	require.False(t, ready)
	a.Clear()

	time.Sleep(20 * time.Millisecond)
}

func TestCountWords_UnicodeAware(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 2, countWords("hello, world!"))
	assert.Equal(t, 4, countWords("你好 世界!"))
}
