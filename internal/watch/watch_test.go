package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_CoalescesRapidEvents(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)

	d := newDebouncer(50*time.Millisecond, func(path string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, path)
	})
	defer d.stop()

	d.trigger("a")
	d.trigger("b")
	d.trigger("c")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c"}, calls, "only the last event fires")
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)

	d := newDebouncer(20*time.Millisecond, func(string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})
	defer d.stop()

	d.trigger("a")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	d.trigger("b")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)

	d := newDebouncer(30*time.Millisecond, func(string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	d.trigger("a")
	d.stop()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

// ---------------------------------------------------------------------------
// Event filtering
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	watched := map[string]bool{"/tmp/rules.yaml": true}

	assert.True(t, isRelevant(fsnotify.Event{Name: "/tmp/rules.yaml", Op: fsnotify.Write}, watched))
	assert.True(t, isRelevant(fsnotify.Event{Name: "/tmp/rules.yaml", Op: fsnotify.Create}, watched))
	assert.True(t, isRelevant(fsnotify.Event{Name: "/tmp/rules.yaml", Op: fsnotify.Rename}, watched))

	// Other files in the watched directory are ignored.
	assert.False(t, isRelevant(fsnotify.Event{Name: "/tmp/other.yaml", Op: fsnotify.Write}, watched))

	// Chmod alone never triggers a run.
	assert.False(t, isRelevant(fsnotify.Event{Name: "/tmp/rules.yaml", Op: fsnotify.Chmod}, watched))
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 500*time.Millisecond, opts.Debounce)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}
