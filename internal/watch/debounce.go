package watch

import (
	"log/slog"
	"sync"
	"time"
)

// debouncer coalesces rapid file events into a single callback invocation:
// only the last event within the configured interval fires.
type debouncer struct {
	interval time.Duration
	callback func(path string)

	mu       sync.Mutex
	timer    *time.Timer
	lastPath string
}

func newDebouncer(interval time.Duration, callback func(path string)) *debouncer {
	return &debouncer{
		interval: interval,
		callback: callback,
	}
}

// trigger records an event for the given path. If no further events arrive
// within the debounce interval, the callback fires with the last path seen.
func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastPath = path

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("debounce callback panicked", slog.Any("error", r))
			}
		}()

		d.mu.Lock()
		p := d.lastPath
		d.mu.Unlock()
		d.callback(p)
	})
}

// stop cancels any pending debounced callback.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
