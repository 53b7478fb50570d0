package sync

import (
	"sync"
	"time"
)

// Debouncer delays execution of per-key tasks, collapsing bursts. A rapid
// series of force-pushes to the same PR should trigger one review, not five.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	ttl     time.Duration
}

// NewDebouncer creates a Debouncer with the given quiet period.
func NewDebouncer(ttl time.Duration) *Debouncer {
	return &Debouncer{
		pending: make(map[string]*time.Timer),
		ttl:     ttl,
	}
}

// Add schedules fn to run after the quiet period. Calling again with the
// same key resets the timer and discards the previous fn.
func (d *Debouncer) Add(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[key]; ok {
		timer.Stop()
	}

	d.pending[key] = time.AfterFunc(d.ttl, func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()

		fn()
	})
}

// Cancel stops a pending task if it exists.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[key]; ok {
		timer.Stop()
		delete(d.pending, key)
	}
}
