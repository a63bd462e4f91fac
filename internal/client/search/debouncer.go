// Package search coalesces rapid search-term changes into a single call
// once input has been quiet for a fixed interval.
package search

import (
	"strings"
	"sync"
	"time"
)

const DefaultInterval = 500 * time.Millisecond

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithTimer replaces the clock-backed timer.
func WithTimer(t Timer) Option {
	return func(d *Debouncer) { d.timer = t }
}

// Debouncer forwards the last pushed term to fire after interval without a
// newer push. An empty term skips the wait and fires at once, on the
// caller's goroutine.
type Debouncer struct {
	interval time.Duration
	fire     func(term string)
	timer    Timer

	mu      sync.Mutex
	seq     uint64
	pending *string
	stopped bool
}

// NewDebouncer returns a Debouncer calling fire with the last term pushed
// once interval passes without another push.
func NewDebouncer(interval time.Duration, fire func(term string), opts ...Option) *Debouncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	d := &Debouncer{interval: interval, fire: fire, timer: NewTimer()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Push records term and restarts the quiet interval. An empty term fires
// at once and cancels anything pending.
func (d *Debouncer) Push(term string) {
	term = strings.TrimSpace(term)

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.seq++
	if term == "" {
		d.pending = nil
		d.timer.Cancel()
		d.mu.Unlock()
		d.fire("")
		return
	}
	d.pending = &term
	seq := d.seq
	d.timer.Start(d.interval, func() { d.elapsed(seq) })
	d.mu.Unlock()
}

// elapsed fires the pending term unless a newer push superseded seq.
func (d *Debouncer) elapsed(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	term := *d.pending
	d.pending = nil
	d.mu.Unlock()
	d.fire(term)
}

// Flush fires the pending term now, if there is one.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || d.pending == nil {
		d.mu.Unlock()
		return
	}
	term := *d.pending
	d.pending = nil
	d.seq++
	d.timer.Cancel()
	d.mu.Unlock()
	d.fire(term)
}

// Pending reports whether a term is waiting for the quiet interval.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels any pending term; later pushes are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	d.timer.Cancel()
}
