// Package autosave provides the cancellable debounce timer behind autosave.
package autosave

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period after the last mutation before an
// autosave is attempted.
const DefaultDelay = 3 * time.Second

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the production value;
// tests inject a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Option func(*Debouncer)

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(af AfterFunc) Option {
	return func(d *Debouncer) {
		if af != nil {
			d.after = af
		}
	}
}

// Debouncer 在最后一次 Trigger 之后静默 delay 再执行 fn。
// 每次 Trigger 取消旧定时器并重新计时；Close 之后不再执行。
type Debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	fn     func()
	after  AfterFunc
	timer  Timer
	gen    uint64
	closed bool
}

// New creates a debouncer running fn. A non-positive delay uses DefaultDelay.
func New(delay time.Duration, fn func(), opts ...Option) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	d := &Debouncer{delay: delay, fn: fn, after: realAfterFunc}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration { return d.delay }

// Trigger (re)starts the timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.after(d.delay, func() { d.fire(gen) })
}

// a timer that lost the race with Stop still carries a stale generation
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Cancel stops a pending run and reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
	return true
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Close cancels any pending run and disables the debouncer for good.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.closed = true
}
