package watch

import (
	"sync"
	"time"
)

// debouncer collapses bursts of Trigger calls into a single signal on C,
// emitted once no new trigger has arrived for the window.
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	pending int
	stopped bool
	c       chan int
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window: window,
		c:      make(chan int, 1),
	}
}

// Trigger records one event and restarts the quiet window.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.pending == 0 {
		return
	}
	// A batch still waiting to be consumed already covers these events.
	select {
	case d.c <- d.pending:
	default:
	}
	d.pending = 0
}

// C delivers the number of events coalesced into each batch.
func (d *debouncer) C() <-chan int { return d.c }

func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
