package presence

import (
	"sync"
	"time"
)

// TypingQuietWindow is how long after the last keystroke "stopped typing" is sent.
const TypingQuietWindow = 3 * time.Second

type stopper interface{ Stop() bool }

// TypingDebouncer turns a stream of keystrokes into typing events: every
// keystroke emits true and (re)arms a timer that emits false once the quiet
// window passes without another keystroke.
type TypingDebouncer struct {
	mu    sync.Mutex
	quiet time.Duration
	emit  func(isTyping bool)
	after func(time.Duration, func()) stopper
	timer stopper
	gen   uint64
}

// NewTypingDebouncer returns a debouncer calling emit. A non-positive quiet
// window selects TypingQuietWindow.
func NewTypingDebouncer(quiet time.Duration, emit func(isTyping bool)) *TypingDebouncer {
	if quiet <= 0 {
		quiet = TypingQuietWindow
	}
	return &TypingDebouncer{
		quiet: quiet,
		emit:  emit,
		after: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
}

// Keystroke records activity.
func (d *TypingDebouncer) Keystroke() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.after(d.quiet, func() { d.fire(gen) })
	d.mu.Unlock()

	d.emit(true)
}

// Stop cancels a pending "stopped typing" and emits it immediately if one was pending.
func (d *TypingDebouncer) Stop() {
	d.mu.Lock()
	pending := d.timer != nil && d.timer.Stop()
	d.timer = nil
	d.gen++
	d.mu.Unlock()

	if pending {
		d.emit(false)
	}
}

func (d *TypingDebouncer) fire(gen uint64) {
	d.mu.Lock()
	// A keystroke after this timer was armed owns the next false.
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.emit(false)
}
