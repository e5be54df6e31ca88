package chatclient

import (
	"sync"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/relay"
)

const TypingTimeout = 3000 * time.Millisecond

// Debouncer turns keystrokes into one "typing" per burst and a trailing
// "stop typing" once no keystroke arrived for Delay.
type Debouncer struct {
	Delay time.Duration

	emit      func(event string)
	now       func() time.Time
	afterFunc func(d time.Duration, f func())

	mu     sync.Mutex
	typing bool
	last   time.Time
}

func NewDebouncer(emit func(event string)) *Debouncer {
	return &Debouncer{
		Delay: TypingTimeout,
		emit:  emit,
		now:   time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

func (d *Debouncer) Keystroke() {
	d.mu.Lock()
	start := !d.typing
	d.typing = true
	d.last = d.now()
	d.mu.Unlock()

	if start {
		d.emit(relay.EventTyping)
	}
	d.afterFunc(d.Delay, d.expire)
}

func (d *Debouncer) expire() {
	d.mu.Lock()
	stop := d.typing && d.now().Sub(d.last) >= d.Delay
	if stop {
		d.typing = false
	}
	d.mu.Unlock()

	if stop {
		d.emit(relay.EventStopTyping)
	}
}

// Sent stops typing immediately, as sending a message does.
func (d *Debouncer) Sent() {
	d.mu.Lock()
	d.typing = false
	d.mu.Unlock()
	d.emit(relay.EventStopTyping)
}

func (d *Debouncer) Typing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}
