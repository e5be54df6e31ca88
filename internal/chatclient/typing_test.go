package chatclient

import (
	"sort"
	"testing"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/relay"
	"github.com/stretchr/testify/assert"
)

type timer struct {
	at time.Time
	f  func()
}

// fakeClock drives a Debouncer without sleeping.
type fakeClock struct {
	now    time.Time
	timers []timer
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) {
	c.timers = append(c.timers, timer{at: c.now.Add(d), f: f})
}

func (c *fakeClock) advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		if len(c.timers) == 0 || c.timers[0].at.After(end) {
			break
		}
		next := c.timers[0]
		c.timers = c.timers[1:]
		c.now = next.at
		next.f()
	}
	c.now = end
}

func newTestDebouncer() (*Debouncer, *fakeClock, *[]string) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	events := &[]string{}
	d := NewDebouncer(func(event string) { *events = append(*events, event) })
	d.now = func() time.Time { return clock.now }
	d.afterFunc = clock.afterFunc
	return d, clock, events
}

func TestBurstThenSilence(t *testing.T) {
	d, clock, events := newTestDebouncer()

	for i := 0; i < 10; i++ {
		d.Keystroke()
		clock.advance(200 * time.Millisecond)
	}
	assert.Equal(t, []string{relay.EventTyping}, *events)
	assert.True(t, d.Typing())

	clock.advance(TypingTimeout)
	assert.Equal(t, []string{relay.EventTyping, relay.EventStopTyping}, *events)
	assert.False(t, d.Typing())

	clock.advance(10 * time.Second)
	assert.Len(t, *events, 2)
}

func TestStopWaitsForFullWindow(t *testing.T) {
	d, clock, events := newTestDebouncer()

	d.Keystroke()
	clock.advance(2900 * time.Millisecond)
	d.Keystroke()
	clock.advance(200 * time.Millisecond)
	assert.Equal(t, []string{relay.EventTyping}, *events, "first timer saw a fresh keystroke")

	clock.advance(2800 * time.Millisecond)
	assert.Equal(t, []string{relay.EventTyping, relay.EventStopTyping}, *events)
}

func TestSecondBurstTypesAgain(t *testing.T) {
	d, clock, events := newTestDebouncer()

	d.Keystroke()
	clock.advance(TypingTimeout)
	d.Keystroke()
	clock.advance(TypingTimeout)

	assert.Equal(t, []string{
		relay.EventTyping, relay.EventStopTyping,
		relay.EventTyping, relay.EventStopTyping,
	}, *events)
}

func TestSentStopsImmediately(t *testing.T) {
	d, clock, events := newTestDebouncer()

	d.Keystroke()
	d.Sent()
	assert.Equal(t, []string{relay.EventTyping, relay.EventStopTyping}, *events)

	clock.advance(TypingTimeout)
	assert.Len(t, *events, 2, "pending timer finds nothing to stop")
}
