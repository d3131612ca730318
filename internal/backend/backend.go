// Package backend provides the hardware side of the clockless engine:
// a Transmitter drains pulse items from a double-buffered ring and
// reports progress back over an event channel. The engine owns one
// Transmitter per pool channel and refills halves as they are consumed.
package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/fcurrie/clockless-led-golang/pkg/pulse"
)

const (
	// BufferSize is the number of pulse slots in a channel's ring buffer.
	BufferSize = 64
	// HalfSize is the refill granularity: one half of the ring.
	HalfSize = BufferSize / 2
)

// EventKind identifies what a Transmitter is reporting.
type EventKind int

const (
	// HalfConsumed means the transmitter finished draining one half of
	// the ring and that half may be refilled.
	HalfConsumed EventKind = iota
	// Done means the transmitter reached the stop marker and held the
	// latch period. The transmission completed.
	Done
	// Underrun means a half was not loaded in time and the output ran
	// dry mid-frame. The attempt is lost; the engine may retry.
	Underrun
	// Stopped means the attempt was abandoned by Stop or Close before
	// it finished. Terminal; the attempt is not retried.
	Stopped
)

func (k EventKind) String() string {
	switch k {
	case HalfConsumed:
		return "half-consumed"
	case Done:
		return "done"
	case Underrun:
		return "underrun"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Event is a progress report from a Transmitter.
type Event struct {
	Kind EventKind
	Half int // which half was consumed, for HalfConsumed
}

// Transmitter is one transmission channel. The call sequence for one
// attempt is Begin, LoadHalf(0), LoadHalf(1), Start, then LoadHalf in
// response to each HalfConsumed event until Done or Underrun arrives.
// A Transmitter is not safe for concurrent use; the engine serializes
// access per channel.
type Transmitter interface {
	// Begin arms the transmitter for one transmission attempt on the
	// given pin with the given bit templates and latch hold.
	Begin(pin int, zero, one pulse.Item, resetTicks int) error
	// LoadHalf stages one half of the ring. Halves must alternate
	// starting at 0; both halves are primed before Start.
	LoadHalf(half int, items []pulse.Item) error
	// Start begins draining the primed ring.
	Start() error
	// Events returns the progress channel for the current attempt.
	// The channel is replaced by the next Begin.
	Events() <-chan Event
	// Stop abandons the current attempt, if any. Idempotent.
	Stop()
	// Close releases the channel's resources. The Transmitter is
	// unusable afterwards.
	Close() error
}

// attempt is the drain machinery for one transmission attempt: a
// two-deep half queue, the event channel, and underrun detection. The
// drain goroutine holds its own reference, so a new Begin can replace
// the transmitter's current attempt without racing an old drain.
type attempt struct {
	halves chan []pulse.Item
	events chan Event
	stop   chan struct{}
	grace  time.Duration
	once   sync.Once
}

func newAttempt(grace time.Duration) *attempt {
	if grace <= 0 {
		grace = 5 * time.Millisecond
	}
	return &attempt{
		halves: make(chan []pulse.Item, 2),
		events: make(chan Event, 4),
		stop:   make(chan struct{}),
		grace:  grace,
	}
}

func (a *attempt) load(items []pulse.Item) error {
	if len(items) != HalfSize {
		return fmt.Errorf("backend: half must be %d items, got %d", HalfSize, len(items))
	}
	staged := make([]pulse.Item, HalfSize)
	copy(staged, items)
	select {
	case a.halves <- staged:
		return nil
	default:
		return fmt.Errorf("backend: both halves already staged")
	}
}

// next returns the next staged half, waiting up to the grace period.
// ok is false on underrun or stop; underrun distinguishes the two.
func (a *attempt) next() (items []pulse.Item, underrun, ok bool) {
	select {
	case items = <-a.halves:
		return items, false, true
	case <-a.stop:
		return nil, false, false
	default:
	}
	timer := time.NewTimer(a.grace)
	defer timer.Stop()
	select {
	case items = <-a.halves:
		return items, false, true
	case <-timer.C:
		return nil, true, false
	case <-a.stop:
		return nil, false, false
	}
}

// emit delivers an event unless the attempt was stopped.
func (a *attempt) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.stop:
	}
}

// halt abandons the attempt. Safe to call more than once. The engine
// may be blocked waiting on the event channel, so halt delivers the
// terminal Stopped event itself; the drain goroutine suppresses its
// own emits once stop is closed. The channel's slack always has room
// for one more event, so the send cannot drop.
func (a *attempt) halt() {
	a.once.Do(func() {
		close(a.stop)
		select {
		case a.events <- Event{Kind: Stopped}:
		default:
		}
	})
}

func (a *attempt) stopped() bool {
	select {
	case <-a.stop:
		return true
	default:
		return false
	}
}
