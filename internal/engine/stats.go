package engine

import "time"

// ChannelState is the per-channel slot state.
type ChannelState int

const (
	// ChannelIdle means no controller owns the channel.
	ChannelIdle ChannelState = iota
	// ChannelArmed means a controller was assigned and its ring is
	// being primed.
	ChannelArmed
	// ChannelTransmitting means the backend is draining the ring.
	ChannelTransmitting
	// ChannelDone means the controller's transmission finished and the
	// channel is about to be released or reassigned.
	ChannelDone
)

func (s ChannelState) String() string {
	switch s {
	case ChannelIdle:
		return "idle"
	case ChannelArmed:
		return "armed"
	case ChannelTransmitting:
		return "transmitting"
	case ChannelDone:
		return "done"
	}
	return "unknown"
}

// ShowState is the global state of one Show call.
type ShowState int

const (
	// NotStarted means no show is in progress.
	NotStarted ShowState = iota
	// Dispatching means the first wave of controllers is being armed.
	Dispatching
	// AllChannelsBusy means every pool channel holds a controller and
	// the caller is waiting.
	AllChannelsBusy
	// AllDone means every registered controller finished and the caller
	// is about to be released.
	AllDone
)

func (s ShowState) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Dispatching:
		return "dispatching"
	case AllChannelsBusy:
		return "all-channels-busy"
	case AllDone:
		return "all-done"
	}
	return "unknown"
}

// ControllerStats is a snapshot of one controller's lifetime counters.
type ControllerStats struct {
	// ID is the engine-assigned unique identifier.
	ID string
	// Name is the caller-supplied label, if any.
	Name string
	// Pin is the output pin.
	Pin int
	// Frames is the number of completed transmissions.
	Frames uint64
	// ItemsEmitted counts payload pulse items across all completed
	// transmissions, excluding stop padding. One pixel is 24 items.
	ItemsEmitted uint64
	// Retries counts attempts restarted after a refill underrun.
	Retries uint64
	// Dropped counts frames abandoned after the retry limit.
	Dropped uint64
	// LastShownAt is when the controller last completed a transmission.
	LastShownAt time.Time
}

// Stats is a snapshot of engine operational state.
type Stats struct {
	// Frames is the number of completed Show calls.
	Frames uint64
	// State is the global show state at snapshot time.
	State ShowState
	// Controllers maps controller ID to its counters.
	Controllers map[string]ControllerStats
}

// TraceEvent is one channel-assignment transition, recorded when
// tracing is enabled. Used by tests to check the pool invariants.
type TraceEvent struct {
	Seq        uint64
	Channel    int
	Controller string
	State      ChannelState
}
