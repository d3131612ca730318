// Package engine schedules clockless LED transmissions over a fixed
// pool of hardware channels. Controllers (one per strip) are dispatched
// to channels in registration order; when strips outnumber channels, a
// finished channel immediately picks up the next queued controller.
// Each active channel keeps its transmitter fed through a 64-slot
// double-buffered pulse ring, refilling one half while the backend
// drains the other.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fcurrie/clockless-led-golang/internal/backend"
	"github.com/fcurrie/clockless-led-golang/internal/pixel"
	"github.com/fcurrie/clockless-led-golang/pkg/chipset"
	"github.com/fcurrie/clockless-led-golang/pkg/pulse"
)

// DefaultTick is the pulse resolution used when Config.Tick is zero.
// 25ns matches an RMT-style peripheral clocked at 40MHz.
const DefaultTick = 25 * time.Nanosecond

// DefaultRetryLimit bounds how often a lost attempt is restarted before
// the frame is abandoned.
const DefaultRetryLimit = 3

// errUnderrun marks an attempt lost to a dry pulse buffer. Internal;
// the caller only ever sees it as a retry or a dropped-frame counter.
var errUnderrun = errors.New("engine: transmission underrun")

// errStopped marks an attempt abandoned by Stop or Close mid-frame.
// Not retried; Show surfaces it so the caller knows the frame never
// finished.
var errStopped = errors.New("transmission stopped mid-frame")

// Config tunes the engine.
type Config struct {
	// RetryLimit is how many times a lost attempt is restarted before
	// the frame is dropped. Zero picks DefaultRetryLimit; negative
	// disables retries.
	RetryLimit int
	// Tick is the pulse tick period used to convert chipset timings.
	// Zero picks DefaultTick.
	Tick time.Duration
}

// FrameSource is the pixel byte stream of one controller, plus the
// rewind hook the engine needs to restart an attempt after an underrun.
type FrameSource interface {
	pixel.Source
	// Rewind resets the stream to the first pixel.
	Rewind()
}

// ControllerConfig describes one LED strip.
type ControllerConfig struct {
	// Name is an optional label used in logs and stats.
	Name string
	// Pin is the output pin handed to the backend.
	Pin int
	// Timing is the chipset bit timing.
	Timing chipset.Timing
	// Source supplies the strip's scaled pixel bytes.
	Source FrameSource
}

// controller is one registered strip with its precomputed templates.
type controller struct {
	id         string
	name       string
	pin        int
	zero       pulse.Item
	one        pulse.Item
	resetTicks int
	src        FrameSource
	stats      ControllerStats
}

// Engine owns the channel pool and the dispatch queue. Construct once
// with a fixed set of transmitters; capacity never changes afterwards.
type Engine struct {
	cfg Config
	txs []backend.Transmitter

	mu          sync.Mutex
	controllers []*controller
	owners      []string // channel index -> controller ID, "" when idle
	state       ShowState
	started     int // controllers dispatched in the current show
	done        int // controllers finished in the current show
	showing     bool
	closed      bool
	frames      uint64
	tracing     bool
	trace       []TraceEvent
	traceSeq    uint64
}

// New creates an engine over the given transmitter pool. The pool size
// is fixed for the engine's lifetime.
func New(cfg Config, txs []backend.Transmitter) (*Engine, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("engine: transmitter pool must not be empty")
	}
	if cfg.RetryLimit == 0 {
		cfg.RetryLimit = DefaultRetryLimit
	} else if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	return &Engine{
		cfg:    cfg,
		txs:    txs,
		owners: make([]string, len(txs)),
	}, nil
}

// Channels returns the pool size.
func (e *Engine) Channels() int {
	return len(e.txs)
}

// Register adds a controller to the dispatch queue and returns its ID.
// Controllers are dispatched in registration order on every Show.
func (e *Engine) Register(cfg ControllerConfig) (string, error) {
	if cfg.Source == nil {
		return "", fmt.Errorf("engine: controller %q has no pixel source", cfg.Name)
	}
	if cfg.Pin < 0 {
		return "", fmt.Errorf("engine: controller %q has invalid pin %d", cfg.Name, cfg.Pin)
	}
	zero, one, err := cfg.Timing.Pulses(e.cfg.Tick)
	if err != nil {
		return "", fmt.Errorf("engine: controller %q: %w", cfg.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", fmt.Errorf("engine: closed")
	}
	if e.showing {
		return "", fmt.Errorf("engine: cannot register while a show is in progress")
	}
	for _, c := range e.controllers {
		if cfg.Name != "" && c.name == cfg.Name {
			return "", fmt.Errorf("engine: controller %q already registered", cfg.Name)
		}
	}

	c := &controller{
		id:         uuid.NewString(),
		name:       cfg.Name,
		pin:        cfg.Pin,
		zero:       zero,
		one:        one,
		resetTicks: cfg.Timing.ResetTicks(e.cfg.Tick),
		src:        cfg.Source,
	}
	c.stats = ControllerStats{ID: c.id, Name: c.name, Pin: c.pin}
	e.controllers = append(e.controllers, c)
	return c.id, nil
}

// Controllers returns the number of registered controllers.
func (e *Engine) Controllers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.controllers)
}

// Show transmits the current frame of every registered controller and
// blocks until all of them finish. Controllers are dispatched strictly
// FIFO over the channel pool; the first wave is armed together so the
// strips latch as close to simultaneously as the backends allow.
//
// A frame lost to repeated underruns is dropped, counted in stats and
// logged, but does not fail the show: a glitched frame beats a hung
// caller. Show returns an error only on cancellation, misuse, or a
// backend failure.
func (e *Engine) Show(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine: closed")
	}
	if e.showing {
		e.mu.Unlock()
		return fmt.Errorf("engine: show already in progress")
	}
	if e.started != e.done {
		e.mu.Unlock()
		return fmt.Errorf("engine: dispatch counters out of sync (%d started, %d done)", e.started, e.done)
	}
	n := len(e.controllers)
	if n == 0 {
		e.mu.Unlock()
		return nil
	}
	e.showing = true
	e.started, e.done = 0, 0
	e.state = Dispatching

	m := len(e.txs)
	wave := m
	if n < m {
		wave = n
	}
	next := 0
	gate := make(chan struct{})
	primedCount := 0
	primeDone := func() {
		e.mu.Lock()
		primedCount++
		if primedCount == wave {
			close(gate)
		}
		e.mu.Unlock()
	}
	var workerWG sync.WaitGroup
	var errs []error
	e.mu.Unlock()

	for ch := 0; ch < m; ch++ {
		workerWG.Add(1)
		go func(ch int) {
			defer workerWG.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				e.mu.Lock()
				if next >= n {
					e.mu.Unlock()
					return
				}
				idx := next
				next++
				c := e.controllers[idx]
				e.owners[ch] = c.id
				e.started++
				e.recordLocked(ch, c.id, ChannelArmed)
				if e.started == wave {
					e.state = AllChannelsBusy
				}
				e.mu.Unlock()

				var g chan struct{}
				var pd func()
				if idx < wave {
					g, pd = gate, primeDone
				}
				err := e.transmit(ctx, ch, c, g, pd)

				e.mu.Lock()
				e.recordLocked(ch, c.id, ChannelDone)
				e.owners[ch] = ""
				e.recordLocked(ch, c.id, ChannelIdle)
				e.done++
				if err != nil {
					errs = append(errs, err)
				}
				e.mu.Unlock()
			}
		}(ch)
	}

	workerWG.Wait()

	e.mu.Lock()
	e.state = AllDone
	if e.done == n {
		e.frames++
	}
	e.showing = false
	e.state = NotStarted
	err := errors.Join(errs...)
	e.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// transmit runs one controller's transmission on one channel,
// restarting after underruns up to the retry limit.
func (e *Engine) transmit(ctx context.Context, ch int, c *controller, gate chan struct{}, primeDone func()) error {
	tx := e.txs[ch]
	for attemptNo := 0; ; attemptNo++ {
		err := e.attempt(ctx, ch, tx, c, gate, primeDone)
		gate, primeDone = nil, nil // only the first attempt takes part in the synchronized start
		if err == nil {
			e.mu.Lock()
			c.stats.Frames++
			c.stats.LastShownAt = time.Now()
			e.mu.Unlock()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, errUnderrun) {
			return fmt.Errorf("engine: controller %s channel %d: %w", c.label(), ch, err)
		}
		if attemptNo < e.cfg.RetryLimit {
			e.mu.Lock()
			c.stats.Retries++
			e.mu.Unlock()
			continue
		}
		// Out of retries: abandon the frame rather than block the show.
		e.mu.Lock()
		c.stats.Dropped++
		e.mu.Unlock()
		log.Printf("engine: controller %s: frame dropped after %d attempts", c.label(), attemptNo+1)
		return nil
	}
}

// attempt primes both ring halves, starts the backend and keeps the
// ring fed until the backend reports Done or Underrun.
func (e *Engine) attempt(ctx context.Context, ch int, tx backend.Transmitter, c *controller, gate chan struct{}, primeDone func()) error {
	primed := false
	markPrimed := func() {
		if primeDone != nil && !primed {
			primed = true
			primeDone()
		}
	}
	defer markPrimed()

	c.src.Rewind()
	st := newTxState(c)
	var buf [backend.HalfSize]pulse.Item

	if err := tx.Begin(c.pin, c.zero, c.one, c.resetTicks); err != nil {
		return err
	}
	for half := 0; half < 2; half++ {
		st.fillHalf(buf[:])
		if err := tx.LoadHalf(half, buf[:]); err != nil {
			return err
		}
	}
	markPrimed()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	e.recordLocked(ch, c.id, ChannelTransmitting)
	e.mu.Unlock()

	if err := tx.Start(); err != nil {
		return err
	}
	events := tx.Events()
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case backend.HalfConsumed:
				st.fillHalf(buf[:])
				if err := tx.LoadHalf(ev.Half, buf[:]); err != nil {
					tx.Stop()
					return err
				}
			case backend.Done:
				e.mu.Lock()
				c.stats.ItemsEmitted += st.items
				e.mu.Unlock()
				return nil
			case backend.Underrun:
				return errUnderrun
			case backend.Stopped:
				return errStopped
			}
		case <-ctx.Done():
			tx.Stop()
			return ctx.Err()
		}
	}
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		Frames:      e.frames,
		State:       e.state,
		Controllers: make(map[string]ControllerStats, len(e.controllers)),
	}
	for _, c := range e.controllers {
		s.Controllers[c.id] = c.stats
	}
	return s
}

// EnableTrace turns channel-assignment tracing on or off. Tracing is
// for tests and debugging; it grows memory per transition while on.
func (e *Engine) EnableTrace(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracing = on
	if !on {
		e.trace = nil
		e.traceSeq = 0
	}
}

// Trace returns a copy of the recorded assignment transitions.
func (e *Engine) Trace() []TraceEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TraceEvent, len(e.trace))
	copy(out, e.trace)
	return out
}

// Close stops and releases every transmitter in the pool.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []error
	for i, tx := range e.txs {
		tx.Stop()
		if err := tx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: channel %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) recordLocked(ch int, id string, state ChannelState) {
	if !e.tracing {
		return
	}
	e.traceSeq++
	e.trace = append(e.trace, TraceEvent{
		Seq:        e.traceSeq,
		Channel:    ch,
		Controller: id,
		State:      state,
	})
}

func (c *controller) label() string {
	if c.name != "" {
		return c.name
	}
	return c.id
}
