package backend

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/fcurrie/clockless-led-golang/pkg/pulse"
)

// pinSetter is the slice of gpiocdev.Line the drain needs.
type pinSetter interface {
	SetValue(int) error
}

// LineConfig tunes the GPIO character-device transmitter.
type LineConfig struct {
	// Chip is the gpiochip name, e.g. "gpiochip0". On the Raspberry
	// Pi 5 the header pins live on gpiochip11 with a base of 512.
	Chip string
	// Tick is the wall-clock duration of one pulse tick.
	Tick time.Duration
	// Grace is the underrun deadline, as for the sim transmitter.
	Grace time.Duration
}

// Line bit-bangs the waveform on a Linux GPIO line via the character
// device. Userspace sleeps are nowhere near the sub-microsecond
// accuracy real strips want, so this is bring-up and diagnostic
// quality only; it exists to validate wiring and pulse shape against a
// logic analyzer, not to drive a display.
type Line struct {
	cfg LineConfig

	mu       sync.Mutex
	cur      *attempt
	line     *gpiocdev.Line
	offset   int
	reset    int
	primed   int
	running  bool
	closed   bool
	setFails uint64
}

// NewLine creates a GPIO transmitter on the given chip.
func NewLine(cfg LineConfig) *Line {
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Microsecond
	}
	return &Line{cfg: cfg, offset: -1}
}

// Begin implements Transmitter. The pin is the line offset on the
// configured chip; the line is requested on first use and re-requested
// when a controller with a different pin is assigned to this channel.
func (l *Line) Begin(pin int, zero, one pulse.Item, resetTicks int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("backend: gpio transmitter is closed")
	}
	if l.line == nil || l.offset != pin {
		if l.line != nil {
			l.line.Close()
			l.line = nil
		}
		line, err := gpiocdev.RequestLine(l.cfg.Chip, pin, gpiocdev.AsOutput(0))
		if err != nil {
			return fmt.Errorf("backend: failed to request %s line %d: %w", l.cfg.Chip, pin, err)
		}
		l.line = line
		l.offset = pin
	}
	if l.cur != nil {
		l.cur.halt()
	}
	l.cur = newAttempt(l.cfg.Grace)
	l.reset = resetTicks
	l.primed = 0
	l.running = false
	return nil
}

// LoadHalf implements Transmitter.
func (l *Line) LoadHalf(half int, items []pulse.Item) error {
	l.mu.Lock()
	a := l.cur
	primed := l.primed
	l.mu.Unlock()
	if a == nil {
		return fmt.Errorf("backend: LoadHalf before Begin")
	}
	if half != primed%2 {
		return fmt.Errorf("backend: halves must alternate, expected %d got %d", primed%2, half)
	}
	if err := a.load(items); err != nil {
		return err
	}
	l.mu.Lock()
	l.primed++
	l.mu.Unlock()
	return nil
}

// Start implements Transmitter.
func (l *Line) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return fmt.Errorf("backend: Start before Begin")
	}
	if l.running {
		return fmt.Errorf("backend: transmitter already started")
	}
	if l.primed < 2 {
		return fmt.Errorf("backend: both halves must be primed before Start, have %d", l.primed)
	}
	l.running = true
	go l.drain(l.cur, l.line, l.reset)
	return nil
}

// Events implements Transmitter.
func (l *Line) Events() <-chan Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return nil
	}
	return l.cur.events
}

// Stop implements Transmitter.
func (l *Line) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil {
		l.cur.halt()
	}
	l.running = false
}

// Close implements Transmitter.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil {
		l.cur.halt()
	}
	l.closed = true
	if l.line != nil {
		err := l.line.Close()
		l.line = nil
		if err != nil {
			return fmt.Errorf("backend: failed to close gpio line: %v", err)
		}
	}
	return nil
}

func (l *Line) drain(a *attempt, line pinSetter, resetTicks int) {
	half := 0
	failed := 0
	defer func() {
		if failed > 0 {
			l.mu.Lock()
			l.setFails += uint64(failed)
			l.mu.Unlock()
		}
	}()
	// A failed SetValue distorts the waveform but must not distort the
	// pacing too, so the tick sleep happens regardless.
	segment := func(level bool, ticks uint16) {
		v := 0
		if level {
			v = 1
		}
		if err := line.SetValue(v); err != nil {
			failed++
			if failed == 1 {
				log.Printf("backend: gpio SetValue failed mid-frame, waveform degraded: %v", err)
			}
		}
		time.Sleep(time.Duration(ticks) * l.cfg.Tick)
	}

	for {
		items, underrun, ok := a.next()
		if !ok {
			if underrun {
				segment(false, 0)
				a.emit(Event{Kind: Underrun, Half: half})
			}
			return
		}
		for _, it := range items {
			if it.IsStop() {
				segment(false, 0)
				time.Sleep(time.Duration(resetTicks) * l.cfg.Tick)
				a.emit(Event{Kind: Done})
				return
			}
			segment(it.Level0, it.Dur0)
			segment(it.Level1, it.Dur1)
		}
		a.emit(Event{Kind: HalfConsumed, Half: half})
		half ^= 1
	}
}

// SetFailures returns how many SetValue calls have failed across all
// attempts on this line. Nonzero means emitted waveforms were
// distorted.
func (l *Line) SetFailures() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setFails
}
