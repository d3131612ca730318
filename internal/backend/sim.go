package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/fcurrie/clockless-led-golang/pkg/pulse"
)

// SimConfig tunes the simulated transmitter.
type SimConfig struct {
	// Tick is the wall-clock duration of one pulse tick. Zero drains
	// as fast as possible, which is what tests want.
	Tick time.Duration
	// Grace is how long the drain waits for an unstaged half before
	// declaring an underrun. Zero picks a default of 5ms.
	Grace time.Duration
}

// Sim is a software transmitter. It drains the ring the way the real
// pulse hardware would, decodes the items back into payload bytes, and
// keeps the decoded frame for verification and for the simulation
// host's display.
type Sim struct {
	cfg SimConfig

	mu        sync.Mutex
	cur       *attempt
	enc       pulse.Encoder
	pin       int
	reset     int
	primed    int
	running   bool
	closed    bool
	frame     []byte // last completed frame
	txCount   uint64
	underruns uint64
}

// NewSim creates a simulated transmitter.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{cfg: cfg}
}

// Begin implements Transmitter.
func (s *Sim) Begin(pin int, zero, one pulse.Item, resetTicks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("backend: sim transmitter is closed")
	}
	if s.cur != nil {
		s.cur.halt()
	}
	s.cur = newAttempt(s.cfg.Grace)
	s.enc = pulse.NewEncoder(zero, one)
	s.pin = pin
	s.reset = resetTicks
	s.primed = 0
	s.running = false
	return nil
}

// LoadHalf implements Transmitter.
func (s *Sim) LoadHalf(half int, items []pulse.Item) error {
	s.mu.Lock()
	a := s.cur
	primed := s.primed
	s.mu.Unlock()
	if a == nil {
		return fmt.Errorf("backend: LoadHalf before Begin")
	}
	if half != primed%2 {
		return fmt.Errorf("backend: halves must alternate, expected %d got %d", primed%2, half)
	}
	if err := a.load(items); err != nil {
		return err
	}
	s.mu.Lock()
	s.primed++
	s.mu.Unlock()
	return nil
}

// Start implements Transmitter.
func (s *Sim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return fmt.Errorf("backend: Start before Begin")
	}
	if s.running {
		return fmt.Errorf("backend: transmitter already started")
	}
	if s.primed < 2 {
		return fmt.Errorf("backend: both halves must be primed before Start, have %d", s.primed)
	}
	s.running = true
	go s.drain(s.cur, s.enc, s.reset)
	return nil
}

// Events implements Transmitter.
func (s *Sim) Events() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.events
}

// Stop implements Transmitter.
func (s *Sim) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.halt()
	}
	s.running = false
}

// Close implements Transmitter.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		s.cur.halt()
	}
	s.closed = true
	return nil
}

// Frame returns a copy of the most recently completed frame's decoded
// payload bytes.
func (s *Sim) Frame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.frame))
	copy(out, s.frame)
	return out
}

// FrameCount returns how many transmissions completed successfully.
func (s *Sim) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

// Underruns returns how many attempts were lost to a dry buffer.
func (s *Sim) Underruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underruns
}

// Pin returns the pin this transmitter was last armed on.
func (s *Sim) Pin() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pin
}

// drain plays the hardware role: consume staged halves one item at a
// time, report each consumed half, and finish at the stop marker.
func (s *Sim) drain(a *attempt, enc pulse.Encoder, resetTicks int) {
	var (
		decoded []byte
		acc     byte
		accBits int
		half    int
	)
	for {
		items, underrun, ok := a.next()
		if !ok {
			if underrun {
				s.mu.Lock()
				s.underruns++
				s.mu.Unlock()
				a.emit(Event{Kind: Underrun, Half: half})
			}
			return
		}
		ticks := 0
		for _, it := range items {
			if it.IsStop() {
				s.pace(resetTicks + ticks)
				s.mu.Lock()
				s.frame = decoded
				s.txCount++
				s.mu.Unlock()
				a.emit(Event{Kind: Done})
				return
			}
			bit, err := enc.DecodeItem(it)
			if err != nil {
				// Malformed item desyncs real hardware too. Treat it
				// as a lost attempt.
				a.emit(Event{Kind: Underrun, Half: half})
				return
			}
			acc = acc<<1 | bit
			accBits++
			if accBits == pulse.BitsPerByte {
				decoded = append(decoded, acc)
				acc, accBits = 0, 0
			}
			ticks += it.Ticks()
		}
		s.pace(ticks)
		a.emit(Event{Kind: HalfConsumed, Half: half})
		half ^= 1
	}
}

func (s *Sim) pace(ticks int) {
	if s.cfg.Tick > 0 && ticks > 0 {
		time.Sleep(time.Duration(ticks) * s.cfg.Tick)
	}
}
