// Package chipset holds the per-chipset bit timings for clockless LED
// protocols. A bit is transmitted as a high pulse followed by a low
// pulse: a zero bit is high for T1 then low for T2+T3, a one bit is
// high for T1+T2 then low for T3. Reset is the low hold time that
// latches a frame.
package chipset

import (
	"fmt"
	"math"
	"time"

	"github.com/fcurrie/clockless-led-golang/pkg/pulse"
)

// Timing is the immutable (T1, T2, T3) triple for one chipset, plus the
// reset (latch) hold time. Values are from the chipset datasheets.
type Timing struct {
	T1    time.Duration
	T2    time.Duration
	T3    time.Duration
	Reset time.Duration
}

// Datasheet timings for the common clockless chipsets.
var (
	WS2812     = Timing{T1: 250 * time.Nanosecond, T2: 625 * time.Nanosecond, T3: 375 * time.Nanosecond, Reset: 280 * time.Microsecond}
	WS2812B    = WS2812
	WS2811     = Timing{T1: 320 * time.Nanosecond, T2: 320 * time.Nanosecond, T3: 640 * time.Nanosecond, Reset: 50 * time.Microsecond}
	WS2811x400 = Timing{T1: 800 * time.Nanosecond, T2: 800 * time.Nanosecond, T3: 900 * time.Nanosecond, Reset: 50 * time.Microsecond}
	SK6812     = Timing{T1: 300 * time.Nanosecond, T2: 300 * time.Nanosecond, T3: 600 * time.Nanosecond, Reset: 80 * time.Microsecond}
	TM1803     = Timing{T1: 700 * time.Nanosecond, T2: 1100 * time.Nanosecond, T3: 700 * time.Nanosecond, Reset: 50 * time.Microsecond}
	TM1809     = Timing{T1: 350 * time.Nanosecond, T2: 350 * time.Nanosecond, T3: 450 * time.Nanosecond, Reset: 50 * time.Microsecond}
	UCS1903    = Timing{T1: 500 * time.Nanosecond, T2: 1500 * time.Nanosecond, T3: 500 * time.Nanosecond, Reset: 50 * time.Microsecond}
	GW6205     = Timing{T1: 250 * time.Nanosecond, T2: 650 * time.Nanosecond, T3: 350 * time.Nanosecond, Reset: 50 * time.Microsecond}
)

var byName = map[string]Timing{
	"ws2812":     WS2812,
	"ws2812b":    WS2812B,
	"ws2811":     WS2811,
	"ws2811-400": WS2811x400,
	"sk6812":     SK6812,
	"tm1803":     TM1803,
	"tm1809":     TM1809,
	"ucs1903":    UCS1903,
	"gw6205":     GW6205,
}

// ByName looks up a chipset timing by its lower-case name as used in
// config files ("ws2812", "sk6812", ...).
func ByName(name string) (Timing, error) {
	t, ok := byName[name]
	if !ok {
		return Timing{}, fmt.Errorf("chipset: unknown chipset %q", name)
	}
	return t, nil
}

// Names returns the known chipset names, for error messages and flags.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	return names
}

// Validate checks the timing triple is usable.
func (t Timing) Validate() error {
	if t.T1 <= 0 || t.T2 <= 0 || t.T3 <= 0 {
		return fmt.Errorf("chipset: timing segments must be positive, got (%v, %v, %v)", t.T1, t.T2, t.T3)
	}
	if t.Reset <= 0 {
		return fmt.Errorf("chipset: reset time must be positive, got %v", t.Reset)
	}
	return nil
}

// BitPeriod returns the total duration of one bit on the wire.
func (t Timing) BitPeriod() time.Duration {
	return t.T1 + t.T2 + t.T3
}

// Pulses converts the timing into the zero-bit and one-bit pulse
// templates at the given tick period. Durations round to the nearest
// tick. Done once at controller init; the templates never change after.
func (t Timing) Pulses(tick time.Duration) (zero, one pulse.Item, err error) {
	if err := t.Validate(); err != nil {
		return pulse.Item{}, pulse.Item{}, err
	}
	if tick <= 0 {
		return pulse.Item{}, pulse.Item{}, fmt.Errorf("chipset: tick period must be positive, got %v", tick)
	}

	t1 := ticks(t.T1, tick)
	t2 := ticks(t.T2, tick)
	t3 := ticks(t.T3, tick)
	if t1 == 0 || t2 == 0 || t3 == 0 {
		return pulse.Item{}, pulse.Item{}, fmt.Errorf("chipset: tick %v too coarse for timing (%v, %v, %v)", tick, t.T1, t.T2, t.T3)
	}
	if t1+t2 > math.MaxUint16 || t2+t3 > math.MaxUint16 {
		return pulse.Item{}, pulse.Item{}, fmt.Errorf("chipset: tick %v too fine, pulse duration overflows", tick)
	}

	zero = pulse.Item{Level0: true, Dur0: uint16(t1), Level1: false, Dur1: uint16(t2 + t3)}
	one = pulse.Item{Level0: true, Dur0: uint16(t1 + t2), Level1: false, Dur1: uint16(t3)}
	return zero, one, nil
}

// Coarsen stretches the timing by the smallest integer factor that
// makes every segment at least one tick long, preserving the segment
// ratios. Returns the timing unchanged when the tick already resolves
// it. A stretched waveform keeps the pulse shape visible on coarse
// outputs such as userspace GPIO; real chips will not latch it.
func (t Timing) Coarsen(tick time.Duration) Timing {
	if tick <= 0 {
		return t
	}
	min := t.T1
	if t.T2 < min {
		min = t.T2
	}
	if t.T3 < min {
		min = t.T3
	}
	if min <= 0 || min >= tick {
		return t
	}
	f := time.Duration((int64(tick) + int64(min) - 1) / int64(min))
	return Timing{
		T1:    t.T1 * f,
		T2:    t.T2 * f,
		T3:    t.T3 * f,
		Reset: t.Reset,
	}
}

// ResetTicks returns the latch hold time in ticks, rounded up.
func (t Timing) ResetTicks(tick time.Duration) int {
	if tick <= 0 {
		return 0
	}
	return int((t.Reset + tick - 1) / tick)
}

func ticks(d, tick time.Duration) int {
	return int((d + tick/2) / tick)
}
