package pulse

import "fmt"

// BitsPerByte is the number of pulse items produced per payload byte.
const BitsPerByte = 8

// Item is the atomic unit of clockless output: a two-segment signal
// described as (level0, duration0) followed by (level1, duration1).
// Durations are in backend ticks. An Item with both durations zero is
// the stop marker that terminates a transmission.
type Item struct {
	Level0 bool
	Dur0   uint16
	Level1 bool
	Dur1   uint16
}

// Stop returns the end-of-transmission marker. Backends treat it as the
// latch signal and stop draining when they reach it.
func Stop() Item {
	return Item{}
}

// IsStop reports whether the item is the end-of-transmission marker.
func (it Item) IsStop() bool {
	return it.Dur0 == 0 && it.Dur1 == 0
}

// Ticks returns the total duration of the item in ticks.
func (it Item) Ticks() int {
	return int(it.Dur0) + int(it.Dur1)
}

// Encoder converts payload bytes into pulse items using a pair of
// precomputed bit templates. The zero value is not usable; build one
// with NewEncoder.
type Encoder struct {
	zero Item
	one  Item
}

// NewEncoder creates an encoder from the zero-bit and one-bit templates.
func NewEncoder(zero, one Item) Encoder {
	return Encoder{zero: zero, one: one}
}

// Zero returns the zero-bit template.
func (e Encoder) Zero() Item { return e.zero }

// One returns the one-bit template.
func (e Encoder) One() Item { return e.one }

// EncodeByte writes exactly 8 items into dst, most significant bit
// first. dst must have room for at least BitsPerByte items; the caller
// supplies the slots, no allocation happens here.
func (e Encoder) EncodeByte(dst []Item, b byte) {
	_ = dst[BitsPerByte-1]
	for i := 0; i < BitsPerByte; i++ {
		if b&0x80 != 0 {
			dst[i] = e.one
		} else {
			dst[i] = e.zero
		}
		b <<= 1
	}
}

// DecodeItem classifies a single item against the encoder's templates.
// Returns the bit value, or an error if the item matches neither
// template.
func (e Encoder) DecodeItem(it Item) (bit byte, err error) {
	switch it {
	case e.one:
		return 1, nil
	case e.zero:
		return 0, nil
	}
	return 0, fmt.Errorf("pulse: item %+v matches neither bit template", it)
}

// DecodeByte reassembles one payload byte from 8 consecutive items,
// most significant bit first. Used by the simulated backend and by
// protocol round-trip tests.
func (e Encoder) DecodeByte(items []Item) (byte, error) {
	if len(items) < BitsPerByte {
		return 0, fmt.Errorf("pulse: need %d items to decode a byte, have %d", BitsPerByte, len(items))
	}
	var b byte
	for i := 0; i < BitsPerByte; i++ {
		bit, err := e.DecodeItem(items[i])
		if err != nil {
			return 0, err
		}
		b = b<<1 | bit
	}
	return b, nil
}
