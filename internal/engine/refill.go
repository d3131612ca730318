package engine

import "github.com/fcurrie/clockless-led-golang/pkg/pulse"

// txState is the per-attempt cursor over one controller's byte stream:
// which sub-channel of the current pixel comes next, whether the source
// is exhausted, and how many items the attempt has emitted. Exactly one
// channel worker touches a txState at a time.
type txState struct {
	enc       pulse.Encoder
	src       FrameSource
	sub       int // next sub-channel of the current pixel: 0, 1 or 2
	exhausted bool
	items     uint64 // payload items emitted, excludes stop padding
}

func newTxState(c *controller) *txState {
	return &txState{
		enc: pulse.NewEncoder(c.zero, c.one),
		src: c.src,
	}
}

// fillHalf fills exactly one half of the ring from the pixel source.
// When the source runs out mid-fill the remainder is padded with stop
// items, which the backend reads as the end-of-transmission latch.
func (t *txState) fillHalf(dst []pulse.Item) {
	for i := 0; i+pulse.BitsPerByte <= len(dst); i += pulse.BitsPerByte {
		b, ok := t.nextByte()
		if !ok {
			for j := i; j < len(dst); j++ {
				dst[j] = pulse.Stop()
			}
			return
		}
		t.enc.EncodeByte(dst[i:i+pulse.BitsPerByte], b)
		t.items += pulse.BitsPerByte
	}
}

// nextByte pulls the next protocol byte: sub-channels 0, 1, 2 of each
// pixel in order, advancing the source after the third.
func (t *txState) nextByte() (byte, bool) {
	if t.exhausted {
		return 0, false
	}
	switch t.sub {
	case 0:
		if !t.src.Has(1) {
			t.exhausted = true
			return 0, false
		}
		t.sub = 1
		return t.src.LoadAndScale0(), true
	case 1:
		t.sub = 2
		return t.src.LoadAndScale1(), true
	default:
		t.sub = 0
		b := t.src.LoadAndScale2()
		t.src.AdvanceData()
		t.src.StepDithering()
		return b, true
	}
}
