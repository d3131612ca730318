package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/fcurrie/clockless-led-golang/internal/backend"
	"github.com/fcurrie/clockless-led-golang/internal/engine"
	"github.com/fcurrie/clockless-led-golang/internal/pixel"
	"github.com/fcurrie/clockless-led-golang/pkg/chipset"
)

func newPool(n int, cfg backend.SimConfig) ([]backend.Transmitter, []*backend.Sim) {
	txs := make([]backend.Transmitter, n)
	sims := make([]*backend.Sim, n)
	for i := range txs {
		sims[i] = backend.NewSim(cfg)
		txs[i] = sims[i]
	}
	return txs, sims
}

func newStrip(t *testing.T, pixels int) *pixel.Buffer {
	t.Helper()
	buf, err := pixel.NewBuffer(pixels, pixel.RGB)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	for i := 0; i < pixels; i++ {
		buf.SetRGB(i, byte(i), byte(i*2), byte(i*3))
	}
	return buf
}

// TestShowRoundTrip transmits one strip through the sim backend and
// checks the decoded frame matches the buffer byte-for-byte.
func TestShowRoundTrip(t *testing.T) {
	txs, sims := newPool(1, backend.SimConfig{})
	eng, err := engine.New(engine.Config{}, txs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer eng.Close()

	const pixels = 50
	buf := newStrip(t, pixels)
	id, err := eng.Register(engine.ControllerConfig{
		Name:   "strip-0",
		Pin:    18,
		Timing: chipset.WS2812,
		Source: buf,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := eng.Show(context.Background()); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	got := sims[0].Frame()
	if len(got) != 3*pixels {
		t.Fatalf("decoded %d bytes, want %d", len(got), 3*pixels)
	}
	for i := 0; i < pixels; i++ {
		r, g, b, _ := buf.RGB(i)
		if got[3*i] != r || got[3*i+1] != g || got[3*i+2] != b {
			t.Fatalf("pixel %d = (%d, %d, %d), want (%d, %d, %d)",
				i, got[3*i], got[3*i+1], got[3*i+2], r, g, b)
		}
	}

	// 8 bits x 3 channels per pixel, excluding stop padding.
	st := eng.Stats()
	cs := st.Controllers[id]
	if cs.ItemsEmitted != 24*pixels {
		t.Errorf("ItemsEmitted = %d, want %d", cs.ItemsEmitted, 24*pixels)
	}
	if cs.Frames != 1 {
		t.Errorf("Frames = %d, want 1", cs.Frames)
	}
	if st.Frames != 1 {
		t.Errorf("engine Frames = %d, want 1", st.Frames)
	}
}

// TestOversubscribedPool runs 16 strips of 100 LEDs
// against an 8-channel pool. Expect two dispatch waves, FIFO order,
// every controller dispatched exactly once, and the channel assignment
// injective at every point in the trace.
func TestOversubscribedPool(t *testing.T) {
	const (
		strips   = 16
		channels = 8
		pixels   = 100
	)

	// Pace the sims so the two dispatch waves overlap as they would on
	// hardware; unpaced sims finish instantly and one worker can grab
	// the whole second wave (REVIEW_FINDINGS.md F5).
	txs, sims := newPool(channels, backend.SimConfig{Tick: 10 * time.Nanosecond})
	eng, err := engine.New(engine.Config{}, txs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer eng.Close()
	eng.EnableTrace(true)

	ids := make([]string, strips)
	for i := 0; i < strips; i++ {
		buf := newStrip(t, pixels)
		id, err := eng.Register(engine.ControllerConfig{
			Pin:    i,
			Timing: chipset.WS2812,
			Source: buf,
		})
		if err != nil {
			t.Fatalf("Register(%d) error = %v", i, err)
		}
		ids[i] = id
	}

	if err := eng.Show(context.Background()); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	trace := eng.Trace()

	// Replay the trace: the channel->controller map must stay a
	// partial injective function throughout.
	owner := make(map[int]string)
	ownedBy := make(map[string]int)
	var armedOrder []string
	var doneBeforeArm []int // running Done count at each Armed event
	doneCount := 0
	perChannelArms := make(map[int]int)

	for _, ev := range trace {
		switch ev.State {
		case engine.ChannelArmed:
			if cur, busy := owner[ev.Channel]; busy {
				t.Fatalf("channel %d armed for %s while owned by %s", ev.Channel, ev.Controller, cur)
			}
			if ch, dup := ownedBy[ev.Controller]; dup {
				t.Fatalf("controller %s armed on channel %d while owning channel %d", ev.Controller, ev.Channel, ch)
			}
			owner[ev.Channel] = ev.Controller
			ownedBy[ev.Controller] = ev.Channel
			armedOrder = append(armedOrder, ev.Controller)
			doneBeforeArm = append(doneBeforeArm, doneCount)
			perChannelArms[ev.Channel]++
		case engine.ChannelDone:
			if owner[ev.Channel] != ev.Controller {
				t.Fatalf("channel %d done for %s but owned by %s", ev.Channel, ev.Controller, owner[ev.Channel])
			}
			doneCount++
		case engine.ChannelIdle:
			delete(owner, ev.Channel)
			delete(ownedBy, ev.Controller)
		}
	}

	// Every controller dispatched exactly once, in registration order.
	if len(armedOrder) != strips {
		t.Fatalf("armed %d controllers, want %d", len(armedOrder), strips)
	}
	for i, id := range ids {
		if armedOrder[i] != id {
			t.Errorf("dispatch position %d = %s, want %s (FIFO violated)", i, armedOrder[i], id)
		}
	}

	// Two waves: every channel served exactly two controllers, and no
	// second-wave controller was armed before a first-wave slot was done.
	for ch := 0; ch < channels; ch++ {
		if perChannelArms[ch] != 2 {
			t.Errorf("channel %d served %d controllers, want 2", ch, perChannelArms[ch])
		}
	}
	for k := channels; k < strips; k++ {
		if got, need := doneBeforeArm[k], k-channels+1; got < need {
			t.Errorf("controller %d armed with only %d done (need >= %d)", k, got, need)
		}
	}

	// All frames arrived intact.
	for i, sim := range sims {
		if sim.FrameCount() != 2 {
			t.Errorf("channel %d completed %d frames, want 2", i, sim.FrameCount())
		}
		if got := len(sim.Frame()); got != 3*pixels {
			t.Errorf("channel %d last frame %d bytes, want %d", i, got, 3*pixels)
		}
	}

	st := eng.Stats()
	for _, id := range ids {
		cs := st.Controllers[id]
		if cs.Frames != 1 {
			t.Errorf("controller %s Frames = %d, want 1", id, cs.Frames)
		}
		if cs.ItemsEmitted != 24*pixels {
			t.Errorf("controller %s ItemsEmitted = %d, want %d", id, cs.ItemsEmitted, 24*pixels)
		}
	}
}

// slowSource delays every pixel read, forcing refills to miss the sim's
// underrun deadline.
type slowSource struct {
	*pixel.Buffer
	delay time.Duration
}

func (s *slowSource) LoadAndScale0() byte {
	time.Sleep(s.delay)
	return s.Buffer.LoadAndScale0()
}

// TestRetryThenDrop starves the backend with a slow pixel source and
// checks the bounded retry-then-abandon policy: Show still returns
// cleanly, the retries and the dropped frame are counted.
func TestRetryThenDrop(t *testing.T) {
	txs, sims := newPool(1, backend.SimConfig{Grace: time.Millisecond})
	eng, err := engine.New(engine.Config{RetryLimit: 2}, txs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer eng.Close()

	buf := newStrip(t, 40)
	id, err := eng.Register(engine.ControllerConfig{
		Name:   "starved",
		Pin:    4,
		Timing: chipset.WS2812,
		Source: &slowSource{Buffer: buf, delay: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := eng.Show(context.Background()); err != nil {
		t.Fatalf("Show() error = %v (drops must not fail the show)", err)
	}

	cs := eng.Stats().Controllers[id]
	if cs.Retries != 2 {
		t.Errorf("Retries = %d, want 2", cs.Retries)
	}
	if cs.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", cs.Dropped)
	}
	if cs.Frames != 0 {
		t.Errorf("Frames = %d, want 0", cs.Frames)
	}
	if got := sims[0].Underruns(); got != 3 {
		t.Errorf("backend underruns = %d, want 3 (initial attempt + 2 retries)", got)
	}
}

func TestRegisterErrors(t *testing.T) {
	txs, _ := newPool(1, backend.SimConfig{})
	eng, err := engine.New(engine.Config{}, txs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer eng.Close()

	buf := newStrip(t, 1)

	if _, err := eng.Register(engine.ControllerConfig{Timing: chipset.WS2812}); err == nil {
		t.Error("Register() without source did not return error")
	}
	if _, err := eng.Register(engine.ControllerConfig{Pin: -1, Timing: chipset.WS2812, Source: buf}); err == nil {
		t.Error("Register() with negative pin did not return error")
	}
	if _, err := eng.Register(engine.ControllerConfig{Source: buf}); err == nil {
		t.Error("Register() with zero timing did not return error")
	}
	if _, err := eng.Register(engine.ControllerConfig{Name: "a", Timing: chipset.WS2812, Source: buf}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := eng.Register(engine.ControllerConfig{Name: "a", Timing: chipset.WS2812, Source: buf}); err == nil {
		t.Error("Register() with duplicate name did not return error")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := engine.New(engine.Config{}, nil); err == nil {
		t.Error("New() with empty pool did not return error")
	}
}

func TestShowCancelled(t *testing.T) {
	txs, _ := newPool(1, backend.SimConfig{})
	eng, err := engine.New(engine.Config{}, txs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer eng.Close()

	if _, err := eng.Register(engine.ControllerConfig{Timing: chipset.WS2812, Source: newStrip(t, 10)}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := eng.Show(ctx); err != context.Canceled {
		t.Errorf("Show() with cancelled context = %v, want %v", err, context.Canceled)
	}
}

// TestCloseDuringShow closes the engine while a paced transmission is
// in flight. Show must come back promptly with an error instead of
// waiting on events that will never arrive.
func TestCloseDuringShow(t *testing.T) {
	txs, _ := newPool(1, backend.SimConfig{Tick: time.Microsecond})
	eng, err := engine.New(engine.Config{}, txs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := eng.Register(engine.ControllerConfig{
		Name:   "interrupted",
		Pin:    18,
		Timing: chipset.WS2812,
		Source: newStrip(t, 100),
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- eng.Show(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	eng.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Show() = nil after Close mid-transmission, want an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Show() still blocked 2s after Close")
	}
}

// TestRepeatedShows checks the started/done bookkeeping resets between
// batches and frames keep flowing.
func TestRepeatedShows(t *testing.T) {
	txs, sims := newPool(2, backend.SimConfig{})
	eng, err := engine.New(engine.Config{}, txs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer eng.Close()

	bufs := []*pixel.Buffer{newStrip(t, 8), newStrip(t, 8), newStrip(t, 8)}
	for i, buf := range bufs {
		if _, err := eng.Register(engine.ControllerConfig{Pin: i, Timing: chipset.SK6812, Source: buf}); err != nil {
			t.Fatalf("Register(%d) error = %v", i, err)
		}
	}

	for frame := 0; frame < 5; frame++ {
		bufs[0].Fill(byte(frame), 0, 0)
		if err := eng.Show(context.Background()); err != nil {
			t.Fatalf("Show() frame %d error = %v", frame, err)
		}
	}

	if got := eng.Stats().Frames; got != 5 {
		t.Errorf("engine Frames = %d, want 5", got)
	}
	var completed uint64
	for _, sim := range sims {
		completed += sim.FrameCount()
	}
	if completed != 15 {
		t.Errorf("backends completed %d transmissions, want 15", completed)
	}
}
