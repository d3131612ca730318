// Package pixel supplies the byte stream that the clockless engine
// serializes. The engine only sees the Source interface; Buffer is the
// concrete strip-backed implementation.
package pixel

import (
	"fmt"
	"image/color"
)

// Source yields successive scaled channel bytes in protocol order. The
// engine pulls LoadAndScale0/1/2 for the three sub-channels of the
// current pixel, then AdvanceData to move to the next pixel. Exactly
// one goroutine reads a Source during a transmission.
type Source interface {
	// Has reports whether at least n more pixels are available.
	Has(n int) bool
	// LoadAndScale0 returns the first protocol byte of the current pixel.
	LoadAndScale0() byte
	// LoadAndScale1 returns the second protocol byte of the current pixel.
	LoadAndScale1() byte
	// LoadAndScale2 returns the third protocol byte of the current pixel.
	LoadAndScale2() byte
	// AdvanceData consumes the current pixel.
	AdvanceData()
	// StepDithering advances the temporal dithering state.
	StepDithering()
}

// Order is the permutation from RGB storage order to protocol order.
type Order [3]int

// Channel orderings used by the supported chipsets.
var (
	RGB = Order{0, 1, 2}
	GRB = Order{1, 0, 2}
	BRG = Order{2, 0, 1}
	BGR = Order{2, 1, 0}
	RBG = Order{0, 2, 1}
	GBR = Order{1, 2, 0}
)

var orderNames = map[string]Order{
	"rgb": RGB,
	"grb": GRB,
	"brg": BRG,
	"bgr": BGR,
	"rbg": RBG,
	"gbr": GBR,
}

// OrderByName looks up a color order by its lower-case config name.
func OrderByName(name string) (Order, error) {
	o, ok := orderNames[name]
	if !ok {
		return Order{}, fmt.Errorf("pixel: unknown color order %q", name)
	}
	return o, nil
}

// Buffer is a strip of RGB pixels plus the cursor and scaling state the
// engine walks during one transmission. Rewind resets the cursor; the
// pixel data itself is owned by the caller between shows.
type Buffer struct {
	pix        []byte // 3 bytes per pixel, storage order RGB
	order      Order
	brightness uint8
	dither     bool
	ditherOn   bool // current phase of the binary dither toggle
	pos        int  // current pixel cursor
}

// NewBuffer creates a buffer for n pixels in the given protocol order,
// at full brightness with dithering off.
func NewBuffer(n int, order Order) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pixel: invalid pixel count %d", n)
	}
	return &Buffer{
		pix:        make([]byte, 3*n),
		order:      order,
		brightness: 255,
	}, nil
}

// Len returns the number of pixels.
func (b *Buffer) Len() int {
	return len(b.pix) / 3
}

// SetRGB sets pixel i to the given component values.
func (b *Buffer) SetRGB(i int, r, g, bl uint8) error {
	if i < 0 || i >= b.Len() {
		return fmt.Errorf("pixel: index %d out of bounds [0, %d)", i, b.Len())
	}
	b.pix[3*i] = r
	b.pix[3*i+1] = g
	b.pix[3*i+2] = bl
	return nil
}

// SetColor sets pixel i from a color.Color value.
func (b *Buffer) SetColor(i int, c color.Color) error {
	r, g, bl, _ := c.RGBA()
	return b.SetRGB(i, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
}

// RGB returns the raw stored components of pixel i, before scaling.
func (b *Buffer) RGB(i int) (r, g, bl uint8, err error) {
	if i < 0 || i >= b.Len() {
		return 0, 0, 0, fmt.Errorf("pixel: index %d out of bounds [0, %d)", i, b.Len())
	}
	return b.pix[3*i], b.pix[3*i+1], b.pix[3*i+2], nil
}

// Fill sets every pixel to the same component values.
func (b *Buffer) Fill(r, g, bl uint8) {
	for i := 0; i < b.Len(); i++ {
		b.pix[3*i] = r
		b.pix[3*i+1] = g
		b.pix[3*i+2] = bl
	}
}

// Clear sets every pixel to black.
func (b *Buffer) Clear() {
	for i := range b.pix {
		b.pix[i] = 0
	}
}

// SetBrightness sets the global brightness scale, 0-255.
func (b *Buffer) SetBrightness(v int) error {
	if v < 0 || v > 255 {
		return fmt.Errorf("pixel: brightness must be between 0 and 255, got %d", v)
	}
	b.brightness = uint8(v)
	return nil
}

// Brightness returns the current brightness scale.
func (b *Buffer) Brightness() int {
	return int(b.brightness)
}

// EnableDithering turns temporal dithering on or off. With dithering on,
// truncated scale residue is alternately rounded up on every other
// frame, recovering brightness lost to scaling.
func (b *Buffer) EnableDithering(on bool) {
	b.dither = on
	if !on {
		b.ditherOn = false
	}
}

// Rewind resets the transmission cursor to the first pixel. The engine
// calls this at the start of every transmission attempt.
func (b *Buffer) Rewind() {
	b.pos = 0
}

// Has implements Source.
func (b *Buffer) Has(n int) bool {
	return b.pos+n <= b.Len()
}

// LoadAndScale0 implements Source.
func (b *Buffer) LoadAndScale0() byte {
	return b.loadAndScale(0)
}

// LoadAndScale1 implements Source.
func (b *Buffer) LoadAndScale1() byte {
	return b.loadAndScale(1)
}

// LoadAndScale2 implements Source.
func (b *Buffer) LoadAndScale2() byte {
	return b.loadAndScale(2)
}

// AdvanceData implements Source.
func (b *Buffer) AdvanceData() {
	b.pos++
}

// StepDithering implements Source.
func (b *Buffer) StepDithering() {
	if b.dither {
		b.ditherOn = !b.ditherOn
	}
}

func (b *Buffer) loadAndScale(sub int) byte {
	raw := b.pix[3*b.pos+b.order[sub]]
	return scale8video(raw, b.brightness, b.dither && b.ditherOn)
}

// scale8video scales v by (scale+1)/256 without ever dimming a non-zero
// input to zero. When roundUp is set the truncated residue is rounded
// up instead of down.
func scale8video(v, scale uint8, roundUp bool) byte {
	if v == 0 {
		return 0
	}
	prod := uint16(v) * (uint16(scale) + 1)
	out := prod >> 8
	if roundUp && prod&0xff != 0 && out < 255 {
		out++
	}
	if out == 0 {
		out = 1
	}
	return byte(out)
}
