// Package render drives animation frames onto LED strips at a fixed
// rate. Each tick the active animation repaints every strip and the
// renderer asks the engine to transmit.
package render

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fcurrie/clockless-led-golang/internal/types"
	"github.com/fcurrie/clockless-led-golang/pkg/strip"
)

// Target is the paintable surface an animation writes to.
type Target interface {
	Len() int
	SetRGB(i int, r, g, b uint8) error
	Clear()
}

// Animation paints one frame onto a target. tick increments once per
// rendered frame.
type Animation interface {
	Frame(t Target, tick uint64)
}

// ShowFunc transmits the current strip contents. The renderer calls it
// once per tick after all strips are painted.
type ShowFunc func(ctx context.Context) error

// Renderer handles the animation rendering loop
type Renderer struct {
	cfg    *types.RenderConfig
	strips []*strip.Strip
	show   ShowFunc
	anim   Animation
	tick   uint64
}

// NewRenderer creates a new renderer instance
func NewRenderer(cfg *types.RenderConfig, strips []*strip.Strip, show ShowFunc) (*Renderer, error) {
	anim, err := animationFor(cfg)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		cfg:    cfg,
		strips: strips,
		show:   show,
		anim:   anim,
	}, nil
}

func animationFor(cfg *types.RenderConfig) (Animation, error) {
	switch cfg.Animation {
	case "", "rainbow":
		return &Rainbow{}, nil
	case "chase":
		return &Chase{Tail: 6}, nil
	case "breathe":
		return &Breathe{R: 255, G: 64, B: 0}, nil
	case "text":
		return NewTextScroller(cfg.Text), nil
	case "svg":
		return NewSVGSampler(cfg.SVGPath)
	default:
		return nil, fmt.Errorf("render: unknown animation %q", cfg.Animation)
	}
}

// Start starts the renderer loop and blocks until ctx is cancelled.
func (r *Renderer) Start(ctx context.Context) error {
	fps := r.cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.renderFrame()
			if err := r.show(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("Failed to show frame: %v", err)
			}
		}
	}
}

// RenderOnce paints a single frame without transmitting. Used by the
// simulation host before the first show.
func (r *Renderer) RenderOnce() {
	r.renderFrame()
}

func (r *Renderer) renderFrame() {
	for _, s := range r.strips {
		r.anim.Frame(s, r.tick)
	}
	r.tick++
}

// Rainbow cycles a hue gradient along the strip.
type Rainbow struct{}

func (a *Rainbow) Frame(t Target, tick uint64) {
	n := t.Len()
	for i := 0; i < n; i++ {
		h := uint8((uint64(i)*256/uint64(n) + tick*2) & 0xFF)
		r, g, b := hsvToRGB(h, 255, 255)
		t.SetRGB(i, r, g, b)
	}
}

// Chase runs a single bright pixel along the strip with a fading tail.
type Chase struct {
	Tail int
}

func (a *Chase) Frame(t Target, tick uint64) {
	t.Clear()
	n := t.Len()
	if n == 0 {
		return
	}
	head := int(tick % uint64(n))
	tail := a.Tail
	if tail < 1 {
		tail = 1
	}
	for d := 0; d < tail; d++ {
		i := head - d
		if i < 0 {
			i += n
		}
		v := uint8(255 >> uint(d))
		t.SetRGB(i, v, v, v)
	}
}

// Breathe pulses the whole strip between dark and the configured color.
type Breathe struct {
	R, G, B uint8
}

func (a *Breathe) Frame(t Target, tick uint64) {
	// Triangle wave over a 128-tick period.
	phase := tick % 128
	level := phase * 4
	if phase >= 64 {
		level = (128 - phase) * 4
	}
	if level > 255 {
		level = 255
	}
	scale := uint16(level)
	r := uint8(uint16(a.R) * scale / 255)
	g := uint8(uint16(a.G) * scale / 255)
	b := uint8(uint16(a.B) * scale / 255)
	n := t.Len()
	for i := 0; i < n; i++ {
		t.SetRGB(i, r, g, b)
	}
}

// hsvToRGB converts a hue/saturation/value triple to RGB, all
// components in 0-255. The hue wheel is divided into six 43-step
// sectors.
func hsvToRGB(h, s, v uint8) (r, g, b uint8) {
	if s == 0 {
		return v, v, v
	}
	sector := h / 43
	rem := (h - sector*43) * 6

	p := uint8(uint16(v) * (255 - uint16(s)) / 255)
	q := uint8(uint16(v) * (255 - uint16(s)*uint16(rem)/255) / 255)
	t := uint8(uint16(v) * (255 - uint16(s)*(255-uint16(rem))/255) / 255)

	switch sector {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
