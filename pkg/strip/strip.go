// Package strip is the user-facing surface over a clockless LED strip:
// a pixel buffer with bounds-checked set/fill/brightness operations.
// A Strip owns no hardware; its Source is handed to the engine, which
// serializes the buffer on every show.
package strip

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/fcurrie/clockless-led-golang/internal/pixel"
)

// Config holds the configuration for one strip.
type Config struct {
	// Name is an optional label for logs and stats.
	Name string
	// Pixels is the number of LEDs on the strip.
	Pixels int
	// ColorOrder is the protocol channel order, e.g. "grb" for WS2812.
	// Empty defaults to "grb".
	ColorOrder string
	// Brightness is the global scale 0-255. Zero defaults to full.
	Brightness int
}

// Strip represents one addressable LED strip.
type Strip struct {
	name string
	buf  *pixel.Buffer
	mu   sync.RWMutex
}

// New creates a new strip.
func New(cfg *Config) (*Strip, error) {
	if cfg.Pixels <= 0 {
		return nil, fmt.Errorf("strip: invalid pixel count %d", cfg.Pixels)
	}
	if cfg.Brightness < 0 || cfg.Brightness > 255 {
		return nil, fmt.Errorf("strip: brightness must be between 0 and 255")
	}

	orderName := cfg.ColorOrder
	if orderName == "" {
		orderName = "grb"
	}
	order, err := pixel.OrderByName(orderName)
	if err != nil {
		return nil, fmt.Errorf("strip: %v", err)
	}

	buf, err := pixel.NewBuffer(cfg.Pixels, order)
	if err != nil {
		return nil, fmt.Errorf("strip: %v", err)
	}
	brightness := cfg.Brightness
	if brightness == 0 {
		brightness = 255
	}
	if err := buf.SetBrightness(brightness); err != nil {
		return nil, fmt.Errorf("strip: %v", err)
	}

	return &Strip{name: cfg.Name, buf: buf}, nil
}

// Name returns the strip's label.
func (s *Strip) Name() string {
	return s.name
}

// Len returns the number of pixels.
func (s *Strip) Len() int {
	return s.buf.Len()
}

// Source returns the pixel byte stream the engine reads during a show.
// The caller must not mutate the strip while a show is in progress.
func (s *Strip) Source() *pixel.Buffer {
	return s.buf
}

// SetPixel sets pixel i to the given color.
func (s *Strip) SetPixel(i int, c color.Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.SetColor(i, c)
}

// SetRGB sets pixel i to the given component values.
func (s *Strip) SetRGB(i int, r, g, b uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.SetRGB(i, r, g, b)
}

// PixelColor returns the stored components of pixel i, before scaling.
func (s *Strip) PixelColor(i int) (r, g, b uint8, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.RGB(i)
}

// Fill sets every pixel to the same color.
func (s *Strip) Fill(c color.Color) {
	r, g, b, _ := c.RGBA()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Fill(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// Clear sets every pixel to black.
func (s *Strip) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Clear()
}

// SetBrightness sets the global brightness scale.
func (s *Strip) SetBrightness(v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.SetBrightness(v)
}

// Brightness returns the current brightness scale.
func (s *Strip) Brightness() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Brightness()
}

// EnableDithering turns temporal dithering on or off.
func (s *Strip) EnableDithering(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.EnableDithering(on)
}

// Snapshot returns a copy of the raw RGB bytes, 3 per pixel. Used by
// the simulation host to publish strip state.
func (s *Strip) Snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, 3*s.buf.Len())
	for i := 0; i < s.buf.Len(); i++ {
		r, g, b, _ := s.buf.RGB(i)
		out[3*i], out[3*i+1], out[3*i+2] = r, g, b
	}
	return out
}

// Matrix lays a strip out as a two-dimensional panel wired in the
// usual serpentine pattern: even rows run left to right, odd rows run
// right to left.
type Matrix struct {
	*Strip
	width  int
	height int
}

// NewMatrix creates a serpentine matrix over a new strip of
// width*height pixels.
func NewMatrix(cfg *Config, width, height int) (*Matrix, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("strip: invalid dimensions: %dx%d", width, height)
	}
	c := *cfg
	c.Pixels = width * height
	s, err := New(&c)
	if err != nil {
		return nil, err
	}
	return &Matrix{Strip: s, width: width, height: height}, nil
}

// Dimensions returns the matrix width and height.
func (m *Matrix) Dimensions() (width, height int) {
	return m.width, m.height
}

// SetPixelXY sets the pixel at the given coordinates.
func (m *Matrix) SetPixelXY(x, y int, c color.Color) error {
	i, err := m.index(x, y)
	if err != nil {
		return err
	}
	return m.SetPixel(i, c)
}

// PixelColorXY returns the stored components at the given coordinates.
func (m *Matrix) PixelColorXY(x, y int) (r, g, b uint8, err error) {
	i, err := m.index(x, y)
	if err != nil {
		return 0, 0, 0, err
	}
	return m.PixelColor(i)
}

// index maps coordinates to the strip index along the serpentine path.
func (m *Matrix) index(x, y int) (int, error) {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		return 0, fmt.Errorf("strip: coordinates out of bounds: (%d, %d)", x, y)
	}
	if y%2 == 0 {
		return y*m.width + x, nil
	}
	return y*m.width + (m.width - 1 - x), nil
}
