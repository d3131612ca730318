// Command gpio-strip drives a real strip through a character-device
// GPIO line and cycles simple test patterns. Line timing from user
// space is far too coarse for actual clockless chips, so this is a
// wiring and bring-up check rather than a display driver.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fcurrie/clockless-led-golang/internal/backend"
	"github.com/fcurrie/clockless-led-golang/internal/engine"
	"github.com/fcurrie/clockless-led-golang/pkg/chipset"
	"github.com/fcurrie/clockless-led-golang/pkg/strip"
)

var (
	pin      = flag.Int("pin", 18, "BCM GPIO pin number")
	chip     = flag.String("chip", "gpiochip0", "GPIO character device")
	pixels   = flag.Int("pixels", 8, "Number of LEDs on the strip")
	chipName = flag.String("chipset", "ws2812", "LED chipset name")
	tick     = flag.Duration("tick", time.Microsecond, "Duration of one output tick")
)

func main() {
	flag.Parse()

	timing, err := chipset.ByName(*chipName)
	if err != nil {
		log.Fatalf("Unknown chipset: %v", err)
	}
	// Userspace ticks are far coarser than the datasheet timings, so
	// stretch the waveform to the tick while keeping its shape.
	if scaled := timing.Coarsen(*tick); scaled != timing {
		log.Printf("Stretched %s timing to (%v, %v, %v) for the %v tick",
			*chipName, scaled.T1, scaled.T2, scaled.T3, *tick)
		timing = scaled
	}

	s, err := strip.New(&strip.Config{Name: "gpio", Pixels: *pixels})
	if err != nil {
		log.Fatalf("Failed to create strip: %v", err)
	}

	line := backend.NewLine(backend.LineConfig{Chip: *chip, Tick: *tick})
	eng, err := engine.New(engine.Config{Tick: *tick}, []backend.Transmitter{line})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Close()

	if _, err := eng.Register(engine.ControllerConfig{
		Name:   s.Name(),
		Pin:    *pin,
		Timing: timing,
		Source: s.Source(),
	}); err != nil {
		log.Fatalf("Failed to register strip: %v (try a finer -tick, e.g. 25ns)", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		cancel()
	}()

	log.Printf("Driving %d pixels on %s pin %d", *pixels, *chip, *pin)

	patterns := []struct {
		name    string
		r, g, b uint8
	}{
		{"red", 255, 0, 0},
		{"green", 0, 255, 0},
		{"blue", 0, 0, 255},
		{"off", 0, 0, 0},
	}

	for i := 0; ctx.Err() == nil; i++ {
		p := patterns[i%len(patterns)]
		for j := 0; j < s.Len(); j++ {
			s.SetRGB(j, p.r, p.g, p.b)
		}
		log.Printf("Pattern: %s", p.name)
		if err := eng.Show(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Fatalf("Show failed: %v", err)
		}

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}
