// Command ledsim runs the transmission engine against simulated
// channels. It renders an animation onto the configured strips, shows
// each frame through the channel pool, and broadcasts the resulting
// strip state over WebSocket for viewing.
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
	"github.com/fcurrie/clockless-led-golang/internal/config"
	"github.com/fcurrie/clockless-led-golang/internal/engine"
	"github.com/fcurrie/clockless-led-golang/internal/render"
	"github.com/fcurrie/clockless-led-golang/internal/server"
	"github.com/fcurrie/clockless-led-golang/internal/types"
	"github.com/fcurrie/clockless-led-golang/pkg/chipset"
	"github.com/fcurrie/clockless-led-golang/pkg/strip"
)

var (
	configPath = flag.String("config", "", "Path to the configuration file")
	animation  = flag.String("animation", "", "Override the configured animation")
)

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *animation != "" {
		cfg.Render.Animation = *animation
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the simulated channel pool.
	channels := cfg.Engine.Channels
	if channels <= 0 {
		channels = 8
	}
	txs := make([]backend.Transmitter, channels)
	for i := range txs {
		txs[i] = backend.NewSim(backend.SimConfig{})
	}

	eng, err := engine.New(engine.Config{
		RetryLimit: cfg.Engine.RetryLimit,
		Tick:       time.Duration(cfg.Engine.TickNs) * time.Nanosecond,
	}, txs)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Close()

	strips, ids, err := buildStrips(cfg, eng)
	if err != nil {
		log.Fatalf("Failed to build strips: %v", err)
	}
	log.Printf("Registered %d strips on %d channels", len(strips), channels)

	// Frame stream server.
	hub := server.NewHub()
	srv := server.New(cfg.Server, hub)
	go func() {
		log.Printf("Serving frame stream on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Start(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Renderer loop: paint, show, publish.
	show := func(ctx context.Context) error {
		if err := eng.Show(ctx); err != nil {
			return err
		}
		hub.Broadcast(snapshot(eng, strips, ids, cfg.Strips))
		return nil
	}
	renderer, err := render.NewRenderer(&cfg.Render, strips, show)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	go func() {
		if err := renderer.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Renderer stopped: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server: %v", err)
	}

	stats := eng.Stats()
	log.Printf("Shown %d frames across %d strips", stats.Frames, len(strips))
}

// buildStrips creates and registers a strip per configuration entry,
// returning the controller IDs alongside so stats can be matched back
// regardless of naming.
func buildStrips(cfg *config.Config, eng *engine.Engine) ([]*strip.Strip, []string, error) {
	strips := make([]*strip.Strip, 0, len(cfg.Strips))
	ids := make([]string, 0, len(cfg.Strips))
	for _, sc := range cfg.Strips {
		timing, err := chipset.ByName(sc.Chipset)
		if err != nil {
			return nil, nil, err
		}
		s, err := strip.New(&strip.Config{
			Name:       sc.Name,
			Pixels:     sc.Pixels,
			ColorOrder: sc.ColorOrder,
			Brightness: sc.Brightness,
		})
		if err != nil {
			return nil, nil, err
		}
		s.EnableDithering(sc.Dither)

		id, err := eng.Register(engine.ControllerConfig{
			Name:   sc.Name,
			Pin:    sc.Pin,
			Timing: timing,
			Source: s.Source(),
		})
		if err != nil {
			return nil, nil, err
		}
		strips = append(strips, s)
		ids = append(ids, id)
	}
	return strips, ids, nil
}

// snapshot collects the strip state and transmission stats after a
// show. Stats are looked up by the controller IDs handed out at
// registration, so unnamed strips report correctly too.
func snapshot(eng *engine.Engine, strips []*strip.Strip, ids []string, cfgs []types.StripConfig) types.FrameSnapshot {
	stats := eng.Stats()
	snap := types.FrameSnapshot{
		Seq:       stats.Frames,
		Timestamp: time.Now(),
	}
	for i, s := range strips {
		frame := types.StripFrame{
			Name:       s.Name(),
			Pixels:     s.Snapshot(),
			Brightness: s.Brightness(),
		}
		if i < len(cfgs) {
			frame.Pin = cfgs[i].Pin
		}
		if i < len(ids) {
			if cs, ok := stats.Controllers[ids[i]]; ok {
				frame.Frames = cs.Frames
				frame.Dropped = cs.Dropped
			}
		}
		snap.Strips = append(snap.Strips, frame)
	}
	return snap
}
