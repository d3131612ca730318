package main

import (
	"context"
	"testing"

	"github.com/fcurrie/clockless-led-golang/internal/backend"
	"github.com/fcurrie/clockless-led-golang/internal/config"
	"github.com/fcurrie/clockless-led-golang/internal/engine"
	"github.com/fcurrie/clockless-led-golang/internal/types"
)

// TestSnapshotUnnamedStrips shows a frame for strips with no configured
// name and checks the snapshot still carries their transmission stats.
func TestSnapshotUnnamedStrips(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strips = []types.StripConfig{
		{Pin: 18, Chipset: "ws2812", Pixels: 4},
		{Pin: 19, Chipset: "ws2812", Pixels: 4},
	}

	txs := []backend.Transmitter{
		backend.NewSim(backend.SimConfig{}),
		backend.NewSim(backend.SimConfig{}),
	}
	eng, err := engine.New(engine.Config{}, txs)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	defer eng.Close()

	strips, ids, err := buildStrips(cfg, eng)
	if err != nil {
		t.Fatalf("buildStrips() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(ids))
	}

	if err := eng.Show(context.Background()); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	snap := snapshot(eng, strips, ids, cfg.Strips)
	if snap.Seq != 1 {
		t.Errorf("Seq = %d, want 1", snap.Seq)
	}
	if len(snap.Strips) != 2 {
		t.Fatalf("len(Strips) = %d, want 2", len(snap.Strips))
	}
	for i, sf := range snap.Strips {
		if sf.Frames != 1 {
			t.Errorf("strip %d Frames = %d, want 1", i, sf.Frames)
		}
		if sf.Pin != cfg.Strips[i].Pin {
			t.Errorf("strip %d Pin = %d, want %d", i, sf.Pin, cfg.Strips[i].Pin)
		}
		if len(sf.Pixels) != 12 {
			t.Errorf("strip %d Pixels length = %d, want 12", i, len(sf.Pixels))
		}
	}
}
