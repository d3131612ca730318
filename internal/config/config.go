package config

import (
	"encoding/json"
	"os"

	"github.com/fcurrie/clockless-led-golang/internal/types"
)

// Config represents the application configuration
type Config struct {
	Engine types.EngineConfig  `json:"engine"`
	Strips []types.StripConfig `json:"strips"`
	Server types.ServerConfig  `json:"server"`
	Render types.RenderConfig  `json:"render"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: types.EngineConfig{
			Channels:   8,
			TickNs:     25,
			RetryLimit: 3,
		},
		Strips: []types.StripConfig{
			{
				Name:       "strip0",
				Pin:        18,
				Chipset:    "ws2812",
				Pixels:     60,
				ColorOrder: "grb",
				Brightness: 64,
			},
		},
		Server: types.ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Render: types.RenderConfig{
			Animation: "rainbow",
			FPS:       30,
		},
	}
}
