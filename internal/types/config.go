package types

// EngineConfig represents the configuration for the transmission engine
type EngineConfig struct {
	Channels   int
	TickNs     int
	RetryLimit int
}

// StripConfig represents the configuration for one LED strip
type StripConfig struct {
	Name       string
	Pin        int
	Chipset    string
	Pixels     int
	ColorOrder string
	Brightness int
	Dither     bool
}

// ServerConfig represents the configuration for the status web server
type ServerConfig struct {
	Host string
	Port int
}

// RenderConfig represents the configuration for the animation renderer
type RenderConfig struct {
	Animation string
	FPS       float64
	Text      string
	SVGPath   string
}
