package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Document being read.
	Path string

	// Reload the document when it changes on disk.
	Watch bool

	// For debugging the UI
	FPS     int  `env:"RSVP_FPS"     envDefault:"60"`
	NoColor bool `env:"NO_COLOR"`
}
