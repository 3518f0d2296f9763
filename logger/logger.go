package logger

import (
	"os"

	"github.com/pyandcpp-coder/User-Validation-Scoring/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. Console output with color in
// development, plain JSON in production so log aggregators can parse it.
func New(cfg *config.Config) zerolog.Logger {
	var out zerolog.ConsoleWriter
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		zerolog.SetGlobalLevel(lvl)
		return zerolog.New(out).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = lvl
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
