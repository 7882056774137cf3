package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"notion-content-sync/internal/config"
)

// New constructs the process logger from config. JSON to stdout by
// default; console format for local development.
func New(cfg config.Config, service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil {
		level = parsed
	}

	var out = zerolog.New(os.Stdout)
	if strings.EqualFold(cfg.LogFormat, "console") {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return out.Level(level).With().
		Timestamp().
		Str("service", service).
		Str("env", cfg.Env).
		Logger()
}
