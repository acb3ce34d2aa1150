package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	initOnce      sync.Once
	defaultLogger zerolog.Logger
)

// GetDefaultLogger returns the process-wide logger. Components derive
// their own logger from it via With().Str("component", ...).Logger().
func GetDefaultLogger() zerolog.Logger {
	initOnce.Do(func() {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		defaultLogger = zerolog.New(writer).
			Level(levelFromEnv()).
			With().
			Timestamp().
			Logger()
	})
	return defaultLogger
}

func levelFromEnv() zerolog.Level {
	raw := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
