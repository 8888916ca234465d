package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/malan-ai/malan-server/internal/config"
)

var (
	globalLogger zerolog.Logger
	once         sync.Once
	mu           sync.RWMutex
)

// GetLogger returns the process-wide logger. Before New is called it falls
// back to an info level console logger.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		globalLogger = zerolog.New(consoleWriter(os.Stdout)).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	})
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// New creates a zerolog.Logger configured for the chat service and installs
// it as the global logger.
func New(cfg *config.Config) zerolog.Logger {
	return newWithWriter(cfg, os.Stdout)
}

func newWithWriter(cfg *config.Config, out io.Writer) zerolog.Logger {
	level := parseLevel(cfg.LogLevel)

	var w io.Writer = consoleWriter(out)
	if strings.EqualFold(strings.TrimSpace(cfg.LogFormat), "json") {
		w = out
	}

	base := zerolog.New(w).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger().
		Level(level)

	once.Do(func() {})
	mu.Lock()
	globalLogger = base
	mu.Unlock()

	return base
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
