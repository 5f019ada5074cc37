package di

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// ProvideLogger creates a new zerolog.Logger configured for the runtime environment.
// In CI (when CI is set), it uses JSON format.
// In terminal/CLI, it uses console format with pretty printing.
func ProvideLogger() zerolog.Logger {
	if os.Getenv("CI") != "" {
		// Running in CI - use JSON format
		return zerolog.New(os.Stdout).
			Level(zerolog.InfoLevel).
			With().
			Timestamp().
			Logger()
	}

	// Running in terminal - use console format with colors
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// ProvideContext returns a base context carrying the configured logger so
// downstream code can retrieve it with zerolog.Ctx.
func ProvideContext(logger zerolog.Logger) context.Context {
	return logger.WithContext(context.Background())
}
