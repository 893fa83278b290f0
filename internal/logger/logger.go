package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"remindly/internal/config"
)

func init() {
	// per-logger levels decide what is written
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	zerolog.TimestampFieldName = "timestamp"
	zerolog.DurationFieldUnit = time.Millisecond
}

// New builds the application logger. Local runs get a console writer,
// everything else writes JSON to stdout.
func New(env, level string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, env, level)
}

func NewWithWriter(out io.Writer, env, level string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	w := out
	switch env {
	case config.EnvDev:
		lvl = zerolog.DebugLevel
	case config.EnvProd:
		lvl = zerolog.InfoLevel
	case config.EnvLocal:
		lvl = zerolog.TraceLevel
		cw := zerolog.NewConsoleWriter()
		cw.TimeFormat = time.DateTime
		cw.Out = out
		w = cw
	default:
		return zerolog.Nop(), fmt.Errorf("unknown env: %s", env)
	}

	if s := strings.TrimSpace(level); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
		}
		lvl = parsed
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger(), nil
}

// Component derives a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
