package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a timestamped logger writing to w at the given level.
func New(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "livechat").
		Logger(), nil
}

func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level %q: %w", level, err)
	}

	return lvl, nil
}
