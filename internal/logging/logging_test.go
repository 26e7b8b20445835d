package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tcases := []struct {
		name     string
		level    string
		expected zerolog.Level
		err      bool
	}{
		{name: "empty defaults to info", level: "", expected: zerolog.InfoLevel},
		{name: "debug", level: "debug", expected: zerolog.DebugLevel},
		{name: "upper case", level: "WARN", expected: zerolog.WarnLevel},
		{name: "invalid", level: "loud", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			lvl, err := ParseLevel(tc.level)
			if tc.err {
				assert.Error(t, err, "expected error for level %q", tc.level)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, lvl)
		})
	}
}

func TestNew(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(buf, "info")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String(), "expected debug message to be filtered")

	logger.Info().Str("component", "test").Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "livechat", entry["service"])
	assert.Equal(t, "test", entry["component"])
	assert.Contains(t, entry, "time")

	_, err = New(buf, "nope")
	assert.Error(t, err, "expected error for invalid level")
}
