package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "readthrough.log")
	l, closer, err := New(Config{Level: "info", Format: "json", Path: path})
	require.NoError(t, err)

	l.Debug().Msg("hidden")
	l.Info().Str("key", "k").Msg("visible")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(raw, &line), "exactly one JSON line expected, got %q", raw)
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "k", line["key"])
}

func TestContextRoundTrip(t *testing.T) {
	l := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	ctx := WithContext(context.Background(), l)
	assert.Equal(t, zerolog.WarnLevel, FromContext(ctx).GetLevel())

	assert.Equal(t, zerolog.Disabled, FromContext(context.Background()).GetLevel())
}
