package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestNewZerologLogger(t *testing.T) {
	t.Run("writes service, level and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(&buf, "pzrcon", zerolog.DebugLevel)

		l.Info("connected", Field{Key: "server_id", Value: 3})

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "pzrcon", lines[0]["service"])
		assert.Equal(t, "info", lines[0]["level"])
		assert.Equal(t, "connected", lines[0]["message"])
		assert.Equal(t, float64(3), lines[0]["server_id"])
		assert.Contains(t, lines[0], "time")
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(&buf, "pzrcon", zerolog.WarnLevel)

		l.Debug("hidden")
		l.Info("hidden")
		l.Warn("shown")
		l.Error("shown")

		assert.Len(t, decodeLines(t, &buf), 2)
	})

	t.Run("errors are rendered as strings", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(&buf, "pzrcon", zerolog.InfoLevel)

		l.Error("failed", Field{Key: "error", Value: errors.New("boom")})

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "boom", lines[0]["error"])
	})
}

func TestZerologLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewZerologLogger(&buf, "pzrcon", zerolog.InfoLevel)
	derived := base.With(Field{Key: "component", Value: "registry"})

	derived.Info("a")
	base.Info("b")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "registry", lines[0]["component"])
	assert.NotContains(t, lines[1], "component")
}

func TestNewNopLogger(t *testing.T) {
	l := NewNopLogger()
	require.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.With(Field{Key: "k", Value: "v"}).Error("nothing")
	})
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l)

	l, err = ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
