package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func capture(t *testing.T) *recordingHandler {
	t.Helper()
	h := &recordingHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return h
}

func attr(r slog.Record, key string) (slog.Value, bool) {
	var out slog.Value
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			out = a.Value
			found = true
			return false
		}
		return true
	})
	return out, found
}

func TestLogSystem(t *testing.T) {
	h := capture(t)

	LogSystem("market recovered", slog.String("component", "market"))

	require.Len(t, h.records, 1)
	r := h.records[0]
	assert.Equal(t, slog.LevelInfo, r.Level)
	assert.Equal(t, "market recovered", r.Message)

	v, ok := attr(r, "type")
	require.True(t, ok)
	assert.Equal(t, "sys", v.String())
	_, ok = attr(r, "component")
	assert.True(t, ok)
}

func TestLogError(t *testing.T) {
	h := capture(t)

	LogError("close failed", errors.New("connection reset"))

	require.Len(t, h.records, 1)
	r := h.records[0]
	assert.Equal(t, slog.LevelError, r.Level)

	v, ok := attr(r, "type")
	require.True(t, ok)
	assert.Equal(t, "error", v.String())
	_, ok = attr(r, "error")
	assert.True(t, ok)
}
