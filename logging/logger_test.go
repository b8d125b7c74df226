package logging_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/formstamp/logging"
)

func TestLoggerDefaultsToDiscard(t *testing.T) {
	old := logging.Logger()
	t.Cleanup(func() { logging.SetLogger(old) })

	logging.SetLogger(nil)
	l := logging.Logger()
	require.NotNil(t, l)
	assert.Equal(t, slog.DiscardHandler, l.Handler())
}

func TestBufferedHandlerCapturesAttrs(t *testing.T) {
	old := logging.Logger()
	t.Cleanup(func() { logging.SetLogger(old) })

	h := logging.NewBufferedHandler(&slog.HandlerOptions{Level: slog.LevelDebug})
	logging.SetLogger(slog.New(h).With("pass", "p1"))

	logging.Logger().Debug("field unresolved", slog.String("field", "F1"))
	logging.Logger().WithGroup("stamp").Info("done", "objects", 3)

	lines := h.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"field":"F1"`)
	assert.Contains(t, lines[0], `"pass":"p1"`)
	assert.Contains(t, lines[1], `"stamp.objects":3`)
	assert.True(t, h.Contains("field unresolved"))

	h.Reset()
	assert.Empty(t, h.Lines())
}

func TestBufferedHandlerLevelFilter(t *testing.T) {
	h := logging.NewBufferedHandler(&slog.HandlerOptions{Level: slog.LevelWarn})
	l := slog.New(h)
	l.Info("ignored")
	l.Warn("kept")
	assert.Equal(t, 1, len(h.Lines()))
}

func TestOrFallsBackToPackageLogger(t *testing.T) {
	custom := slog.New(logging.NewBufferedHandler(nil))
	assert.Same(t, custom, logging.Or(custom))
	assert.Same(t, logging.Logger(), logging.Or(nil))
}
