package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO", "bogus"} {
		log, err := Setup(level)
		require.NoError(t, err, "level %q", level)
		assert.NotNil(t, log)
	}
}

func TestWithLogger_RoundTrip(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := WithLogger(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.Same(t, log, FromContextOrDefault(ctx, nil))
}

func TestWithLogger_PanicsOnNil(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		WithLogger(context.Background(), nil)
	})
}

func TestFromContext_Fallbacks(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, FromContext(context.Background()))

	def := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, def, FromContextOrDefault(context.Background(), def))
}
