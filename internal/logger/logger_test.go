package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"panic": zapcore.PanicLevel,
		"fatal": zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestFromContext_FallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithName_ScopesLogger ensures WithName stores a distinct scoped logger in the context.
func TestWithName_ScopesLogger(t *testing.T) {
	t.Parallel()

	ctx := WithName(context.Background(), "clock")
	require.NotSame(t, Logger(), FromContext(ctx))
}

// TestWithKV_ScopesLogger ensures WithKV stores a distinct logger carrying the pair.
func TestWithKV_ScopesLogger(t *testing.T) {
	t.Parallel()

	ctx := WithKV(context.Background(), "site_id", "bedroom")
	require.NotSame(t, Logger(), FromContext(ctx))

	// Nesting keeps returning fresh scoped loggers.
	nested := WithKV(ctx, "id", "a1")
	require.NotSame(t, FromContext(ctx), FromContext(nested))
}
