package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDisabledDiscards(t *testing.T) {
	var out bytes.Buffer
	l := New(Options{Enabled: false, Output: &out})
	l.Error("dropped")
	require.Zero(t, out.Len())
}

func TestNewJSON(t *testing.T) {
	var out bytes.Buffer
	l := New(Options{Enabled: true, Output: &out, JSON: true, Level: slog.LevelDebug})
	l.Debug("block added", "cellSize", 16)
	require.True(t, strings.HasPrefix(out.String(), "{"))
	require.Contains(t, out.String(), `"cellSize":16`)
}

func TestLevelFiltering(t *testing.T) {
	var out bytes.Buffer
	l := New(Options{Enabled: true, Output: &out, Level: slog.LevelWarn})
	l.Info("quiet")
	require.Zero(t, out.Len())
	l.Warn("loud")
	require.Contains(t, out.String(), "loud")
}

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("debug")
	require.True(t, ok)
	require.Equal(t, slog.LevelDebug, lvl)
	_, ok = ParseLevel("chatty")
	require.False(t, ok)
}

func TestFromEnv(t *testing.T) {
	saved := L
	t.Cleanup(func() { L = saved })

	t.Setenv(EnvLevel, "")
	require.Same(t, L, FromEnv())

	t.Setenv(EnvLevel, "warn")
	l := FromEnv()
	require.Same(t, L, l)
	require.True(t, l.Enabled(context.Background(), slog.LevelWarn))
	require.False(t, l.Enabled(context.Background(), slog.LevelInfo))
}

func TestAllocOr(t *testing.T) {
	ctx := context.Background()
	own := New(Options{Enabled: true, Output: &bytes.Buffer{}, Level: slog.LevelError})

	t.Setenv(EnvAlloc, "")
	require.Same(t, L, AllocOr(nil))
	require.Same(t, own, AllocOr(own))

	t.Setenv(EnvAlloc, "1")
	l := AllocOr(nil)
	require.NotSame(t, L, l)
	require.True(t, l.Enabled(ctx, slog.LevelDebug))
	require.Same(t, own, AllocOr(own))
}

func TestOr(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	require.Same(t, custom, Or(custom))
	require.Same(t, L, Or(nil))
}
