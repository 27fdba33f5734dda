package log

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// Тесты меняют slog.Default(), поэтому t.Parallel() не используется.

func newSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrom_DefaultWhenEmpty(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	require.Equal(t, def, From(context.Background()))

	// мусор под нашим ключом
	require.Equal(t, def, From(context.WithValue(context.Background(), loggerKey, "x")))

	// nil не кладётся
	ctx := context.Background()
	require.Equal(t, ctx, Into(ctx, nil))
	require.Equal(t, def, From(Into(ctx, nil)))
}

func TestIntoFrom_RoundTripAndShadowing(t *testing.T) {
	parentL := newSilent()
	childL := newSilent()

	parent := Into(context.Background(), parentL)
	child := Into(parent, childL)

	require.Equal(t, parentL, From(parent))
	require.Equal(t, childL, From(child))
}

func TestWith_StoresEnrichedLogger(t *testing.T) {
	base := newSilent()
	ctx := Into(context.Background(), base)

	ctx2, l := With(ctx, "channel_id", "c1")
	require.NotNil(t, l)
	require.Equal(t, l, From(ctx2))
	require.NotEqual(t, base, From(ctx2))
	require.Equal(t, base, From(ctx))
}
