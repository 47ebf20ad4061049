package shared

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEffects(buf *bytes.Buffer, failures *[]string) SideEffects {
	return SideEffects{
		Logger:    slog.New(slog.NewTextHandler(buf, nil)),
		OnFailure: func(name string) { *failures = append(*failures, name) },
	}
}

func TestSideEffectsSwallowsError(t *testing.T) {
	var buf bytes.Buffer
	var failures []string
	effects := newTestEffects(&buf, &failures)

	ok := effects.Run(context.Background(), "publish", func(context.Context) error {
		return errors.New("broker down")
	})
	require.False(t, ok)
	require.Equal(t, []string{"publish"}, failures)
	require.Contains(t, buf.String(), "broker down")
}

func TestSideEffectsRecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	var failures []string
	effects := newTestEffects(&buf, &failures)

	require.NotPanics(t, func() {
		ok := effects.Run(context.Background(), "audit", func(context.Context) error {
			panic("boom")
		})
		require.False(t, ok)
	})
	require.Equal(t, []string{"audit"}, failures)
	require.Contains(t, buf.String(), "boom")
}

func TestSideEffectsSurvivesCanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := SideEffects{}.Run(ctx, "noop", func(ctx context.Context) error {
		return ctx.Err()
	})
	require.True(t, ok)
}

func TestSideEffectsNilFunc(t *testing.T) {
	require.True(t, SideEffects{}.Run(context.Background(), "nil", nil))
}
