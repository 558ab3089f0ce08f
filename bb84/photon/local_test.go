package photon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
)

func TestLocalErrorRates(t *testing.T) {
	tcs := []struct {
		name       string
		opts       LocalOpts
		eMatched   float64
		eMismatch  float64
		matchDelta float64
	}{
		{"ideal", LocalOpts{}, 0, 0.5, 0},
		{"noisy", LocalOpts{Noise: 0.1}, 0.1, 0.5, 0.02},
		{"intercepted", LocalOpts{Intercept: 1}, 0.25, 0.5, 0.02},
		{"flipped", LocalOpts{Noise: 1}, 1, 0.5, 0},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			opts := tc.opts
			opts.Seed, opts.Seeded = 11, true
			l, err := NewLocal(opts)
			require.NoError(t, err)
			b := randomBatch(5, 20000)
			measured, err := l.Execute(context.Background(), b)
			require.NoError(t, err)
			require.Equal(t, b.Len(), measured.Size())

			matched, mismatched := errorRates(b, measured)
			require.InDelta(t, tc.eMatched, matched, tc.matchDelta)
			require.InDelta(t, tc.eMismatch, mismatched, 0.02)
		})
	}
}

func TestLocalDeterministic(t *testing.T) {
	b := randomBatch(1, 4096)
	run := func() bitmap.Dense {
		l, err := NewLocal(LocalOpts{Noise: 0.05, Intercept: 0.2, Seed: 99, Seeded: true})
		require.NoError(t, err)
		m, err := l.Execute(context.Background(), b)
		require.NoError(t, err)
		return m
	}
	require.True(t, bitmap.Equal(run(), run()))
}

func TestLocalUnseeded(t *testing.T) {
	l, err := NewLocal(LocalOpts{})
	require.NoError(t, err)
	b := randomBatch(2, 512)
	m, err := l.Execute(context.Background(), b)
	require.NoError(t, err)
	matched, _ := errorRates(b, m)
	require.Zero(t, matched)
}

func TestLocalInvalid(t *testing.T) {
	for _, opts := range []LocalOpts{{Noise: -0.1}, {Noise: 1.5}, {Intercept: -1}, {Intercept: 2}} {
		_, err := NewLocal(opts)
		require.Error(t, err, "opts %+v", opts)
	}

	l, err := NewLocal(LocalOpts{Seeded: true})
	require.NoError(t, err)
	b := randomBatch(3, 16)
	b.SenderBases = mustDense(t, "1")
	_, err = l.Execute(context.Background(), b)
	require.ErrorIs(t, err, ErrExecutor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Execute(ctx, randomBatch(3, 16))
	require.ErrorIs(t, err, ErrExecutor)
	require.ErrorIs(t, err, context.Canceled)
}
