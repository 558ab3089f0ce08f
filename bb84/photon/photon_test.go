package photon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alan-christopher/bb84sim/bb84/bitmap"
	"github.com/alan-christopher/bb84sim/bb84/random"
)

func TestMeasure(t *testing.T) {
	heads := func() bool { return true }
	tails := func() bool { return false }
	tcs := []struct {
		name  string
		t     Triple
		coin  func() bool
		eout  bool
		eCoin bool
	}{
		{"rectilinear 0", Triple{false, false, false}, heads, false, false},
		{"rectilinear 1", Triple{true, false, false}, tails, true, false},
		{"diagonal 0", Triple{false, true, true}, heads, false, false},
		{"diagonal 1", Triple{true, true, true}, tails, true, false},
		{"mismatch heads", Triple{false, false, true}, heads, true, true},
		{"mismatch tails", Triple{true, true, false}, tails, false, true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			tossed := false
			coin := func() bool {
				tossed = true
				return tc.coin()
			}
			require.Equal(t, tc.eout, Measure(tc.t, coin))
			require.Equal(t, tc.eCoin, tossed)
		})
	}
}

func TestBatch(t *testing.T) {
	b := Batch{
		Bits:          mustDense(t, "1100"),
		SenderBases:   mustDense(t, "1010"),
		ReceiverBases: mustDense(t, "0110"),
	}
	require.NoError(t, b.Validate())
	require.Equal(t, 4, b.Len())
	require.Equal(t, Triple{Bit: true, SenderBasis: true, ReceiverBasis: false}, b.Triple(0))
	require.Equal(t, Triple{Bit: true, SenderBasis: false, ReceiverBasis: true}, b.Triple(1))
	require.Equal(t, Triple{Bit: false, SenderBasis: true, ReceiverBasis: true}, b.Triple(2))

	b.ReceiverBases = mustDense(t, "011")
	require.Error(t, b.Validate())
}

func mustDense(t *testing.T, s string) bitmap.Dense {
	t.Helper()
	d, err := bitmap.FromString(s)
	require.NoError(t, err)
	return d
}

func randomBatch(seed int64, m int) Batch {
	src := random.New(seed)
	return Batch{
		Bits:          src.Bits(m),
		SenderBases:   src.Bases(m),
		ReceiverBases: src.Bases(m),
	}
}

// errorRates reports how often measured disagrees with the prepared bit,
// separately for matching and mismatching bases.
func errorRates(b Batch, measured bitmap.Dense) (matched, mismatched float64) {
	var nm, em, nx, ex int
	for i := 0; i < b.Len(); i++ {
		tr := b.Triple(i)
		wrong := measured.Get(i) != tr.Bit
		if tr.SenderBasis == tr.ReceiverBasis {
			nm++
			if wrong {
				em++
			}
		} else {
			nx++
			if wrong {
				ex++
			}
		}
	}
	return float64(em) / float64(nm), float64(ex) / float64(nx)
}
