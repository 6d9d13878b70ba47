package features

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFFTMatchesDFT(t *testing.T) {
	t.Parallel()

	const n = 64
	rng := rand.New(rand.NewPCG(1, 1))
	re := make([]float64, n)
	im := make([]float64, n)
	x := make([]complex128, n)
	for i := range n {
		re[i] = rng.Float64()*2 - 1
		x[i] = complex(re[i], 0)
	}

	fft(re, im)

	for k := range n {
		var want complex128
		for j := range n {
			want += x[j] * cmplx.Exp(complex(0, -2*math.Pi*float64(k*j)/n))
		}
		assert.InDelta(t, real(want), re[k], 1e-9, "bin %d real", k)
		assert.InDelta(t, imag(want), im[k], 1e-9, "bin %d imag", k)
	}
}

func TestReflectPad(t *testing.T) {
	t.Parallel()

	got := reflectPad([]float32{1, 2, 3, 4}, 2)
	assert.Equal(t, []float32{3, 2, 1, 2, 3, 4, 3, 2}, got)

	// pad longer than the signal keeps reflecting
	got = reflectPad([]float32{1, 2}, 3)
	assert.Equal(t, []float32{2, 1, 2, 1, 2, 1, 2, 1}, got)
}

func TestMelScaleRoundTrip(t *testing.T) {
	t.Parallel()

	for _, hz := range []float64{0, 300, 999, 1000, 4000, 8000} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
}

func TestMelFilterBank(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.Equal(t, 128, cfg.NMels, "librosa's default band count")

	filters := melFilterBank(cfg.NMels, cfg.NFFT, cfg.SampleRate)
	require.Len(t, filters, 128)

	prevStart := -1
	for i, f := range filters {
		require.NotEmpty(t, f.weights, "filter %d", i)
		assert.GreaterOrEqual(t, f.start, prevStart, "filter %d", i)
		assert.LessOrEqual(t, f.start+len(f.weights), 1025, "filter %d", i)
		for _, w := range f.weights {
			assert.Positive(t, w)
		}
		prevStart = f.start
	}
}

func TestDCTMatrixOrthonormal(t *testing.T) {
	t.Parallel()

	d := dctMatrix(13, 40)
	for a := range d {
		for b := range d {
			var dot float64
			for i := range d[a] {
				dot += d[a][i] * d[b][i]
			}
			want := 0.0
			if a == b {
				want = 1
			}
			assert.InDelta(t, want, dot, 1e-9, "rows %d,%d", a, b)
		}
	}
}

func TestMFCCFrameCount(t *testing.T) {
	t.Parallel()

	m := newMFCCTransform(DefaultConfig())
	samples := make([]float32, 16512)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 16000))
	}

	out := m.compute(samples)
	require.Len(t, out, 13)
	assert.Len(t, out[0], 104)
	for _, row := range out {
		for _, v := range row {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}
