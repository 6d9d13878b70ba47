package features

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameLen = 512

func noiseFrame(rng *rand.Rand, n int, amp float32) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = (rng.Float32()*2 - 1) * amp
	}
	return f
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, false},
		{"nfft not power of two", func(c *Config) { c.NFFT = 1000 }, false},
		{"zero hop", func(c *Config) { c.HopLength = 0 }, false},
		{"fewer mels than coefficients", func(c *Config) { c.NMels = 10 }, false},
		{"negative threshold", func(c *Config) { c.SilenceThreshold = -1 }, false},
		{"zero frames", func(c *Config) { c.NumFrames = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestExtractWarmup(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	rng := rand.New(rand.NewPCG(1, 2))

	// 16000 + 512 samples are needed; 32 frames is 16384
	for i := range 32 {
		tensor, ok := e.Extract(noiseFrame(rng, frameLen, 0.5))
		require.False(t, ok, "frame %d", i)
		require.Nil(t, tensor)
		assert.Equal(t, OutcomeWarmup, e.LastOutcome())
	}

	tensor, ok := e.Extract(noiseFrame(rng, frameLen, 0.5))
	require.True(t, ok)
	require.NotNil(t, tensor)
	assert.Equal(t, OutcomeComputed, e.LastOutcome())
}

func TestExtractFixedShape(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 4))
	for _, n := range []int{1, 160, 512, 4096, 16512, 40000} {
		e := newTestExtractor(t)
		produced := 0
		for range 60 {
			tensor, ok := e.Extract(noiseFrame(rng, n, 0.5))
			if !ok {
				continue
			}
			produced++
			assert.Equal(t, [3]int{1, 13, 101}, tensor.Shape, "frame length %d", n)
			assert.Len(t, tensor.Data, 13*101, "frame length %d", n)
		}
		if n >= 512 {
			assert.Positive(t, produced, "frame length %d", n)
		}
	}
}

func TestExtractSilenceGating(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	rng := rand.New(rand.NewPCG(5, 6))

	for range 200 {
		_, ok := e.Extract(make([]float32, frameLen))
		require.False(t, ok)
	}
	assert.Equal(t, OutcomeSilent, e.LastOutcome())

	// quiet noise stays under the 0.005 mean-square gate
	for range 50 {
		_, ok := e.Extract(noiseFrame(rng, frameLen, 0.05))
		require.False(t, ok)
	}
}

func TestExtractNormalizesRows(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	rng := rand.New(rand.NewPCG(7, 8))

	var tensor *Tensor
	for tensor == nil {
		tensor, _ = e.Extract(noiseFrame(rng, frameLen, 0.5))
	}

	for i := range tensor.Shape[1] {
		row := tensor.Row(i)
		var sum float64
		for _, v := range row {
			sum += float64(v)
		}
		mean := sum / float64(len(row))
		var sq float64
		for _, v := range row {
			d := float64(v) - mean
			sq += d * d
		}
		std := math.Sqrt(sq / float64(len(row)))

		assert.InDelta(t, 0, mean, 1e-4, "row %d mean", i)
		assert.InDelta(t, 1, std, 1e-3, "row %d std", i)
	}
}

func TestNormalizeRowsSkipsConstantRows(t *testing.T) {
	t.Parallel()

	tensor := NewTensor([3]int{1, 2, 4})
	copy(tensor.Row(0), []float32{3, 3, 3, 3})
	copy(tensor.Row(1), []float32{1, 2, 3, 4})

	normalizeRows(tensor)

	assert.Equal(t, []float32{3, 3, 3, 3}, tensor.Row(0))
	assert.InDelta(t, -1.3416, tensor.At(1, 0), 1e-3)
	assert.InDelta(t, 1.3416, tensor.At(1, 3), 1e-3)
}

func TestExtractBoundsBuffer(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	rng := rand.New(rand.NewPCG(9, 10))
	target := 16000 + frameLen

	for range 300 {
		e.Extract(noiseFrame(rng, frameLen, 0.5))
		require.LessOrEqual(t, float64(e.Buffered()), 1.2*float64(target))
	}
	assert.GreaterOrEqual(t, e.Buffered(), target)
}

func TestClearBufferRestartsWarmup(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t)
	rng := rand.New(rand.NewPCG(11, 12))
	for range 40 {
		e.Extract(noiseFrame(rng, frameLen, 0.5))
	}
	e.ClearBuffer()
	assert.Zero(t, e.Buffered())

	_, ok := e.Extract(noiseFrame(rng, frameLen, 0.5))
	assert.False(t, ok)
	assert.Equal(t, OutcomeWarmup, e.LastOutcome())
}

func TestFitPadsAndTruncates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.NMFCC = 1
	cfg.NumFrames = 4
	e := &Extractor{cfg: cfg}

	short := e.fit([][]float64{{1, 2}})
	assert.Equal(t, []float32{1, 2, 0, 0}, short.Data)

	long := e.fit([][]float64{{1, 2, 3, 4, 5, 6}})
	assert.Equal(t, []float32{3, 4, 5, 6}, long.Data)
}
