package model

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/features"
)

type stubScorer struct {
	arch  Architecture
	score float64
}

func (s *stubScorer) Predict(*features.Tensor) (float64, error) { return s.score, nil }
func (s *stubScorer) Architecture() Architecture                { return s.arch }
func (s *stubScorer) Close() error                              { return nil }

func okStrategy(arch Architecture, calls *[]Architecture) Strategy {
	return Strategy{Name: arch, Load: func([]byte, Options) (Scorer, error) {
		*calls = append(*calls, arch)
		return &stubScorer{arch: arch, score: 0.5}, nil
	}}
}

func failStrategy(arch Architecture, calls *[]Architecture) Strategy {
	return Strategy{Name: arch, Load: func([]byte, Options) (Scorer, error) {
		*calls = append(*calls, arch)
		return nil, errors.NewStd("unsupported graph")
	}}
}

func writeModel(t *testing.T, sidecar string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hey_jupiter.tflite")
	require.NoError(t, os.WriteFile(path, []byte("model-bytes"), 0o600))
	if sidecar != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "hey_jupiter.yaml"), []byte(sidecar), 0o600))
	}
	return path
}

func TestLoadFirstSuccessWins(t *testing.T) {
	t.Parallel()

	var calls []Architecture
	path := writeModel(t, "")
	scorer, err := LoadWith(path, Options{}, []Strategy{
		failStrategy(ArchTFLiteSigmoid, &calls),
		okStrategy(ArchTFLiteSoftmax, &calls),
	})
	require.NoError(t, err)
	assert.Equal(t, ArchTFLiteSoftmax, scorer.Architecture())
	assert.Equal(t, []Architecture{ArchTFLiteSigmoid, ArchTFLiteSoftmax}, calls)
}

func TestLoadStopsAtFirstSuccess(t *testing.T) {
	t.Parallel()

	var calls []Architecture
	path := writeModel(t, "")
	_, err := LoadWith(path, Options{}, []Strategy{
		okStrategy(ArchTFLiteSigmoid, &calls),
		okStrategy(ArchTFLiteSoftmax, &calls),
	})
	require.NoError(t, err)
	assert.Equal(t, []Architecture{ArchTFLiteSigmoid}, calls)
}

func TestLoadAllFailJoinsErrors(t *testing.T) {
	t.Parallel()

	var calls []Architecture
	path := writeModel(t, "")
	_, err := LoadWith(path, Options{}, []Strategy{
		failStrategy(ArchTFLiteSigmoid, &calls),
		failStrategy(ArchTFLiteSoftmax, &calls),
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
	assert.Contains(t, err.Error(), string(ArchTFLiteSigmoid))
	assert.Contains(t, err.Error(), string(ArchTFLiteSoftmax))
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadWith(filepath.Join(t.TempDir(), "absent.tflite"), Options{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestLoadNoStrategies(t *testing.T) {
	t.Parallel()

	_, err := LoadWith(writeModel(t, ""), Options{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelInit))
}

func TestLoadHonorsSidecarArchitecture(t *testing.T) {
	t.Parallel()

	var calls []Architecture
	path := writeModel(t, "architecture: tflite-softmax\n")
	scorer, err := LoadWith(path, Options{}, []Strategy{
		okStrategy(ArchTFLiteSigmoid, &calls),
		okStrategy(ArchTFLiteSoftmax, &calls),
	})
	require.NoError(t, err)
	assert.Equal(t, ArchTFLiteSoftmax, scorer.Architecture())
	assert.Equal(t, []Architecture{ArchTFLiteSoftmax}, calls)
}

func TestLoadUnknownSidecarArchitecture(t *testing.T) {
	t.Parallel()

	var calls []Architecture
	path := writeModel(t, "architecture: onnx-crnn\n")
	_, err := LoadWith(path, Options{}, []Strategy{okStrategy(ArchTFLiteSigmoid, &calls)})
	require.Error(t, err)
	assert.Empty(t, calls)
}

func TestLoadRejectsShapeMismatch(t *testing.T) {
	t.Parallel()

	var calls []Architecture
	path := writeModel(t, "n_mfcc: 40\nnum_frames: 101\n")
	_, err := LoadWith(path, Options{InputShape: [3]int{1, 13, 101}}, []Strategy{okStrategy(ArchTFLiteSigmoid, &calls)})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Empty(t, calls, "mismatch must fail before any loader runs")
}

func TestLoadPassesProbabilitiesFromSidecar(t *testing.T) {
	t.Parallel()

	var got Options
	path := writeModel(t, "probabilities: true\n")
	_, err := LoadWith(path, Options{}, []Strategy{{Name: ArchTFLiteSigmoid, Load: func(_ []byte, o Options) (Scorer, error) {
		got = o
		return &stubScorer{}, nil
	}}})
	require.NoError(t, err)
	assert.True(t, got.Probabilities)
}

func TestLoadMetadata(t *testing.T) {
	t.Parallel()

	meta, err := LoadMetadata(writeModel(t, ""))
	require.NoError(t, err)
	assert.Nil(t, meta)

	meta, err = LoadMetadata(writeModel(t, "architecture: tflite-sigmoid\nn_mfcc: 13\nnum_frames: 101\ndescription: hey jupiter\n"))
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, ArchTFLiteSigmoid, meta.Architecture)
	assert.Equal(t, 13, meta.NMFCC)
	assert.Equal(t, 101, meta.NumFrames)
	assert.NoError(t, meta.CheckShape([3]int{1, 13, 101}))
	assert.NoError(t, meta.CheckShape([3]int{}))

	_, err = LoadMetadata(writeModel(t, "architecture: [unterminated\n"))
	assert.Error(t, err)
}

func TestMetadataPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/models/hey.yaml", MetadataPath("/models/hey.tflite"))
	assert.Equal(t, "model.yaml", MetadataPath("model"))
}

func TestRegister(t *testing.T) {
	// mutates the package registry
	before := Strategies()
	t.Cleanup(func() {
		registryMu.Lock()
		registry = before
		registryMu.Unlock()
	})

	var calls []Architecture
	Register(okStrategy("test-a", &calls))
	Register(okStrategy("test-b", &calls))
	Register(failStrategy("test-a", &calls))

	names := make([]Architecture, 0)
	for _, s := range Strategies() {
		names = append(names, s.Name)
	}
	assert.Equal(t, append(strategyNames(before), "test-a", "test-b"), names)

	_, err := Strategies()[len(before)].Load(nil, Options{})
	assert.Error(t, err, "re-registration replaces in place")
}

func strategyNames(ss []Strategy) []Architecture {
	out := make([]Architecture, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Name)
	}
	return out
}

func TestActivations(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, Sigmoid(0), 1e-12)
	assert.InDelta(t, 1/(1+math.Exp(-2)), Sigmoid(2), 1e-12)

	assert.InDelta(t, 0.5, Softmax([]float32{1, 1}, 1), 1e-12)
	assert.InDelta(t, math.Exp(3)/(math.Exp(1)+math.Exp(3)), Softmax([]float32{1, 3}, 1), 1e-9)
	assert.InDelta(t, 1.0, Softmax([]float32{-1000, 1000}, 1), 1e-12)
	assert.Zero(t, Softmax([]float32{1}, 3))

	assert.Zero(t, Clamp01(math.NaN()))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Zero(t, Clamp01(-0.2))
	assert.Equal(t, 0.3, Clamp01(0.3))
}
