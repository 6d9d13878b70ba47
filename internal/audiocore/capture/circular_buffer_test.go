package capture

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start+i) / 100
	}
	return out
}

func TestNewFrameBufferValidation(t *testing.T) {
	t.Parallel()

	_, err := NewFrameBuffer(0, 512)
	require.Error(t, err)
	_, err = NewFrameBuffer(4, 0)
	require.Error(t, err)

	fb, err := NewFrameBuffer(4, 512)
	require.NoError(t, err)
	assert.Equal(t, 2048, fb.Capacity())
}

func TestFrameBufferEmptySnapshot(t *testing.T) {
	t.Parallel()

	fb, err := NewFrameBuffer(2, 4)
	require.NoError(t, err)

	snap := fb.Snapshot()
	require.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestFrameBufferSnapshotIsNonDestructive(t *testing.T) {
	t.Parallel()

	fb, err := NewFrameBuffer(3, 4)
	require.NoError(t, err)
	require.NoError(t, fb.Write(seq(0, 4)))
	require.NoError(t, fb.Write(seq(4, 4)))

	first := fb.Snapshot()
	second := fb.Snapshot()

	assert.Equal(t, seq(0, 8), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 8, fb.Len())
}

func TestFrameBufferEvictsOldest(t *testing.T) {
	t.Parallel()

	fb, err := NewFrameBuffer(2, 4)
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, fb.Write(seq(i*4, 4)))
	}

	assert.Equal(t, seq(12, 8), fb.Snapshot())
}

func TestFrameBufferOversizedWriteKeepsTail(t *testing.T) {
	t.Parallel()

	fb, err := NewFrameBuffer(1, 4)
	require.NoError(t, err)

	require.NoError(t, fb.Write(seq(0, 10)))
	assert.Equal(t, seq(6, 4), fb.Snapshot())
}

func TestFrameBufferReset(t *testing.T) {
	t.Parallel()

	fb, err := NewFrameBuffer(2, 4)
	require.NoError(t, err)
	require.NoError(t, fb.Write(seq(0, 4)))

	fb.Reset()
	assert.Equal(t, 0, fb.Len())
	assert.Empty(t, fb.Snapshot())
}

func TestFrameBufferConcurrentAccess(t *testing.T) {
	t.Parallel()

	fb, err := NewFrameBuffer(8, 16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Go(func() {
		for i := range 500 {
			assert.NoError(t, fb.Write(seq(i, 16)))
		}
	})
	wg.Go(func() {
		for range 500 {
			snap := fb.Snapshot()
			assert.Zero(t, len(snap)%16, "snapshots contain whole frames")
		}
	})
	wg.Wait()

	assert.Equal(t, fb.Capacity(), fb.Len())
}
