package audiocore

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiter-voice/jupiter/internal/errors"
)

type fakeStream struct {
	mu       sync.Mutex
	started  int
	stopped  int
	closed   int
	startErr error
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return s.startErr
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) counts() (started, stopped, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped, s.closed
}

type fakeBackend struct {
	mu         sync.Mutex
	devices    []DeviceInfo
	devicesErr error
	defaultIdx int
	defaultErr error
	openErr    error
	stream     *fakeStream
	opened     []StreamConfig
	onData     func([]byte)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		devices: []DeviceInfo{
			{Index: 0, Name: "built-in", Channels: 2, DefaultSampleRate: 48000},
			{Index: 1, Name: "usb mic", Channels: 1, DefaultSampleRate: 16000, IsDefault: true},
		},
		defaultIdx: 1,
		stream:     &fakeStream{},
	}
}

func (b *fakeBackend) Devices() ([]DeviceInfo, error) {
	return b.devices, b.devicesErr
}

func (b *fakeBackend) DefaultDevice() (int, error) {
	return b.defaultIdx, b.defaultErr
}

func (b *fakeBackend) Open(cfg StreamConfig, onData func([]byte)) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, cfg)
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.onData = onData
	return b.stream, nil
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opened)
}

func (b *fakeBackend) lastConfig() StreamConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened[len(b.opened)-1]
}

func (b *fakeBackend) deliver(samples ...int16) {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	b.mu.Lock()
	onData := b.onData
	b.mu.Unlock()
	onData(pcm)
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Format.FrameSize = 4
	cfg.BufferFrames = 2
	return cfg
}

func TestNewCaptureValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCapture(nil, DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	cfg := DefaultConfig()
	cfg.Format.FrameSize = 0
	_, err = NewCapture(newFakeBackend(), cfg, nil)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.BufferFrames = 0
	_, err = NewCapture(newFakeBackend(), cfg, nil)
	require.Error(t, err)
}

func TestCaptureStartStop(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := NewCapture(backend, smallConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, c.Start(t.Context()))
	assert.True(t, c.IsRunning())

	// a second start is a no-op
	require.NoError(t, c.Start(t.Context()))
	assert.Equal(t, 1, backend.openCount())

	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
	require.NoError(t, c.Stop())

	started, stopped, closed := backend.stream.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, closed)
}

func TestCaptureDeviceSelection(t *testing.T) {
	t.Parallel()

	t.Run("default device", func(t *testing.T) {
		t.Parallel()
		backend := newFakeBackend()
		c, err := NewCapture(backend, smallConfig(), nil)
		require.NoError(t, err)
		require.NoError(t, c.Start(t.Context()))
		defer func() { _ = c.Stop() }()
		assert.Equal(t, 1, backend.lastConfig().DeviceIndex)
	})

	t.Run("default lookup failure falls back to zero", func(t *testing.T) {
		t.Parallel()
		backend := newFakeBackend()
		backend.defaultErr = ErrNoDevices
		c, err := NewCapture(backend, smallConfig(), nil)
		require.NoError(t, err)
		require.NoError(t, c.Start(t.Context()))
		defer func() { _ = c.Stop() }()
		assert.Equal(t, 0, backend.lastConfig().DeviceIndex)
	})

	t.Run("explicit index", func(t *testing.T) {
		t.Parallel()
		backend := newFakeBackend()
		cfg := smallConfig()
		cfg.DeviceIndex = 0
		c, err := NewCapture(backend, cfg, nil)
		require.NoError(t, err)
		require.NoError(t, c.Start(t.Context()))
		defer func() { _ = c.Stop() }()
		got := backend.lastConfig()
		assert.Equal(t, 0, got.DeviceIndex)
		assert.Equal(t, 16000, got.Format.SampleRate)
		assert.Equal(t, 4, got.Format.FrameSize)
	})
}

func TestCaptureStartFailureReleasesStream(t *testing.T) {
	t.Parallel()

	t.Run("open fails", func(t *testing.T) {
		t.Parallel()
		backend := newFakeBackend()
		backend.openErr = ErrDeviceIndex
		c, err := NewCapture(backend, smallConfig(), nil)
		require.NoError(t, err)

		err = c.Start(t.Context())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDeviceIndex))
		assert.False(t, c.IsRunning())
	})

	t.Run("start fails", func(t *testing.T) {
		t.Parallel()
		backend := newFakeBackend()
		backend.stream.startErr = errors.NewStd("device busy")
		c, err := NewCapture(backend, smallConfig(), nil)
		require.NoError(t, err)

		require.Error(t, c.Start(t.Context()))
		assert.False(t, c.IsRunning())
		_, _, closed := backend.stream.counts()
		assert.Equal(t, 1, closed)
	})
}

func TestCaptureFramesAndBuffer(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	var mu sync.Mutex
	var frames []Frame
	c, err := NewCapture(backend, smallConfig(), func(f Frame) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, f)
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(t.Context()))
	defer func() { _ = c.Stop() }()

	assert.Empty(t, c.Buffer())

	backend.deliver(16384, -16384, 0, 8192)
	backend.deliver(0, 0, 0, 0)
	backend.deliver(1000, 0, 0, 0)

	mu.Lock()
	require.Len(t, frames, 3)
	first := frames[0]
	mu.Unlock()

	// peak normalized to 0.9
	assert.InDelta(t, 0.9, first[0], 1e-5)
	assert.InDelta(t, -0.9, first[1], 1e-5)
	assert.InDelta(t, 0.45, first[3], 1e-5)

	// silence passes through unchanged
	assert.Equal(t, []float32{0, 0, 0, 0}, []float32(frames[1]))

	// buffer keeps only the newest two frames
	buf := c.Buffer()
	require.Len(t, buf, 8)
	assert.Equal(t, []float32{0, 0, 0, 0}, buf[:4])
	assert.InDelta(t, 0.9, buf[4], 1e-5)
}

func TestCaptureRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := NewCapture(backend, smallConfig(), func(Frame) { panic("boom") })
	require.NoError(t, err)
	require.NoError(t, c.Start(t.Context()))
	defer func() { _ = c.Stop() }()

	assert.NotPanics(t, func() { backend.deliver(1, 2, 3, 4) })
	assert.Equal(t, uint64(1), c.recovers.Load())
}

func TestCaptureStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := NewCapture(backend, smallConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, c.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !c.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestListDevices(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c, err := NewCapture(backend, smallConfig(), nil)
	require.NoError(t, err)
	assert.Len(t, c.ListDevices(), 2)

	backend.devicesErr = ErrNoDevices
	devices := c.ListDevices()
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestPCM16ToFloat32(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x00, 0x80, 0xFF, 0x7F, 0x00, 0x00, 0x01}
	got := PCM16ToFloat32(pcm, nil)
	require.Len(t, got, 3)
	assert.InDelta(t, -1.0, got[0], 1e-6)
	assert.InDelta(t, 32767.0/32768.0, got[1], 1e-6)
	assert.Zero(t, got[2])
}
