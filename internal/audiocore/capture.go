package audiocore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jupiter-voice/jupiter/internal/audiocore/capture"
	"github.com/jupiter-voice/jupiter/internal/audiocore/processors"
	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
)

// DefaultDevice selects the system default input device.
const DefaultDevice = -1

// Config configures a Capture.
type Config struct {
	DeviceIndex  int // DefaultDevice or an index from ListDevices
	Format       AudioFormat
	BufferFrames int     // frames kept for Buffer()
	PeakTarget   float64 // absolute peak frames are normalized to
}

// DefaultConfig returns 16 kHz mono capture in 512-sample frames.
func DefaultConfig() Config {
	return Config{
		DeviceIndex:  DefaultDevice,
		Format:       AudioFormat{SampleRate: 16000, Channels: 1, FrameSize: 512},
		BufferFrames: 100,
		PeakTarget:   processors.DefaultPeakTarget,
	}
}

// Capture reads frames from a Backend, normalizes them, retains a recent
// history and forwards each frame to an optional handler.
type Capture struct {
	backend    Backend
	cfg        Config
	handler    FrameHandler
	normalizer *processors.PeakNormalizer
	buffer     *capture.FrameBuffer
	log        logger.Logger

	mu       sync.Mutex
	stream   Stream
	running  bool
	stopCtx  func() bool
	frames   atomic.Uint64
	recovers atomic.Uint64
}

// Option customizes a Capture.
type Option func(*Capture)

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Capture) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCapture validates cfg and returns a stopped Capture.
func NewCapture(backend Backend, cfg Config, handler FrameHandler, opts ...Option) (*Capture, error) {
	if backend == nil {
		return nil, errors.Newf("audio backend is required").
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Format.SampleRate <= 0 || cfg.Format.FrameSize <= 0 {
		return nil, errors.Newf("invalid capture format: %+v", cfg.Format).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Format.Channels == 0 {
		cfg.Format.Channels = 1
	}
	if cfg.PeakTarget == 0 {
		cfg.PeakTarget = processors.DefaultPeakTarget
	}

	normalizer, err := processors.NewPeakNormalizer(cfg.PeakTarget)
	if err != nil {
		return nil, err
	}

	buffer, err := capture.NewFrameBuffer(cfg.BufferFrames, cfg.Format.FrameSize)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		backend:    backend,
		cfg:        cfg,
		handler:    handler,
		normalizer: normalizer,
		buffer:     buffer,
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Start opens and starts the capture stream. It is a no-op when already
// running. On failure every partially acquired resource is released and the
// error is returned. Cancelling ctx stops the capture.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deviceIndex := c.resolveDevice()

	stream, err := c.backend.Open(StreamConfig{DeviceIndex: deviceIndex, Format: c.cfg.Format}, c.onData)
	if err != nil {
		c.log.Error("failed to open audio stream",
			logger.Int("device_index", deviceIndex),
			logger.Error(err))
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "open_stream").
			Context("device_index", deviceIndex).
			Build()
	}

	if err := stream.Start(); err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			c.log.Warn("failed to release audio stream", logger.Error(closeErr))
		}
		c.log.Error("failed to start audio stream",
			logger.Int("device_index", deviceIndex),
			logger.Error(err))
		return errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_stream").
			Context("device_index", deviceIndex).
			Build()
	}

	c.stream = stream
	c.running = true
	c.stopCtx = context.AfterFunc(ctx, func() {
		if err := c.Stop(); err != nil {
			c.log.Warn("failed to stop capture on context cancellation", logger.Error(err))
		}
	})

	c.log.Info("audio capture started",
		logger.Int("device_index", deviceIndex),
		logger.Int("sample_rate", c.cfg.Format.SampleRate),
		logger.Int("frame_size", c.cfg.Format.FrameSize))

	return nil
}

// resolveDevice picks the configured device or the system default, falling
// back to device 0 when the default cannot be determined.
func (c *Capture) resolveDevice() int {
	if c.cfg.DeviceIndex >= 0 {
		return c.cfg.DeviceIndex
	}

	idx, err := c.backend.DefaultDevice()
	if err != nil {
		c.log.Warn("default input device lookup failed, using device 0", logger.Error(err))
		return 0
	}
	return idx
}

// Stop halts capture and releases the stream. It is idempotent and safe to
// call from any goroutine.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	if c.stopCtx != nil {
		c.stopCtx()
		c.stopCtx = nil
	}

	stream := c.stream
	c.stream = nil

	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}

	c.log.Info("audio capture stopped",
		logger.Uint64("frames", c.frames.Load()),
		logger.Uint64("recovered_panics", c.recovers.Load()))

	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "stop_stream").
			Build()
	}
	return nil
}

// IsRunning reports whether the stream is open.
func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Format returns the configured stream format.
func (c *Capture) Format() AudioFormat {
	return c.cfg.Format
}

// Buffer returns a copy of the retained samples, oldest first.
func (c *Capture) Buffer() []float32 {
	return c.buffer.Snapshot()
}

// ListDevices returns the backend's input devices, or an empty list on failure.
func (c *Capture) ListDevices() []DeviceInfo {
	devices, err := c.backend.Devices()
	if err != nil {
		c.log.Warn("failed to enumerate audio devices", logger.Error(err))
		return []DeviceInfo{}
	}
	if devices == nil {
		return []DeviceInfo{}
	}
	return devices
}

// onData runs on the backend thread for every period.
func (c *Capture) onData(pcm []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.recovers.Add(1)
			c.log.Error("recovered panic in audio callback", logger.Any("panic", r))
		}
	}()

	if len(pcm) < 2 {
		return
	}

	frame := Frame(PCM16ToFloat32(pcm, nil))
	c.normalizer.Process(frame)
	c.frames.Add(1)

	if err := c.buffer.Write(frame); err != nil {
		c.log.Warn("failed to buffer audio frame", logger.Error(err))
	}

	if c.handler != nil {
		c.handler(frame)
	}
}
