// Package malgo provides the miniaudio (malgo) capture backend for audiocore
package malgo

import (
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
)

const component = "audiocore.malgo"

// Backend implements audiocore.Backend on top of miniaudio.
type Backend struct {
	backend malgo.Backend
	log     logger.Logger
}

// NewBackend selects the platform's native miniaudio backend.
func NewBackend() (*Backend, error) {
	b, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}
	return &Backend{
		backend: b,
		log:     logger.Global().Module("audiocore").Module("malgo"),
	}, nil
}

// initContext opens a miniaudio context; miniaudio diagnostics go to trace logs.
func (b *Backend) initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{b.backend}, malgo.ContextConfig{}, func(message string) {
		b.log.Trace("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(component).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	return ctx, nil
}

func releaseContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

func enumerate(ctx *malgo.AllocatedContext) ([]malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(component).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	return infos, nil
}

// Devices lists capture devices.
func (b *Backend) Devices() ([]audiocore.DeviceInfo, error) {
	ctx, err := b.initContext()
	if err != nil {
		return nil, err
	}
	defer releaseContext(ctx)

	infos, err := enumerate(ctx)
	if err != nil {
		return nil, err
	}
	return describeDevices(infos), nil
}

// DefaultDevice returns the index of the system default capture device.
func (b *Backend) DefaultDevice() (int, error) {
	ctx, err := b.initContext()
	if err != nil {
		return 0, err
	}
	defer releaseContext(ctx)

	infos, err := enumerate(ctx)
	if err != nil {
		return 0, err
	}
	return defaultIndex(infos)
}

// Open initializes a capture device delivering S16 mono frames of exactly
// cfg.Format.FrameSize samples to onData.
func (b *Backend) Open(cfg audiocore.StreamConfig, onData func(pcm []byte)) (audiocore.Stream, error) {
	ctx, err := b.initContext()
	if err != nil {
		return nil, err
	}

	infos, err := enumerate(ctx)
	if err != nil {
		releaseContext(ctx)
		return nil, err
	}
	if len(infos) == 0 {
		releaseContext(ctx)
		return nil, audiocore.ErrNoDevices
	}
	if cfg.DeviceIndex < 0 || cfg.DeviceIndex >= len(infos) {
		releaseContext(ctx)
		return nil, errors.New(audiocore.ErrDeviceIndex).
			Component(component).
			Category(errors.CategoryValidation).
			Context("device_index", cfg.DeviceIndex).
			Context("available_devices", len(infos)).
			Build()
	}
	info := &infos[cfg.DeviceIndex]

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(max(cfg.Format.Channels, 1))
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.Format.FrameSize)
	deviceConfig.Alsa.NoMMap = 1

	s := &stream{ctx: ctx, log: b.log.With(logger.String("device", info.Name()))}
	chunker := newFrameChunker(cfg.Format.FrameSize)
	var convertBuf []byte

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			pcm := input
			if s.format != malgo.FormatS16 {
				converted, err := ConvertToS16(input, s.format, convertBuf)
				if err != nil {
					return
				}
				convertBuf = converted
				pcm = converted
			}
			chunker.push(pcm, onData)
		},
		Stop: func() {
			s.log.Warn("audio device stopped")
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		releaseContext(ctx)
		return nil, errors.New(err).
			Component(component).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Context("device_index", cfg.DeviceIndex).
			Build()
	}
	s.device = device
	s.format = device.CaptureFormat()

	if rate := int(device.SampleRate()); rate != cfg.Format.SampleRate {
		s.log.Warn("device sample rate differs from requested",
			logger.Int("requested", cfg.Format.SampleRate),
			logger.Int("actual", rate))
	}

	return s, nil
}

// stream wraps an initialized malgo device and its context.
type stream struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format malgo.FormatType
	log    logger.Logger
}

func (s *stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return errors.Newf("audio stream is closed").
			Component(component).
			Category(errors.CategoryState).
			Build()
	}
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

func (s *stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil || !s.device.IsStarted() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryAudioSource).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		releaseContext(s.ctx)
		s.ctx = nil
	}
	return nil
}

var _ audiocore.Backend = (*Backend)(nil)
