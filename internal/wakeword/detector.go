// Package wakeword runs the wake-word pipeline: captured frames flow
// through a bounded queue into a single processing goroutine that extracts
// features, scores them and applies a smoothed decision rule before fanning
// detections out to registered callbacks.
package wakeword

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/features"
	"github.com/jupiter-voice/jupiter/internal/logger"
	"github.com/jupiter-voice/jupiter/internal/model"
)

// Prediction is one scored feature tensor.
type Prediction struct {
	Confidence float64
	Timestamp  time.Time
}

// Detection is an accepted wake-word event. Confidence is the mean of the
// smoothing window at acceptance.
type Detection struct {
	Confidence float64
	Timestamp  time.Time
}

// DetectionCallback is invoked synchronously on the processing goroutine
// for every accepted detection. It must return quickly.
type DetectionCallback func(Detection)

// Stats is a snapshot of pipeline counters.
type Stats struct {
	FramesReceived  uint64
	FramesDropped   uint64
	FramesProcessed uint64
	Detections      uint64
}

type callbackEntry struct {
	key string
	fn  DetectionCallback
}

// Detector owns the capture, the frame queue and the decision state.
type Detector struct {
	cfg       Config
	scorer    model.Scorer
	extractor *features.Extractor
	backend   audiocore.Backend
	capture   *audiocore.Capture
	metrics   Metrics
	log       logger.Logger
	now       func() time.Time

	queue       chan audiocore.Frame
	dropLimiter *rate.Limiter

	lifecycleMu sync.Mutex
	running     atomic.Bool
	cancel      context.CancelFunc
	stopCtx     func() bool
	done        chan struct{}

	stateMu       sync.Mutex
	detected      bool
	streak        int
	lastDetection time.Time
	window        []Prediction

	cbMu        sync.Mutex
	callbacks   []callbackEntry
	subscribers map[chan Detection]struct{}

	received   atomic.Uint64
	dropped    atomic.Uint64
	processed  atomic.Uint64
	detections atomic.Uint64
}

// Option customizes a Detector.
type Option func(*Detector)

// WithBackend attaches an audio backend. Without one the detector only
// processes frames passed to Feed.
func WithBackend(b audiocore.Backend) Option {
	return func(d *Detector) {
		d.backend = b
	}
}

// WithMetrics records pipeline counters.
func WithMetrics(m Metrics) Option {
	return func(d *Detector) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides the time source used for predictions and cooldown.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDetector builds a stopped detector. A nil scorer is allowed; such a
// detector runs but never detects.
func NewDetector(cfg Config, scorer model.Scorer, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	extractor, err := features.NewExtractor(cfg.Features)
	if err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:         cfg,
		scorer:      scorer,
		extractor:   extractor,
		metrics:     noopMetrics{},
		log:         GetLogger(),
		now:         time.Now,
		queue:       make(chan audiocore.Frame, cfg.QueueSize),
		dropLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		window:      make([]Prediction, 0, cfg.WindowSize),
		subscribers: make(map[chan Detection]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.backend != nil {
		capture, err := audiocore.NewCapture(d.backend, cfg.Audio, func(f audiocore.Frame) { d.Feed(f) },
			audiocore.WithLogger(d.log.Module("capture")))
		if err != nil {
			return nil, err
		}
		d.capture = capture
	}

	if scorer == nil {
		d.log.Warn("no model loaded, detector will never trigger")
	}
	return d, nil
}

// Start launches the processing goroutine and audio capture. It is a no-op
// when already running. A capture failure is logged and returned, but the
// detector stays running so frames can still be fed directly. Cancelling
// ctx stops the detector. If a previous processing goroutine outlived its
// Stop, Start waits up to StopTimeout for it and fails if it is still alive.
func (d *Detector) Start(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.running.Load() {
		return nil
	}
	if err := d.awaitPreviousRun(); err != nil {
		return err
	}

	d.stateMu.Lock()
	d.detected = false
	d.stateMu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	d.metrics.SetRunning(true)

	go d.run(runCtx, d.done)

	d.stopCtx = context.AfterFunc(ctx, func() {
		if err := d.Stop(); err != nil {
			d.log.Warn("failed to stop detector on context cancellation", logger.Error(err))
		}
	})

	d.log.Info("wake word detector started",
		logger.Float64("threshold", d.cfg.Threshold),
		logger.Int("window_size", d.cfg.WindowSize),
		logger.Int("required_streak", d.cfg.RequiredStreak),
		logger.Duration("cooldown", d.cfg.Cooldown))

	if d.capture == nil {
		return nil
	}
	if err := d.capture.Start(ctx); err != nil {
		d.log.Error("audio capture failed to start, detector idle until frames are fed",
			logger.Error(err))
		return err
	}
	return nil
}

// Stop halts capture, joins the processing goroutine for at most
// StopTimeout and drains queued frames. It is idempotent.
func (d *Detector) Stop() error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if !d.running.Load() {
		return nil
	}
	d.running.Store(false)

	if d.stopCtx != nil {
		d.stopCtx()
		d.stopCtx = nil
	}

	var captureErr error
	if d.capture != nil {
		captureErr = d.capture.Stop()
		if captureErr != nil {
			d.log.Warn("audio capture did not stop cleanly", logger.Error(captureErr))
		}
	}

	d.cancel()
	select {
	case <-d.done:
	case <-time.After(d.cfg.StopTimeout):
		d.log.Warn("processing goroutine did not exit in time",
			logger.Duration("timeout", d.cfg.StopTimeout))
	}

	drained := d.drain()
	d.metrics.SetRunning(false)

	d.log.Info("wake word detector stopped",
		logger.Int("drained_frames", drained),
		logger.Uint64("frames_received", d.received.Load()),
		logger.Uint64("frames_dropped", d.dropped.Load()),
		logger.Uint64("detections", d.detections.Load()))

	return captureErr
}

// awaitPreviousRun ensures at most one processing goroutine owns the
// extractor. Called with lifecycleMu held.
func (d *Detector) awaitPreviousRun() error {
	if d.done == nil {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-time.After(d.cfg.StopTimeout):
		d.log.Error("previous processing goroutine still running, refusing to start")
		return errors.Newf("previous processing goroutine has not exited").
			Component(componentWakeWord).
			Category(errors.CategoryState).
			Context("stop_timeout", d.cfg.StopTimeout.String()).
			Build()
	}
}

func (d *Detector) drain() int {
	n := 0
	for {
		select {
		case <-d.queue:
			n++
		default:
			return n
		}
	}
}

// IsRunning reports whether the detector is started.
func (d *Detector) IsRunning() bool {
	return d.running.Load()
}

// Feed enqueues a frame without blocking. It returns false when the
// detector is stopped or the queue is full, in which case the frame is
// discarded and older queued frames are kept.
func (d *Detector) Feed(frame audiocore.Frame) bool {
	if !d.running.Load() {
		return false
	}
	d.received.Add(1)
	d.metrics.FrameReceived()

	select {
	case d.queue <- frame:
		return true
	default:
		d.dropped.Add(1)
		d.metrics.FrameDropped()
		if d.dropLimiter.Allow() {
			d.log.Warn("frame queue full, dropping audio",
				logger.Int("capacity", cap(d.queue)),
				logger.Uint64("dropped_total", d.dropped.Load()))
		}
		return false
	}
}

// run is the processing goroutine.
func (d *Detector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	d.extractor.ClearBuffer()
	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()

	for d.running.Load() {
		timer.Reset(d.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return
		case frame := <-d.queue:
			d.process(frame)
		case <-timer.C:
		}
	}
}

// process handles one frame. Failures are logged and skip the frame.
func (d *Detector) process(frame audiocore.Frame) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("recovered panic while processing frame", logger.Any("panic", r))
		}
	}()

	d.processed.Add(1)
	d.metrics.FrameProcessed()

	tensor, ok := d.extractor.Extract(frame)
	d.metrics.FeaturesExtracted(d.extractor.LastOutcome().String())
	if !ok {
		return
	}
	d.detect(tensor)
}

// detect scores tensor and applies the decision rule. It returns whether a
// detection was accepted and either the window mean or, during warm-up, the
// raw confidence.
func (d *Detector) detect(tensor *features.Tensor) (bool, float64) {
	if d.scorer == nil {
		return false, 0
	}

	start := time.Now()
	confidence, err := d.scorer.Predict(tensor)
	if err != nil {
		d.metrics.InferenceFailed()
		d.log.Warn("inference failed", logger.Error(err))
		return false, 0
	}
	d.metrics.InferenceCompleted(time.Since(start), confidence)

	now := d.now()
	threshold := d.cfg.Threshold

	d.stateMu.Lock()
	if confidence > threshold {
		d.streak++
	} else {
		d.streak = 0
	}

	if len(d.window) == d.cfg.WindowSize {
		copy(d.window, d.window[1:])
		d.window = d.window[:len(d.window)-1]
	}
	d.window = append(d.window, Prediction{Confidence: confidence, Timestamp: now})

	if len(d.window) < minWindowEntries {
		d.stateMu.Unlock()
		return false, confidence
	}

	var sum float64
	highCount := 0
	for _, p := range d.window {
		sum += p.Confidence
		if p.Confidence > threshold {
			highCount++
		}
	}
	avg := sum / float64(len(d.window))
	canTrigger := now.Sub(d.lastDetection) > d.cfg.Cooldown

	accepted := avg > threshold &&
		highCount >= min(minWindowEntries, d.cfg.WindowSize) &&
		d.streak >= d.cfg.RequiredStreak &&
		canTrigger

	if accepted {
		d.lastDetection = now
		d.streak = 0
		d.detected = true
	}
	streak := d.streak
	d.stateMu.Unlock()

	if !accepted {
		d.log.Trace("prediction",
			logger.Float64("confidence", confidence),
			logger.Float64("average", avg),
			logger.Int("high_count", highCount),
			logger.Int("streak", streak))
		return false, avg
	}

	d.detections.Add(1)
	d.metrics.DetectionAccepted(avg)
	d.log.Info("wake word detected",
		logger.Float64("confidence", avg),
		logger.Int("high_count", highCount))

	d.fire(Detection{Confidence: avg, Timestamp: now})
	return true, avg
}

// fire runs callbacks in registration order, each isolated from the others'
// panics, then notifies subscribers without blocking.
func (d *Detector) fire(det Detection) {
	d.cbMu.Lock()
	callbacks := make([]callbackEntry, len(d.callbacks))
	copy(callbacks, d.callbacks)
	subs := make([]chan Detection, 0, len(d.subscribers))
	for ch := range d.subscribers {
		subs = append(subs, ch)
	}
	d.cbMu.Unlock()

	for i, cb := range callbacks {
		d.invoke(i, cb.fn, det)
	}

	for _, ch := range subs {
		select {
		case ch <- det:
		default:
		}
	}
}

func (d *Detector) invoke(index int, fn DetectionCallback, det Detection) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.CallbackFailed()
			d.log.Error("detection callback panicked",
				logger.Int("callback_index", index),
				logger.Any("panic", r))
		}
	}()
	fn(det)
}

// RegisterDetectionCallback appends fn to the callback list under key.
// Registering a key that is already present is a no-op and returns false,
// so a consumer registering its bound method twice is only called once.
func (d *Detector) RegisterDetectionCallback(key string, fn DetectionCallback) bool {
	if key == "" || fn == nil {
		return false
	}

	d.cbMu.Lock()
	defer d.cbMu.Unlock()

	for _, cb := range d.callbacks {
		if cb.key == key {
			d.log.Debug("detection callback already registered", logger.String("key", key))
			return false
		}
	}
	d.callbacks = append(d.callbacks, callbackEntry{key: key, fn: fn})
	return true
}

// Subscribe returns a channel receiving accepted detections. Sends never
// block; a full channel misses detections. The returned func unsubscribes.
func (d *Detector) Subscribe(buffer int) (<-chan Detection, func()) {
	ch := make(chan Detection, max(buffer, 1))

	d.cbMu.Lock()
	d.subscribers[ch] = struct{}{}
	d.cbMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.cbMu.Lock()
			delete(d.subscribers, ch)
			d.cbMu.Unlock()
		})
	}
}

// IsDetected reports and clears the sticky detection flag.
func (d *Detector) IsDetected() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	detected := d.detected
	d.detected = false
	return detected
}

// AudioBuffer returns the recently captured samples, oldest first, or an
// empty slice when no capture is attached.
func (d *Detector) AudioBuffer() []float32 {
	if d.capture == nil {
		return []float32{}
	}
	return d.capture.Buffer()
}

// Devices lists the attached backend's capture devices.
func (d *Detector) Devices() []audiocore.DeviceInfo {
	if d.capture == nil {
		return []audiocore.DeviceInfo{}
	}
	return d.capture.ListDevices()
}

// Stats returns a snapshot of the pipeline counters.
func (d *Detector) Stats() Stats {
	return Stats{
		FramesReceived:  d.received.Load(),
		FramesDropped:   d.dropped.Load(),
		FramesProcessed: d.processed.Load(),
		Detections:      d.detections.Load(),
	}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}
