package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jupiter-voice/jupiter/internal/audiocore"
	"github.com/jupiter-voice/jupiter/internal/buildinfo"
	"github.com/jupiter-voice/jupiter/internal/clips"
	"github.com/jupiter-voice/jupiter/internal/conf"
	"github.com/jupiter-voice/jupiter/internal/errors"
	"github.com/jupiter-voice/jupiter/internal/logger"
	"github.com/jupiter-voice/jupiter/internal/model"
	"github.com/jupiter-voice/jupiter/internal/mqtt"
	"github.com/jupiter-voice/jupiter/internal/observability"
	"github.com/jupiter-voice/jupiter/internal/wakeword"
)

// Pipeline is a detector wired to its metrics, event publisher, clip
// writer and telemetry endpoint.
type Pipeline struct {
	Detector *wakeword.Detector
	Metrics  *observability.Metrics

	scorer    model.Scorer
	publisher *mqtt.Publisher
	clips     *clips.Writer
	endpoint  *observability.Endpoint
	log       logger.Logger

	closeOnce sync.Once
}

const pipelineCallbackKey = "analysis.pipeline"

// PipelineOption customizes NewPipeline.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	backend    audiocore.Backend
	scorer     model.Scorer
	haveScorer bool
	mqttClient mqtt.Client
}

// WithBackend attaches an audio backend. Without one the detector only
// processes frames fed to it directly.
func WithBackend(b audiocore.Backend) PipelineOption {
	return func(o *pipelineOptions) { o.backend = b }
}

// WithScorer skips model loading and uses s, which may be nil.
func WithScorer(s model.Scorer) PipelineOption {
	return func(o *pipelineOptions) {
		o.scorer = s
		o.haveScorer = true
	}
}

// WithMQTTClient replaces the paho client used when MQTT is enabled.
func WithMQTTClient(c mqtt.Client) PipelineOption {
	return func(o *pipelineOptions) { o.mqttClient = c }
}

// NewPipeline builds a stopped pipeline. A missing or unloadable model
// yields a degraded pipeline whose detector never triggers; a model whose
// declared input shape disagrees with the feature settings is an error.
func NewPipeline(settings *conf.Settings, info *buildinfo.Context, opts ...PipelineOption) (*Pipeline, error) {
	var o pipelineOptions
	for _, opt := range opts {
		opt(&o)
	}

	log := GetLogger()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	scorer := o.scorer
	if !o.haveScorer {
		scorer, err = loadScorer(settings, log)
		if err != nil {
			return nil, err
		}
	}

	detectorOpts := []wakeword.Option{wakeword.WithMetrics(metrics.Wakeword)}
	if o.backend != nil {
		detectorOpts = append(detectorOpts, wakeword.WithBackend(o.backend))
	}
	detector, err := wakeword.NewDetector(DetectorConfig(settings), scorer, detectorOpts...)
	if err != nil {
		closeScorer(scorer, log)
		return nil, err
	}

	p := &Pipeline{
		Detector: detector,
		Metrics:  metrics,
		scorer:   scorer,
		log:      log,
	}

	if settings.MQTT.Enabled {
		client := o.mqttClient
		if client == nil {
			client = mqtt.NewClient(MQTTConfig(settings, info.InstanceID), metrics.MQTT)
		}
		p.publisher = mqtt.NewPublisher(client, settings.MQTT.Topic, info.SourceName(), metrics.MQTT)
	}

	if settings.Clips.Enabled {
		p.clips, err = clips.NewWriter(settings.Clips.Path, settings.Audio.SampleRate, settings.Clips.MaxAge)
		if err != nil {
			closeScorer(scorer, log)
			return nil, err
		}
	}

	if settings.Telemetry.Enabled {
		p.endpoint = observability.NewEndpoint(settings.Telemetry.Listen, metrics, p.Healthy)
	}

	if p.publisher != nil || p.clips != nil {
		detector.RegisterDetectionCallback(pipelineCallbackKey, p.onDetection)
	}

	return p, nil
}

func loadScorer(settings *conf.Settings, log logger.Logger) (model.Scorer, error) {
	path := settings.WakeWord.ModelPath
	if path == "" {
		log.Warn("no wake word model configured, running without detection")
		return nil, nil
	}

	scorer, err := model.Load(path, ModelOptions(settings))
	switch {
	case err == nil:
		return scorer, nil
	case errors.IsCategory(err, errors.CategoryValidation):
		return nil, err
	case errors.IsNotFound(err):
		log.Warn("wake word model not found, running without detection",
			logger.String("path", path))
	default:
		log.Error("failed to load wake word model, running without detection",
			logger.String("path", path),
			logger.Error(err))
	}
	return nil, nil
}

func closeScorer(s model.Scorer, log logger.Logger) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		log.Warn("failed to release model", logger.Error(err))
	}
}

// Degraded reports whether the pipeline runs without a model.
func (p *Pipeline) Degraded() bool {
	return p.scorer == nil
}

// Healthy reports whether a model is loaded and the detector is running.
func (p *Pipeline) Healthy() bool {
	return !p.Degraded() && p.Detector.IsRunning()
}

// onDetection hands the detection to the clip writer and publisher. Both
// only enqueue, so this never blocks the detector.
func (p *Pipeline) onDetection(det wakeword.Detection) {
	id := uuid.New()

	var clipName string
	if p.clips != nil {
		clipName = p.clips.Enqueue(id, p.Detector.AudioBuffer())
	}
	if p.publisher != nil {
		p.publisher.PublishDetection(id, det, clipName)
	}
}

// RunOptions controls a Run call.
type RunOptions struct {
	Timeout    time.Duration // zero listens until ctx is done
	Continuous bool
	OnDetect   func(wakeword.Detection)
}

// Run starts the consumers and listens for the wake word until a detection
// (unless continuous), the timeout, or ctx is done. It reports whether any
// detection was heard. A consumer failure, such as the metrics endpoint
// failing to bind, ends the run and is returned.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (bool, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if p.publisher != nil {
		g.Go(func() error { return p.publisher.Run(gctx) })
	}
	if p.clips != nil {
		g.Go(func() error { return p.clips.Run(gctx) })
	}
	if p.endpoint != nil {
		g.Go(func() error { return p.endpoint.Run(gctx) })
	}

	p.log.Info("listening for wake word",
		logger.Float64("threshold", p.Detector.Config().Threshold),
		logger.Duration("timeout", opts.Timeout),
		logger.Bool("continuous", opts.Continuous),
		logger.Bool("degraded", p.Degraded()))

	heard := p.Detector.ListenForWakeWord(gctx, wakeword.ListenOptions{
		Timeout:    opts.Timeout,
		Continuous: opts.Continuous,
		OnDetect:   opts.OnDetect,
	})

	cancel()
	err := g.Wait()

	stats := p.Detector.Stats()
	p.log.Info("stopped listening",
		logger.Bool("detected", heard),
		logger.Uint64("frames_processed", stats.FramesProcessed),
		logger.Uint64("frames_dropped", stats.FramesDropped),
		logger.Uint64("detections", stats.Detections))

	return heard, err
}

// Close stops the detector and releases the model.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.Detector.Stop()
		closeScorer(p.scorer, p.log)
	})
	return err
}
