package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jupiter-voice/jupiter/internal/logger"
	"github.com/jupiter-voice/jupiter/internal/observability/metrics"
	"github.com/jupiter-voice/jupiter/internal/wakeword"
)

const (
	defaultPublishQueue = 16
	drainTimeout        = 2 * time.Second
)

// Publisher moves detection events off the detector goroutine and publishes
// them in order on its own goroutine.
type Publisher struct {
	client  Client
	topic   string
	source  string
	metrics *metrics.MQTTMetrics
	log     logger.Logger
	queue   chan *DetectionEventDTO

	// throttles connect retries while the broker is unreachable
	connectLimiter *rate.Limiter
}

// NewPublisher creates a publisher for topic. source is copied into every event.
func NewPublisher(c Client, topic, source string, m *metrics.MQTTMetrics) *Publisher {
	return &Publisher{
		client:         c,
		topic:          topic,
		source:         source,
		metrics:        m,
		log:            GetLogger().With(logger.String("topic", topic)),
		queue:          make(chan *DetectionEventDTO, defaultPublishQueue),
		connectLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// OnDetection is a wakeword.DetectionCallback publishing det without a clip.
func (p *Publisher) OnDetection(det wakeword.Detection) {
	p.Enqueue(NewDetectionEventDTO(uuid.Nil, det, "", p.source))
}

// PublishDetection queues det under id with an optional clip name.
func (p *Publisher) PublishDetection(id uuid.UUID, det wakeword.Detection, clipName string) bool {
	return p.Enqueue(NewDetectionEventDTO(id, det, clipName, p.source))
}

// Enqueue queues an event without blocking. It reports false when the queue
// is full and the event was dropped.
func (p *Publisher) Enqueue(event *DetectionEventDTO) bool {
	select {
	case p.queue <- event:
		return true
	default:
		p.metrics.IncrementDropped()
		p.log.Warn("publish queue full, dropping detection event", logger.String("event_id", event.EventID))
		return false
	}
}

// Run connects and publishes queued events until ctx is done. Connection
// failures are retried on the next event. Events still queued when ctx is
// done get a short grace period to go out.
func (p *Publisher) Run(ctx context.Context) error {
	p.ensureConnected(ctx)
	defer p.client.Disconnect()

	for {
		select {
		case event := <-p.queue:
			p.publish(ctx, event)
		case <-ctx.Done():
			p.drain(ctx)
			return nil
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-p.queue:
			p.publish(drainCtx, event)
		default:
			return
		}
	}
}

func (p *Publisher) ensureConnected(ctx context.Context) bool {
	if p.client.IsConnected() {
		return true
	}
	if !p.connectLimiter.Allow() {
		return false
	}
	if err := p.client.Connect(ctx); err != nil {
		p.log.Warn("failed to connect to MQTT broker", logger.Error(err))
		return false
	}
	return true
}

func (p *Publisher) publish(ctx context.Context, event *DetectionEventDTO) {
	if !p.ensureConnected(ctx) {
		p.log.Debug("broker unavailable, discarding event", logger.String("event_id", event.EventID))
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to encode detection event", logger.Error(err))
		return
	}

	if err := p.client.Publish(ctx, p.topic, payload); err != nil {
		p.log.Warn("failed to publish detection event",
			logger.String("event_id", event.EventID),
			logger.Error(err))
		return
	}
	p.log.Debug("published detection event",
		logger.String("event_id", event.EventID),
		logger.Float64("confidence", event.Confidence))
}
