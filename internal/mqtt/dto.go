package mqtt

import (
	"time"

	"github.com/google/uuid"

	"github.com/jupiter-voice/jupiter/internal/wakeword"
)

// DetectionEventDTO is the JSON payload published for each accepted detection.
// Field names are part of the topic contract.
type DetectionEventDTO struct {
	EventID    string  `json:"eventId"`
	Timestamp  string  `json:"timestamp"` // RFC 3339 with nanoseconds
	Confidence float64 `json:"confidence"`
	ClipName   string  `json:"clipName,omitempty"`
	Source     string  `json:"source,omitempty"` // host or device name
}

// NewDetectionEventDTO builds the payload for det. A zero id gets a fresh one.
func NewDetectionEventDTO(id uuid.UUID, det wakeword.Detection, clipName, source string) *DetectionEventDTO {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &DetectionEventDTO{
		EventID:    id.String(),
		Timestamp:  det.Timestamp.Format(time.RFC3339Nano),
		Confidence: det.Confidence,
		ClipName:   clipName,
		Source:     source,
	}
}
