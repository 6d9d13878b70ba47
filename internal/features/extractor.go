package features

import (
	"math"

	"github.com/jupiter-voice/jupiter/internal/logger"
)

// Outcome describes what the last Extract call did.
type Outcome int

const (
	OutcomeWarmup   Outcome = iota // not enough audio buffered yet
	OutcomeSilent                  // energy below the silence threshold
	OutcomeComputed                // a tensor was produced
	OutcomeFailed                  // extraction panicked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWarmup:
		return "warmup"
	case OutcomeSilent:
		return "silent"
	case OutcomeComputed:
		return "computed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// minRowStd is the standard deviation below which a row is left unnormalized.
const minRowStd = 1e-6

// trimFactor bounds buffer growth relative to the lookback window.
const trimFactor = 1.2

// Extractor accumulates audio and produces MFCC tensors. It is owned by a
// single goroutine and is not safe for concurrent use.
type Extractor struct {
	cfg     Config
	mfcc    *mfccTransform
	buffer  []float32
	outcome Outcome
	log     logger.Logger
}

// NewExtractor validates cfg and precomputes the transform tables.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:  cfg,
		mfcc: newMFCCTransform(cfg),
		log:  GetLogger(),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// LastOutcome reports the result of the most recent Extract call.
func (e *Extractor) LastOutcome() Outcome {
	return e.outcome
}

// Buffered returns the number of samples currently held.
func (e *Extractor) Buffered() int {
	return len(e.buffer)
}

// ClearBuffer discards all buffered audio, restarting warm-up.
func (e *Extractor) ClearBuffer() {
	e.buffer = e.buffer[:0]
}

// Extract appends frame to the rolling buffer and returns a tensor of shape
// [1, NMFCC, NumFrames] once at least one second plus one frame of audio is
// buffered and the buffer is not silent. It never panics.
func (e *Extractor) Extract(frame []float32) (tensor *Tensor, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.outcome = OutcomeFailed
			e.log.Error("feature extraction failed",
				logger.Any("panic", r),
				logger.Int("buffered", len(e.buffer)))
			tensor, ok = nil, false
		}
	}()

	e.buffer = append(e.buffer, frame...)

	target := e.cfg.SampleRate + len(frame)
	if len(e.buffer) < target {
		e.outcome = OutcomeWarmup
		return nil, false
	}

	if float64(len(e.buffer)) > trimFactor*float64(target) {
		keep := e.buffer[len(e.buffer)-target:]
		e.buffer = append(e.buffer[:0], keep...)
	}

	if meanSquare(e.buffer) < e.cfg.SilenceThreshold {
		e.outcome = OutcomeSilent
		return nil, false
	}

	coeffs := e.mfcc.compute(e.buffer)
	tensor = e.fit(coeffs)
	normalizeRows(tensor)

	e.outcome = OutcomeComputed
	return tensor, true
}

// fit copies coeffs into a NumFrames-wide tensor, zero-padding on the right
// or keeping the most recent columns.
func (e *Extractor) fit(coeffs [][]float64) *Tensor {
	t := NewTensor(e.cfg.Shape())
	cols := e.cfg.NumFrames

	for i, row := range coeffs {
		src := row
		if len(src) > cols {
			src = src[len(src)-cols:]
		}
		dst := t.Row(i)
		for j, v := range src {
			dst[j] = float32(v)
		}
	}
	return t
}

func meanSquare(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return sum / float64(len(x))
}

// normalizeRows scales each row to zero mean and unit variance, leaving
// near-constant rows untouched.
func normalizeRows(t *Tensor) {
	for i := range t.Shape[1] {
		row := t.Row(i)
		n := float64(len(row))

		var sum float64
		for _, v := range row {
			sum += float64(v)
		}
		mean := sum / n

		var sq float64
		for _, v := range row {
			d := float64(v) - mean
			sq += d * d
		}
		std := math.Sqrt(sq / n)
		if std < minRowStd {
			continue
		}

		for j, v := range row {
			row[j] = float32((float64(v) - mean) / std)
		}
	}
}
