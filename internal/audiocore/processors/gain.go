// Package processors provides per-frame audio transformations for audiocore
package processors

import (
	"math"

	"github.com/jupiter-voice/jupiter/internal/errors"
)

// DefaultPeakTarget is the absolute peak normalized frames are scaled to.
const DefaultPeakTarget = 0.9

// silentPeak is the peak below which a frame is left untouched.
const silentPeak = 1e-10

// PeakNormalizer scales frames so their absolute peak equals Target.
type PeakNormalizer struct {
	Target float32
}

// NewPeakNormalizer validates target and returns a normalizer.
func NewPeakNormalizer(target float64) (*PeakNormalizer, error) {
	if target <= 0 || target > 1 || math.IsNaN(target) {
		return nil, errors.Newf("peak target must be in (0, 1], got %g", target).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("target", target).
			Build()
	}
	return &PeakNormalizer{Target: float32(target)}, nil
}

// Process normalizes frame in place and returns the applied gain.
// Silent frames (peak ~ 0) are returned unchanged with gain 1.
func (p *PeakNormalizer) Process(frame []float32) float32 {
	var peak float32
	for _, s := range frame {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}

	if peak < silentPeak {
		return 1
	}

	gain := p.Target / peak
	for i := range frame {
		frame[i] *= gain
	}

	return gain
}
