// Package features turns a stream of audio frames into fixed-shape MFCC
// tensors for the wake-word model.
//
// The Extractor keeps roughly one second of recent audio. Once enough
// context is buffered, each call computes a log-mel cepstrum over the
// whole buffer, fits it to NumFrames columns (right-padded with zeros or
// truncated to the most recent columns) and normalizes every coefficient
// row independently. Silent buffers are skipped before any spectral work.
package features

import (
	"github.com/jupiter-voice/jupiter/internal/errors"
)

// Config controls MFCC extraction.
type Config struct {
	SampleRate       int     // Hz
	NMFCC            int     // cepstral coefficients per column
	NumFrames        int     // columns in the output tensor
	NFFT             int     // analysis window, power of two
	HopLength        int     // samples between windows
	NMels            int     // mel bands
	SilenceThreshold float64 // mean-square energy gate
}

// DefaultConfig returns 13x101 MFCCs at 16 kHz with a 2048-point FFT and a
// 10 ms hop.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		NMFCC:            13,
		NumFrames:        101,
		NFFT:             2048,
		HopLength:        160,
		NMels:            128,
		SilenceThreshold: 0.005,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	var msg string
	switch {
	case c.SampleRate <= 0:
		msg = "sample rate must be positive"
	case c.NMFCC <= 0:
		msg = "n_mfcc must be positive"
	case c.NumFrames <= 0:
		msg = "num_frames must be positive"
	case c.NFFT <= 0 || c.NFFT&(c.NFFT-1) != 0:
		msg = "n_fft must be a power of two"
	case c.HopLength <= 0:
		msg = "hop length must be positive"
	case c.NMels < c.NMFCC:
		msg = "n_mels must be at least n_mfcc"
	case c.SilenceThreshold < 0:
		msg = "silence threshold must not be negative"
	default:
		return nil
	}

	return errors.Newf("invalid feature config: %s", msg).
		Component(componentFeatures).
		Category(errors.CategoryValidation).
		Context("n_mfcc", c.NMFCC).
		Context("num_frames", c.NumFrames).
		Context("n_fft", c.NFFT).
		Build()
}

// Shape returns the tensor shape produced for this config.
func (c Config) Shape() [3]int {
	return [3]int{1, c.NMFCC, c.NumFrames}
}
